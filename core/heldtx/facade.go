package heldtx

import "context"

// DBFacade is everything a HeldTransaction's worker needs from storage:
// acquire a connection from the pool and pin it to the worker for the
// transaction's entire lifetime. Satisfied in production by
// *dbfacade.DB; satisfied in tests by an in-memory fake so the core's
// concurrency and state-machine behaviour can be verified without a
// live database.
type DBFacade interface {
	Acquire(ctx context.Context) (Connection, error)
}

// Connection is one pinned connection, never touched by any goroutine
// but its owning worker.
type Connection interface {
	// BeginOuter opens the outer transaction this connection holds for
	// the held transaction's entire life.
	BeginOuter(ctx context.Context) (OuterTx, error)
	// Release returns the connection to the pool. Called exactly once,
	// on every exit path.
	Release()
}

// OuterTx is the outer transaction span a worker owns from BeginOuter
// until FinishOuter. Every submitted operation runs inside a fresh
// Savepoint nested within it.
type OuterTx interface {
	// Savepoint opens a nested transaction for one submitted operation.
	Savepoint(ctx context.Context) (SavepointTx, error)
	// FinishOuter commits (commit=true) or rolls back (commit=false) the
	// outer transaction and releases the underlying connection.
	FinishOuter(ctx context.Context, commit bool) error
}

// SavepointTx is a single nested savepoint wrapping one submitted
// action. Release keeps its effects in the (still-open) outer
// transaction; Rollback undoes them without touching the outer
// transaction.
type SavepointTx interface {
	Release(ctx context.Context) error
	Rollback(ctx context.Context) error
	// WithContext returns ctx enriched with whatever ambient connection
	// handle the concrete facade wants a submitted action to observe.
	// The held-transaction core never inspects the value itself.
	WithContext(ctx context.Context) context.Context
}
