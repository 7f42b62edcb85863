// Package dbfacade wraps a pgx connection pool with the handful of
// primitives a held transaction needs: acquire a connection from the
// pool and pin it, begin/commit/rollback the outer transaction around
// that pinned connection, and open/release/roll back savepoints nested
// inside it. It implements the heldtx.DBFacade / Connection / OuterTx /
// SavepointTx interfaces so core/heldtx never imports pgx directly.
// Everything beyond these primitives — query building, result scanning,
// migrations — is the embedding application's concern and is
// deliberately absent here.
package dbfacade

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sushant-115/heldtxn/core/heldtx"
)

// DB is the pool-backed facade a Manager is constructed with. One DB is
// shared by every HeldTransaction's worker in the process.
type DB struct {
	pool *pgxpool.Pool
}

var _ heldtx.DBFacade = (*DB)(nil)

// Open builds a DB around a pgx connection pool. Callers are
// responsible for sizing poolCfg so that max_concurrent held
// transactions can each pin a connection without starving ordinary
// request-path queries.
func Open(ctx context.Context, poolCfg *pgxpool.Config) (*DB, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("dbfacade: opening pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("dbfacade: pinging pool: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close closes the underlying pool. Callers must ensure no held
// transaction still has a connection pinned.
func (db *DB) Close() { db.pool.Close() }

// Pool returns the underlying pgxpool.Pool, for application components
// (like the records demo store) that need direct, non-held-transaction
// access to the same pool this DB acquires connections from.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

// Acquire pins a fresh connection from the pool. The caller must
// Release it exactly once, on every exit path.
func (db *DB) Acquire(ctx context.Context) (heldtx.Connection, error) {
	raw, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbfacade: acquiring connection: %w", err)
	}
	return &conn{raw: raw}, nil
}

// conn is a single pooled connection pinned to one held transaction's
// worker for the worker's entire lifetime. No other goroutine may use
// it; this is what makes per-operation savepoints safe.
type conn struct {
	raw *pgxpool.Conn
}

var _ heldtx.Connection = (*conn)(nil)

// Release returns the pinned connection to the pool. Safe to call
// exactly once.
func (c *conn) Release() { c.raw.Release() }

// BeginOuter opens the transaction this connection will hold for its
// entire life.
func (c *conn) BeginOuter(ctx context.Context) (heldtx.OuterTx, error) {
	tx, err := c.raw.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbfacade: beginning outer transaction: %w", err)
	}
	return &outerTx{conn: c, tx: tx}, nil
}

// outerTx adapts a pgx.Tx spanning the outer transaction to
// heldtx.OuterTx.
type outerTx struct {
	conn *conn
	tx   pgx.Tx
}

var _ heldtx.OuterTx = (*outerTx)(nil)

// Savepoint opens a new nested savepoint inside the outer transaction.
// pgx's own Tx.Begin, called on an already-started Tx, issues exactly
// this SAVEPOINT/RELEASE/ROLLBACK TO dance — the nested pgx.Tx returned
// here *is* the savepoint.
func (o *outerTx) Savepoint(ctx context.Context) (heldtx.SavepointTx, error) {
	sp, err := o.tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbfacade: opening savepoint: %w", err)
	}
	return &savepointTx{sp: sp}, nil
}

// FinishOuter commits or rolls back the outer transaction depending on
// the worker's terminal instruction, and always releases the
// connection afterward.
func (o *outerTx) FinishOuter(ctx context.Context, commit bool) error {
	defer o.conn.Release()
	if commit {
		if err := o.tx.Commit(ctx); err != nil {
			return fmt.Errorf("dbfacade: committing outer transaction: %w", err)
		}
		return nil
	}
	if err := o.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("dbfacade: rolling back outer transaction: %w", err)
	}
	return nil
}

// savepointTx adapts a nested pgx.Tx (a savepoint) to heldtx.SavepointTx.
type savepointTx struct {
	sp pgx.Tx
}

var _ heldtx.SavepointTx = (*savepointTx)(nil)

// Release releases (commits, in pgx's nested-transaction vocabulary) the
// savepoint, keeping the outer transaction intact and open.
func (s *savepointTx) Release(ctx context.Context) error {
	if err := s.sp.Commit(ctx); err != nil {
		return fmt.Errorf("dbfacade: releasing savepoint: %w", err)
	}
	return nil
}

// Rollback rolls back to the savepoint, undoing the action's work while
// leaving the outer transaction open and reusable.
func (s *savepointTx) Rollback(ctx context.Context) error {
	if err := s.sp.Rollback(ctx); err != nil {
		return fmt.Errorf("dbfacade: rolling back savepoint: %w", err)
	}
	return nil
}

// WithContext installs this savepoint's pgx.Tx as the ambient
// transaction handle for downstream repository calls.
func (s *savepointTx) WithContext(ctx context.Context) context.Context {
	return WithTx(ctx, s.sp)
}

// connKey is the context key the worker installs the current savepoint's
// pgx.Tx under, so a submitted action observes the pinned connection's
// transaction ambiently instead of receiving it as an explicit parameter.
type connKey struct{}

// WithTx returns a context carrying tx as the ambient transaction handle
// for the duration of one submitted action.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, connKey{}, tx)
}

// TxFromContext retrieves the ambient transaction handle a worker
// installed via WithTx. Actions call this instead of threading a
// connection argument through every helper.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(connKey{}).(pgx.Tx)
	return tx, ok
}
