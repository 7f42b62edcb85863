package heldtx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/sushant-115/heldtxn/pkg/telemetry"
)

// View is the externally visible attribute bundle for a HeldTransaction,
// the JSON-ready shape returned to API callers.
type View struct {
	ID             string `json:"id"`
	State          string `json:"state"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	ExpiresAt      string `json:"expires_at"`
	CreatedAt      string `json:"created_at"`
}

// HeldTransaction is a single open database transaction, pinned to a
// dedicated worker that owns the connection and serialises operations
// against it through a queue.
type HeldTransaction struct {
	id             string
	timeoutSeconds int
	createdAt      time.Time
	expiresAt      time.Time

	db      DBFacade
	clock   Clock
	logger  *zap.Logger
	metrics *telemetry.HeldTxnMetrics
	tracer  trace.Tracer

	queue chan operation

	stateMu sync.Mutex
	state   State

	stopped chan struct{} // closed when the worker returns
}

// New constructs a HeldTransaction in its pre-start state. Call Start to
// spawn its worker and begin the outer transaction. A nil tracer is
// replaced with a no-op tracer, so callers that don't care about tracing
// (most tests) can pass nil.
func New(db DBFacade, clock Clock, timeoutSeconds int, logger *zap.Logger, metrics *telemetry.HeldTxnMetrics, tracer trace.Tracer) *HeldTransaction {
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("")
	}
	now := clock.Now()
	return &HeldTransaction{
		id:             uuid.New().String(),
		timeoutSeconds: timeoutSeconds,
		createdAt:      now,
		expiresAt:      now.Add(time.Duration(timeoutSeconds) * time.Second),
		db:             db,
		clock:          clock,
		logger:         logger,
		metrics:        metrics,
		tracer:         tracer,
		queue:          make(chan operation),
		state:          StateOpen,
		stopped:        make(chan struct{}),
	}
}

// ID returns the transaction's identifier.
func (t *HeldTransaction) ID() string { return t.id }

// ExpiresAt returns the instant after which IsExpired becomes true.
func (t *HeldTransaction) ExpiresAt() time.Time { return t.expiresAt }

// Start spawns the worker and blocks until it has acquired a connection
// and begun the outer transaction, by submitting a ready-probe and
// awaiting its acknowledgement.
func (t *HeldTransaction) Start(ctx context.Context) error {
	go t.runWorker(ctx)

	reply := make(chan opResult, 1)
	select {
	case t.queue <- operation{tag: opReadyProbe, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case res := <-reply:
		return res.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit executes action on the worker while the pinned connection is
// current, returning the action's return value. Fails with ExpiredError
// if the transaction is not open at entry; fails with OperationError
// when action itself fails. In both success and failure the outer
// transaction remains open and reusable.
func (t *HeldTransaction) Submit(ctx context.Context, action Action) (any, error) {
	if !t.IsOpen() {
		return nil, &ExpiredError{ID: t.id}
	}

	reply := make(chan opResult, 1)
	op := operation{tag: opExecute, ctx: ctx, action: action, reply: reply}

	select {
	case t.queue <- op:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.stopped:
		return nil, &ExpiredError{ID: t.id}
	}

	select {
	case res := <-reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Commit transitions state from open to committed and waits for the
// worker to finish the outer transaction, which the database then
// commits.
func (t *HeldTransaction) Commit(ctx context.Context) error {
	return t.terminate(ctx, StateCommitted)
}

// Rollback is Commit's symmetric counterpart; the worker causes the
// database to roll the outer transaction back.
func (t *HeldTransaction) Rollback(ctx context.Context) error {
	return t.terminate(ctx, StateRolledBack)
}

func (t *HeldTransaction) terminate(ctx context.Context, target State) error {
	t.stateMu.Lock()
	if t.state != StateOpen {
		t.stateMu.Unlock()
		return &ExpiredError{ID: t.id}
	}
	t.state = target
	t.stateMu.Unlock()

	reply := make(chan opResult, 1)
	op := operation{tag: opTerminate, terminal: target, reply: reply}

	select {
	case t.queue <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.stopped:
		// The worker already exited (fault). The state mutation above
		// still stands; there is nothing left to acknowledge.
		return nil
	}

	select {
	case <-reply:
	case <-ctx.Done():
		return ctx.Err()
	}

	// The worker finishes the outer transaction on its way out; wait for
	// it to exit so the commit or rollback is done when this returns.
	select {
	case <-t.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsOpen reports whether the transaction can still accept operations.
func (t *HeldTransaction) IsOpen() bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.state == StateOpen
}

// IsExpired is true iff the transaction is open and now is past
// expires_at.
func (t *HeldTransaction) IsExpired() bool {
	t.stateMu.Lock()
	open := t.state == StateOpen
	t.stateMu.Unlock()
	return open && t.clock.Now().After(t.expiresAt)
}

// AsView produces the externally visible attribute bundle.
func (t *HeldTransaction) AsView() View {
	t.stateMu.Lock()
	state := t.state
	t.stateMu.Unlock()
	return View{
		ID:             t.id,
		State:          string(state),
		TimeoutSeconds: t.timeoutSeconds,
		ExpiresAt:      t.expiresAt.UTC().Format(time.RFC3339),
		CreatedAt:      t.createdAt.UTC().Format(time.RFC3339),
	}
}

func (t *HeldTransaction) markRolledBack() {
	t.stateMu.Lock()
	t.state = StateRolledBack
	t.stateMu.Unlock()
}

// runWorker is the single cooperative loop that owns the pinned
// connection for the entire lifetime of the held transaction.
func (t *HeldTransaction) runWorker(startCtx context.Context) {
	defer close(t.stopped)

	conn, err := t.db.Acquire(startCtx)
	if err != nil {
		t.failStart(fmt.Errorf("acquiring connection: %w", err))
		return
	}

	outer, err := conn.BeginOuter(startCtx)
	if err != nil {
		conn.Release()
		t.failStart(fmt.Errorf("beginning outer transaction: %w", err))
		return
	}

	commit := false
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("held transaction worker panicked; rolling back",
				zap.Any("panic", r), zap.String("id", t.id))
			t.markRolledBack()
			commit = false
		}
		if err := outer.FinishOuter(context.Background(), commit); err != nil {
			t.logger.Error("failed to finish outer transaction",
				zap.Error(err), zap.String("id", t.id))
		}
	}()

	for op := range t.queue {
		switch op.tag {
		case opReadyProbe:
			op.reply <- opResult{}
		case opExecute:
			if fatal := t.executeOp(op, outer); fatal {
				return
			}
		case opTerminate:
			commit = op.terminal == StateCommitted
			op.reply <- opResult{}
			return
		}
	}
}

// failStart replies to the ready-probe Start is waiting on with err.
// Only ever called before the loop in runWorker starts, so the
// ready-probe is guaranteed to be the only item on the queue.
func (t *HeldTransaction) failStart(err error) {
	t.markRolledBack()
	t.logger.Error("held transaction failed to start", zap.Error(err), zap.String("id", t.id))
	op := <-t.queue
	op.reply <- opResult{err: err}
}

// executeOp runs one submitted action inside a fresh savepoint. It
// returns true if a fault occurred that should terminate the worker
// (the savepoint machinery itself failed, implying the connection or
// transaction is no longer usable); an ordinary action failure rolls
// back only the savepoint and returns false.
func (t *HeldTransaction) executeOp(op operation, outer OuterTx) (fatal bool) {
	started := t.clock.Now()

	ctx, span := t.tracer.Start(op.ctx, "heldtx.operation",
		trace.WithAttributes(attribute.String("heldtx.id", t.id)))
	defer span.End()

	defer func() {
		if t.metrics != nil {
			t.metrics.OperationLatencyHistogram.Record(ctx, t.clock.Now().Sub(started).Milliseconds())
		}
	}()

	sp, err := outer.Savepoint(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.markRolledBack()
		op.reply <- opResult{err: &OperationError{ID: t.id, Cause: err, TransactionRolledBack: true}}
		return true
	}

	value, actionErr := op.action(sp.WithContext(ctx))
	if actionErr != nil {
		span.RecordError(actionErr)
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			span.RecordError(rbErr)
			span.SetStatus(codes.Error, rbErr.Error())
			t.markRolledBack()
			op.reply <- opResult{err: &OperationError{ID: t.id, Cause: rbErr, TransactionRolledBack: true}}
			return true
		}
		span.SetStatus(codes.Error, actionErr.Error())
		op.reply <- opResult{err: &OperationError{ID: t.id, Cause: actionErr, TransactionRolledBack: false}}
		return false
	}

	if err := sp.Release(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.markRolledBack()
		op.reply <- opResult{err: &OperationError{ID: t.id, Cause: err, TransactionRolledBack: true}}
		return true
	}
	op.reply <- opResult{value: value}
	return false
}
