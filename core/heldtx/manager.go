package heldtx

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sushant-115/heldtxn/pkg/telemetry"
)

// Config bounds how many held transactions may run at once and how
// their timeouts are chosen and clamped.
type Config struct {
	MaxConcurrent         int
	DefaultTimeoutSeconds int
	MaxTimeoutSeconds     int
	ReaperIntervalSeconds int
}

// Manager is the process-wide registry that issues, finds, terminates,
// enforces concurrency limits on, and reaps expired held transactions.
// It is an ordinary Go value, not a package-level singleton: the
// embedding application constructs one Manager and shares it.
type Manager struct {
	cfg     Config
	db      DBFacade
	clock   Clock
	logger  *zap.Logger
	metrics *telemetry.HeldTxnMetrics
	tracer  trace.Tracer

	mu      sync.Mutex
	entries map[string]*HeldTransaction

	reaper *reaper
}

// NewManager constructs a Manager bound to db and ready to create held
// transactions under cfg's limits. A nil tracer is fine; New gives each
// HeldTransaction a no-op tracer in that case.
func NewManager(cfg Config, db DBFacade, clock Clock, logger *zap.Logger, metrics *telemetry.HeldTxnMetrics, tracer trace.Tracer) *Manager {
	return &Manager{
		cfg:     cfg,
		db:      db,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		entries: make(map[string]*HeldTransaction),
	}
}

// Create opens a new held transaction. The concurrency limit is checked
// exactly once, under the registry mutex, before the (slow) act of
// starting the worker; the new entry is inserted only after Start
// returns, under the mutex again.
func (m *Manager) Create(ctx context.Context, requestedTimeout *int) (*HeldTransaction, error) {
	m.mu.Lock()
	if len(m.entries) >= m.cfg.MaxConcurrent {
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.ConcurrencyRejectedCounter.Add(ctx, 1)
		}
		return nil, &ConcurrencyLimitError{Limit: m.cfg.MaxConcurrent}
	}
	m.mu.Unlock()

	timeout := ClampTimeout(requestedTimeout, m.cfg.DefaultTimeoutSeconds, m.cfg.MaxTimeoutSeconds)
	txn := New(m.db, m.clock, timeout, m.logger, m.metrics, m.tracer)

	if err := txn.Start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.entries[txn.ID()] = txn
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.CreatedCounter.Add(ctx, 1)
		m.metrics.ActiveUpDownCounter.Add(ctx, 1)
	}
	m.logger.Info("held transaction created", zap.String("id", txn.ID()), zap.Int("timeout_seconds", timeout))
	return txn, nil
}

// Find looks up a held transaction by id.
func (m *Manager) Find(id string) (*HeldTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.entries[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return txn, nil
}

// Commit looks up id, verifies it is still open, commits it, and
// removes its registry entry.
func (m *Manager) Commit(ctx context.Context, id string) (*HeldTransaction, error) {
	return m.terminate(ctx, id, true)
}

// Rollback is Commit's symmetric counterpart.
func (m *Manager) Rollback(ctx context.Context, id string) (*HeldTransaction, error) {
	return m.terminate(ctx, id, false)
}

func (m *Manager) terminate(ctx context.Context, id string, commit bool) (*HeldTransaction, error) {
	m.mu.Lock()
	txn, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return nil, &NotFoundError{ID: id}
	}
	if !txn.IsOpen() {
		m.mu.Unlock()
		return nil, &ExpiredError{ID: id}
	}
	delete(m.entries, id)
	m.mu.Unlock()

	var err error
	if commit {
		err = txn.Commit(ctx)
	} else {
		err = txn.Rollback(ctx)
	}
	if err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.ActiveUpDownCounter.Add(ctx, -1)
		if commit {
			m.metrics.CommittedCounter.Add(ctx, 1)
		} else {
			m.metrics.RolledBackCounter.Add(ctx, 1)
		}
	}
	m.logger.Info("held transaction terminated",
		zap.String("id", id), zap.Bool("committed", commit))
	return txn, nil
}

// ActiveTransactions returns a snapshot of every entry whose state is
// still open.
func (m *Manager) ActiveTransactions() []*HeldTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*HeldTransaction, 0, len(m.entries))
	for _, txn := range m.entries {
		if txn.IsOpen() {
			out = append(out, txn)
		}
	}
	return out
}

// ActiveCount returns the number of entries still tracked. This never
// exceeds cfg.MaxConcurrent.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// StartReaper launches the background sweep that rolls back expired
// held transactions on a fixed interval.
func (m *Manager) StartReaper() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reaper != nil {
		return
	}
	interval := time.Duration(m.cfg.ReaperIntervalSeconds) * time.Second
	m.reaper = newReaper(m, interval, m.logger)
	m.reaper.start()
}

// StopReaper stops the background sweep, if running.
func (m *Manager) StopReaper() {
	m.mu.Lock()
	r := m.reaper
	m.reaper = nil
	m.mu.Unlock()
	if r != nil {
		r.stop()
	}
}

// Shutdown stops the reaper and rolls back every still-open held
// transaction, for use at process exit.
func (m *Manager) Shutdown(ctx context.Context) {
	m.StopReaper()
	for _, txn := range m.ActiveTransactions() {
		if _, err := m.Rollback(ctx, txn.ID()); err != nil {
			m.logger.Warn("failed to roll back held transaction during shutdown",
				zap.String("id", txn.ID()), zap.Error(err))
		}
	}
}

// Reset tears down every held transaction and clears the registry,
// leaving the Manager ready for reuse. Intended for tests.
func (m *Manager) Reset(ctx context.Context) {
	m.Shutdown(ctx)
	m.mu.Lock()
	m.entries = make(map[string]*HeldTransaction)
	m.mu.Unlock()
}

// removeIfExpired atomically removes id from the registry if it is
// still present, returning the removed entry. Used by the reaper so a
// racing user-driven terminate and a reap sweep cannot both "win": the
// side that wins the mutex removes the entry, the other observes it
// already gone.
func (m *Manager) removeIfExpired(id string) (*HeldTransaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.entries[id]
	if !ok || !txn.IsExpired() {
		return nil, false
	}
	delete(m.entries, id)
	return txn, true
}

// snapshotExpired returns every currently-registered entry the reaper
// should consider for this sweep.
func (m *Manager) snapshotExpired() []*HeldTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*HeldTransaction, 0)
	for _, txn := range m.entries {
		if txn.IsExpired() {
			out = append(out, txn)
		}
	}
	return out
}
