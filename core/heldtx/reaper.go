package heldtx

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// reaper periodically sweeps a Manager's registry and rolls back any
// entry whose deadline has passed, so a client that never calls
// commit/rollback cannot hold a connection forever.
type reaper struct {
	manager  *Manager
	interval time.Duration
	logger   *zap.Logger

	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newReaper(m *Manager, interval time.Duration, logger *zap.Logger) *reaper {
	return &reaper{
		manager:  m,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *reaper) start() {
	go r.run()
}

func (r *reaper) stop() {
	r.once.Do(func() { close(r.stopCh) })
	<-r.done
}

func (r *reaper) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep removes every expired entry from the registry and rolls each
// one back. Removal happens under the registry mutex one entry at a
// time (Manager.removeIfExpired), so a concurrent client-driven
// Commit/Rollback for the same id can never race the reaper for the
// same entry: whichever of the two observes the entry first under the
// mutex wins, and the loser sees either NotFoundError (already removed)
// or, if it is the reaper checking a not-yet-expired entry, simply
// skips it.
func (r *reaper) sweep() {
	for _, txn := range r.manager.snapshotExpired() {
		removed, ok := r.manager.removeIfExpired(txn.ID())
		if !ok {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := removed.Rollback(ctx)
		cancel()

		if r.manager.metrics != nil {
			r.manager.metrics.ReapedCounter.Add(context.Background(), 1)
			r.manager.metrics.RolledBackCounter.Add(context.Background(), 1)
			r.manager.metrics.ActiveUpDownCounter.Add(context.Background(), -1)
		}
		if err != nil {
			r.logger.Warn("reaper: failed to roll back expired held transaction",
				zap.String("id", removed.ID()), zap.Error(err))
			continue
		}
		r.logger.Info("reaper: rolled back expired held transaction",
			zap.String("id", removed.ID()))
	}
}
