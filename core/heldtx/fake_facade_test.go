package heldtx

import (
	"context"
	"errors"
	"sync"
)

// fakeDB, fakeConn, fakeOuterTx and fakeSavepoint are an in-memory stand-in
// for a real DBFacade, letting HeldTransaction/Manager/reaper tests run
// without a database. They record every lifecycle call so tests can assert
// on ordering (acquire -> begin outer -> N savepoints -> finish outer).

type fakeEvent string

const (
	evAcquire     fakeEvent = "acquire"
	evRelease     fakeEvent = "release"
	evBeginOuter  fakeEvent = "begin_outer"
	evFinishOuter fakeEvent = "finish_outer"
	evSavepoint   fakeEvent = "savepoint"
	evSPRelease   fakeEvent = "sp_release"
	evSPRollback  fakeEvent = "sp_rollback"
)

type fakeDB struct {
	mu  sync.Mutex
	log []fakeEvent

	failAcquire    error
	failBeginOuter error
	failSavepoint  error
	failSPRelease  error
	failSPRollback error
}

func newFakeDB() *fakeDB {
	return &fakeDB{}
}

func (f *fakeDB) record(ev fakeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, ev)
}

func (f *fakeDB) events() []fakeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeEvent, len(f.log))
	copy(out, f.log)
	return out
}

func (f *fakeDB) Acquire(ctx context.Context) (Connection, error) {
	if f.failAcquire != nil {
		return nil, f.failAcquire
	}
	f.record(evAcquire)
	return &fakeConn{db: f}, nil
}

type fakeConn struct {
	db *fakeDB
}

func (c *fakeConn) Release() { c.db.record(evRelease) }

func (c *fakeConn) BeginOuter(ctx context.Context) (OuterTx, error) {
	if c.db.failBeginOuter != nil {
		return nil, c.db.failBeginOuter
	}
	c.db.record(evBeginOuter)
	return &fakeOuterTx{db: c.db}, nil
}

type fakeOuterTx struct {
	db *fakeDB

	mu        sync.Mutex
	finished  bool
	committed bool
}

func (o *fakeOuterTx) Savepoint(ctx context.Context) (SavepointTx, error) {
	if o.db.failSavepoint != nil {
		return nil, o.db.failSavepoint
	}
	o.db.record(evSavepoint)
	return &fakeSavepoint{db: o.db}, nil
}

func (o *fakeOuterTx) FinishOuter(ctx context.Context, commit bool) error {
	o.mu.Lock()
	o.finished = true
	o.committed = commit
	o.mu.Unlock()
	o.db.record(evFinishOuter)
	return nil
}

type fakeSavepointCtxKey struct{}

type fakeSavepoint struct {
	db *fakeDB
}

func (s *fakeSavepoint) Release(ctx context.Context) error {
	if s.db.failSPRelease != nil {
		return s.db.failSPRelease
	}
	s.db.record(evSPRelease)
	return nil
}

func (s *fakeSavepoint) Rollback(ctx context.Context) error {
	if s.db.failSPRollback != nil {
		return s.db.failSPRollback
	}
	s.db.record(evSPRollback)
	return nil
}

func (s *fakeSavepoint) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, fakeSavepointCtxKey{}, s)
}

var errFakeAction = errors.New("fake action failed")
