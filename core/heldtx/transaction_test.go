package heldtx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger { return zap.NewNop() }

func TestHeldTransaction_HappyCommit(t *testing.T) {
	db := newFakeDB()
	clock := NewManualClock(time.Unix(0, 0))
	txn := New(db, clock, 30, testLogger(), nil, nil)

	require.NoError(t, txn.Start(context.Background()))
	assert.True(t, txn.IsOpen())

	val, err := txn.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "row-1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "row-1", val)

	require.NoError(t, txn.Commit(context.Background()))
	assert.False(t, txn.IsOpen())
	assert.Equal(t, []fakeEvent{evAcquire, evBeginOuter, evSavepoint, evSPRelease, evFinishOuter}, db.events())
}

func TestHeldTransaction_ActionFailureRollsBackOnlySavepoint(t *testing.T) {
	db := newFakeDB()
	clock := NewManualClock(time.Unix(0, 0))
	txn := New(db, clock, 30, testLogger(), nil, nil)
	require.NoError(t, txn.Start(context.Background()))

	_, err := txn.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errFakeAction
	})
	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.False(t, opErr.TransactionRolledBack)
	assert.ErrorIs(t, opErr.Cause, errFakeAction)

	// the outer transaction must still be open and reusable.
	assert.True(t, txn.IsOpen())
	_, err = txn.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "second", nil
	})
	require.NoError(t, err)

	require.NoError(t, txn.Rollback(context.Background()))
	assert.Equal(t, []fakeEvent{
		evAcquire, evBeginOuter,
		evSavepoint, evSPRollback,
		evSavepoint, evSPRelease,
		evFinishOuter,
	}, db.events())
}

func TestHeldTransaction_SubmitAfterTerminationIsExpired(t *testing.T) {
	db := newFakeDB()
	clock := NewManualClock(time.Unix(0, 0))
	txn := New(db, clock, 30, testLogger(), nil, nil)
	require.NoError(t, txn.Start(context.Background()))
	require.NoError(t, txn.Commit(context.Background()))

	_, err := txn.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.Error(t, err)
	var expired *ExpiredError
	assert.ErrorAs(t, err, &expired)
}

func TestHeldTransaction_DoubleTerminateIsExpiredSecondTime(t *testing.T) {
	db := newFakeDB()
	clock := NewManualClock(time.Unix(0, 0))
	txn := New(db, clock, 30, testLogger(), nil, nil)
	require.NoError(t, txn.Start(context.Background()))
	require.NoError(t, txn.Commit(context.Background()))

	err := txn.Rollback(context.Background())
	var expired *ExpiredError
	assert.ErrorAs(t, err, &expired)
}

func TestHeldTransaction_IsExpired(t *testing.T) {
	db := newFakeDB()
	clock := NewManualClock(time.Unix(0, 0))
	txn := New(db, clock, 10, testLogger(), nil, nil)
	require.NoError(t, txn.Start(context.Background()))

	assert.False(t, txn.IsExpired())
	clock.Advance(11 * time.Second)
	assert.True(t, txn.IsExpired())

	require.NoError(t, txn.Rollback(context.Background()))
	// once terminated, is_expired is false regardless of clock.
	assert.False(t, txn.IsExpired())
}

func TestHeldTransaction_BeginOuterFailureSurfacesOnStart(t *testing.T) {
	db := newFakeDB()
	db.failBeginOuter = assert.AnError
	clock := NewManualClock(time.Unix(0, 0))
	txn := New(db, clock, 30, testLogger(), nil, nil)

	err := txn.Start(context.Background())
	require.Error(t, err)
	assert.False(t, txn.IsOpen())
}

func TestHeldTransaction_SavepointReleaseFaultEndsWorker(t *testing.T) {
	db := newFakeDB()
	db.failSPRelease = assert.AnError
	clock := NewManualClock(time.Unix(0, 0))
	txn := New(db, clock, 30, testLogger(), nil, nil)
	require.NoError(t, txn.Start(context.Background()))

	_, err := txn.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.True(t, opErr.TransactionRolledBack)

	// worker has exited; the transaction is no longer open.
	assert.False(t, txn.IsOpen())
}

func TestClampTimeout(t *testing.T) {
	ten, hundred := 10, 100
	assert.Equal(t, 30, ClampTimeout(nil, 30, 60))
	assert.Equal(t, 10, ClampTimeout(&ten, 30, 60))
	assert.Equal(t, 60, ClampTimeout(&hundred, 30, 60))
}
