package transactions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushant-115/heldtxn/core/heldtx"
)

func TestDispatcher_NoHeaderRunsActionDirectly(t *testing.T) {
	m := testManager(t)
	d := NewDispatcher(m)

	req := httptest.NewRequest(http.MethodPost, "/records", nil)
	called := false
	val, err := d.Dispatch(req, func(ctx context.Context) (any, error) {
		called = true
		return "direct", nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "direct", val)
}

func TestDispatcher_WithHeaderRoutesThroughHeldTransaction(t *testing.T) {
	m := testManager(t)
	txn, err := m.Create(context.Background(), nil)
	require.NoError(t, err)

	d := NewDispatcher(m)
	req := httptest.NewRequest(http.MethodPost, "/records", nil)
	req.Header.Set(CorrelationHeader, txn.ID())

	val, err := d.Dispatch(req, func(ctx context.Context) (any, error) {
		return "via-held-txn", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "via-held-txn", val)
}

func TestDispatcher_UnknownHeaderIsNotFound(t *testing.T) {
	m := testManager(t)
	d := NewDispatcher(m)

	req := httptest.NewRequest(http.MethodPost, "/records", nil)
	req.Header.Set(CorrelationHeader, "does-not-exist")

	_, err := d.Dispatch(req, func(ctx context.Context) (any, error) { return nil, nil })
	var notFound *heldtx.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestWriteError_ExpiredCarriesMeta(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, &heldtx.ExpiredError{ID: "abc"})
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Contains(t, rec.Body.String(), `"transaction_id":"abc"`)
	assert.Contains(t, rec.Body.String(), `"transaction_rolled_back":true`)
}

func TestWriteError_OperationErrorDefaultsTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, &heldtx.OperationError{Cause: assertAnError{}, TransactionRolledBack: false})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "boom" }

func TestManualClockAdvance(t *testing.T) {
	c := heldtx.NewManualClock(time.Unix(100, 0))
	assert.Equal(t, int64(100), c.Now().Unix())
	c.Advance(5 * time.Second)
	assert.Equal(t, int64(105), c.Now().Unix())
}
