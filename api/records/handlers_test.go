package records

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sushant-115/heldtxn/api/transactions"
	"github.com/sushant-115/heldtxn/core/heldtx"
)

// fakeStore is an in-memory recordStore, so these tests run without Postgres.
type fakeStore struct {
	mu   sync.Mutex
	rows []Record
	next int64
}

func (f *fakeStore) Insert(ctx context.Context, name string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	rec := Record{ID: f.next, Name: name, CreatedAt: time.Unix(0, 0)}
	f.rows = append(f.rows, rec)
	return rec, nil
}

func (f *fakeStore) List(ctx context.Context) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Record, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func testDispatcher(t *testing.T) *transactions.Dispatcher {
	t.Helper()
	db := &noopFacade{}
	clock := heldtx.NewManualClock(time.Unix(0, 0))
	cfg := heldtx.Config{
		MaxConcurrent:         2,
		DefaultTimeoutSeconds: 30,
		MaxTimeoutSeconds:     60,
		ReaperIntervalSeconds: 60,
	}
	m := heldtx.NewManager(cfg, db, clock, zap.NewNop(), nil, nil)
	return transactions.NewDispatcher(m)
}

func TestRecordsHandlers_CreateAndListWithoutTransaction(t *testing.T) {
	store := &fakeStore{}
	h := NewHandlers(store, testDispatcher(t), zap.NewNop())

	createReq := httptest.NewRequest(http.MethodPost, "/records", bytes.NewBufferString(`{"name":"A"}`))
	createRec := httptest.NewRecorder()
	h.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/records", nil)
	listRec := httptest.NewRecorder()
	h.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var rows []Record
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0].Name)
}

func TestRecordsHandlers_UnknownTransactionIDIsNotFound(t *testing.T) {
	store := &fakeStore{}
	h := NewHandlers(store, testDispatcher(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/records", bytes.NewBufferString(`{"name":"A"}`))
	req.Header.Set(transactions.CorrelationHeader, "does-not-exist")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// noopFacade is a minimal heldtx.DBFacade good enough to let a worker
// start, begin its outer transaction, and finish it, without a database.
type noopFacade struct{}

func (noopFacade) Acquire(ctx context.Context) (heldtx.Connection, error) {
	return noopConn{}, nil
}

type noopConn struct{}

func (noopConn) Release() {}
func (noopConn) BeginOuter(ctx context.Context) (heldtx.OuterTx, error) {
	return noopOuterTx{}, nil
}

type noopOuterTx struct{}

func (noopOuterTx) Savepoint(ctx context.Context) (heldtx.SavepointTx, error) {
	return noopSavepoint{}, nil
}
func (noopOuterTx) FinishOuter(ctx context.Context, commit bool) error { return nil }

type noopSavepoint struct{}

func (noopSavepoint) Release(ctx context.Context) error  { return nil }
func (noopSavepoint) Rollback(ctx context.Context) error { return nil }
func (noopSavepoint) WithContext(ctx context.Context) context.Context {
	return ctx
}
