package records

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sushant-115/heldtxn/api/transactions"
)

// recordStore is the subset of *Store the handlers need, narrowed to an
// interface so tests can substitute an in-memory fake.
type recordStore interface {
	Insert(ctx context.Context, name string) (Record, error)
	List(ctx context.Context) ([]Record, error)
}

// Handlers routes POST/GET requests for the records demo resource through
// the transaction-aware request dispatcher, so a caller holding a
// transaction via X-Transaction-ID sees its writes staged inside that
// transaction's savepoint, and a caller without the header sees them
// committed directly against the pool.
type Handlers struct {
	store      recordStore
	dispatcher *transactions.Dispatcher
	logger     *zap.Logger
	router     *http.ServeMux
}

func NewHandlers(store recordStore, dispatcher *transactions.Dispatcher, logger *zap.Logger) *Handlers {
	h := &Handlers{store: store, dispatcher: dispatcher, logger: logger, router: http.NewServeMux()}
	h.router.HandleFunc("/records", h.handleCollection)
	return h
}

func (h *Handlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handlers) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleCreate(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type createRecordBody struct {
	Name string `json:"name"`
}

func (h *Handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createRecordBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	val, err := h.dispatcher.Dispatch(r, func(ctx context.Context) (any, error) {
		return h.store.Insert(ctx, body.Name)
	})
	if err != nil {
		transactions.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(val)
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	val, err := h.dispatcher.Dispatch(r, func(ctx context.Context) (any, error) {
		return h.store.List(ctx)
	})
	if err != nil {
		transactions.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(val)
}
