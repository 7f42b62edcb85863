package transactions

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sushant-115/heldtxn/core/heldtx"
)

// Handlers is the transactions-resource lifecycle controller: a thin
// adapter mapping create/show/list/update to Manager calls, routed on
// a plain *http.ServeMux.
type Handlers struct {
	manager *heldtx.Manager
	logger  *zap.Logger
	router  *http.ServeMux
}

func NewHandlers(manager *heldtx.Manager, logger *zap.Logger) *Handlers {
	h := &Handlers{manager: manager, logger: logger, router: http.NewServeMux()}
	h.registerRoutes()
	return h
}

func (h *Handlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handlers) registerRoutes() {
	h.router.HandleFunc("/transactions", h.handleCollection)
	h.router.HandleFunc("/transactions/", h.handleMember)
}

// handleCollection serves list and create (no id in the path).
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

// handleMember serves show and update (id in the path).
func (h *Handlers) handleMember(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/transactions/")
	if id == "" {
		http.Error(w, "missing transaction id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleShow(w, r, id)
	case http.MethodPatch:
		h.handleUpdate(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type createBody struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			TimeoutSeconds *int `json:"timeout_seconds"`
		} `json:"attributes"`
	} `json:"data"`
}

func (h *Handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	txn, err := h.manager.Create(r.Context(), body.Data.Attributes.TimeoutSeconds)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeData(w, http.StatusCreated, toResource(txn.AsView()))
}

func (h *Handlers) handleShow(w http.ResponseWriter, r *http.Request, id string) {
	txn, err := h.manager.Find(id)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeData(w, http.StatusOK, toResource(txn.AsView()))
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	active := h.manager.ActiveTransactions()
	resources := make([]resource, 0, len(active))
	for _, txn := range active {
		resources = append(resources, toResource(txn.AsView()))
	}
	writeData(w, http.StatusOK, resources)
}

type updateBody struct {
	Data struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Attributes struct {
			State string `json:"state"`
		} `json:"attributes"`
	} `json:"data"`
}

func (h *Handlers) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var body updateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var txn *heldtx.HeldTransaction
	var err error

	switch heldtx.State(body.Data.Attributes.State) {
	case heldtx.StateCommitted:
		txn, err = h.manager.Commit(r.Context(), id)
	case heldtx.StateRolledBack:
		txn, err = h.manager.Rollback(r.Context(), id)
	default:
		err = &heldtx.InvalidStateTransitionError{Value: body.Data.Attributes.State}
	}

	if err != nil {
		WriteError(w, err)
		return
	}
	writeData(w, http.StatusOK, toResource(txn.AsView()))
}
