package transactions

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sushant-115/heldtxn/core/heldtx"
)

// CorrelationHeader is the one inbound header this core understands:
// its presence routes a request's database work onto the held
// transaction it names; its absence is the default, non-transactional
// path.
const CorrelationHeader = "X-Transaction-ID"

// Dispatcher bridges an inbound request to either direct execution of its
// database action or, when the request carries CorrelationHeader, to the
// matching HeldTransaction's worker.
type Dispatcher struct {
	Manager *heldtx.Manager
}

func NewDispatcher(manager *heldtx.Manager) *Dispatcher {
	return &Dispatcher{Manager: manager}
}

// Dispatch runs action either directly or inside the held transaction
// named by r's correlation header.
func (d *Dispatcher) Dispatch(r *http.Request, action heldtx.Action) (any, error) {
	id := r.Header.Get(CorrelationHeader)
	if id == "" {
		return action(r.Context())
	}

	txn, err := d.Manager.Find(id)
	if err != nil {
		return nil, err
	}
	return txn.Submit(r.Context(), action)
}

// WriteError translates err to a structured error response and writes
// it to w.
func WriteError(w http.ResponseWriter, err error) {
	var notFound *heldtx.NotFoundError
	var expired *heldtx.ExpiredError
	var limitErr *heldtx.ConcurrencyLimitError
	var opErr *heldtx.OperationError
	var invalidState *heldtx.InvalidStateTransitionError

	switch {
	case errors.As(err, &notFound):
		writeErrorStatus(w, http.StatusNotFound, err.Error(), nil)

	case errors.As(err, &expired):
		writeErrorStatus(w, http.StatusGone, err.Error(), &errMeta{
			TransactionID:         expired.ID,
			TransactionRolledBack: true,
		})

	case errors.As(err, &limitErr):
		writeErrorStatus(w, http.StatusTooManyRequests, err.Error(), nil)

	case errors.As(err, &invalidState):
		writeErrorStatus(w, http.StatusUnprocessableEntity, err.Error(), nil)

	case errors.As(err, &opErr):
		status := http.StatusInternalServerError
		if isValidationClass(opErr.Cause) {
			status = http.StatusUnprocessableEntity
		}
		writeErrorStatus(w, status, opErr.Error(), &errMeta{
			TransactionID:         opErr.ID,
			TransactionRolledBack: opErr.TransactionRolledBack,
		})

	default:
		writeErrorStatus(w, http.StatusInternalServerError, err.Error(), nil)
	}
}

// isValidationClass reports whether err is a Postgres error whose SQLSTATE
// falls in integrity-constraint-violation class 23 (unique violation,
// foreign key violation, not-null violation, check violation, ...).
func isValidationClass(cause error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(cause, &pgErr) {
		return false
	}
	return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23"
}
