// Package transactions implements the request dispatcher and lifecycle
// controller: the bridge between inbound HTTP requests and the
// held-transaction core, and the thin handler mapping
// create/show/list/update onto Manager calls.
package transactions

import (
	"encoding/json"
	"net/http"

	"github.com/sushant-115/heldtxn/core/heldtx"
)

// resource is the JSON:API-shaped "data" payload for a single held
// transaction.
type resource struct {
	Type       string     `json:"type"`
	ID         string     `json:"id"`
	Attributes attributes `json:"attributes"`
}

type attributes struct {
	State          string `json:"state"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	ExpiresAt      string `json:"expires_at"`
	CreatedAt      string `json:"created_at"`
}

func toResource(v heldtx.View) resource {
	return resource{
		Type: "transactions",
		ID:   v.ID,
		Attributes: attributes{
			State:          v.State,
			TimeoutSeconds: v.TimeoutSeconds,
			ExpiresAt:      v.ExpiresAt,
			CreatedAt:      v.CreatedAt,
		},
	}
}

// dataEnvelope wraps a single resource or a list of resources under the
// top-level "data" field.
type dataEnvelope struct {
	Data any `json:"data"`
}

// errorObject is one entry of the top-level "errors" array.
type errorObject struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// errMeta is the optional "meta" block accompanying a transaction-related
// error, letting the caller distinguish "savepoint rolled back,
// transaction alive" from "transaction gone".
type errMeta struct {
	TransactionID         string `json:"transaction_id"`
	TransactionRolledBack bool   `json:"transaction_rolled_back"`
}

type errorEnvelope struct {
	Errors []errorObject `json:"errors"`
	Meta   *errMeta      `json:"meta,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dataEnvelope{Data: data})
}

func writeErrorStatus(w http.ResponseWriter, status int, detail string, meta *errMeta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Errors: []errorObject{{Status: httpStatusString(status), Detail: detail}},
		Meta:   meta,
	})
}

func httpStatusString(status int) string {
	switch status {
	case http.StatusNotFound:
		return "404"
	case http.StatusGone:
		return "410"
	case http.StatusUnprocessableEntity:
		return "422"
	case http.StatusTooManyRequests:
		return "429"
	default:
		return "500"
	}
}
