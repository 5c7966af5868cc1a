package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mailmirror/mailmirror/internal/store"
	"github.com/mailmirror/mailmirror/internal/sync"
)

// WriteJSONResponse encodes v as JSON. Encoding happens before any bytes are
// written, so a marshal failure yields a clean 500 instead of a truncated
// body. Returns false when nothing useful was written.
func WriteJSONResponse(w http.ResponseWriter, v interface{}) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
	return true
}

// DecodeJSONBody decodes the request body into v, rejecting unknown fields.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// WriteDomainError maps known domain errors to HTTP status codes.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrMailboxNotFound),
		errors.Is(err, store.ErrFolderNotFound),
		errors.Is(err, store.ErrThreadNotFound),
		errors.Is(err, store.ErrMessageNotFound),
		errors.Is(err, store.ErrAccountNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, sync.ErrNetworkUnavailable):
		http.Error(w, "Remote mail server unreachable", http.StatusServiceUnavailable)
	case errors.Is(err, sync.ErrNoMailboxSelected),
		errors.Is(err, sync.ErrNoFolderSelected):
		http.Error(w, "Nothing selected", http.StatusConflict)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
