package server

import (
	"encoding/json"
	"errors"
	"net/http"

	nameregistry "github.com/wolfeidau/name-registry"
	"github.com/wolfeidau/name-registry/ledger"
	"github.com/wolfeidau/name-registry/transaction"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

var kindStatus = map[string]int{
	"unauthorized":        http.StatusForbidden,
	"address_mismatch":    http.StatusBadRequest,
	"account_mismatch":    http.StatusBadRequest,
	"invalid_argument":    http.StatusBadRequest,
	"decode_error":        http.StatusBadRequest,
	"out_of_space":        http.StatusConflict,
	"already_initialized": http.StatusConflict,
	"not_initialized":     http.StatusNotFound,
	"insufficient_funds":  http.StatusPaymentRequired,
	"invalid_header":      http.StatusInternalServerError,
	"seeds_exhausted":     http.StatusInternalServerError,
}

// errorStatus maps err to an HTTP status and a stable kind label.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, transaction.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "not_found"
	}

	kind := nameregistry.ErrorKind(err)
	if status, ok := kindStatus[kind]; ok {
		return status, kind
	}
	return http.StatusInternalServerError, kind
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "kind", kind, "error", err)
	}

	msg := err.Error()
	if kind == "internal" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
