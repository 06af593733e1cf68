package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jmcleod/ironlatch/auth"
)

// maxAuthBodySize caps request bodies on the auth endpoints. Credentials and
// reset tokens are small; anything larger is abuse.
const maxAuthBodySize = 16 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeInternalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// mapError translates domain errors into HTTP responses. Authentication
// failures collapse to a single generic message so callers cannot
// distinguish a missing account from a bad password, a dead session, or a
// deactivated account.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case auth.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case auth.IsAuthError(err):
		writeError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeInternalError(w, "unhandled request error", err)
	}
}

// decodeJSON reads and unmarshals a JSON request body, capping its size.
// On failure it writes the error response and returns ok=false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxBytes int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
		}
		return v, false
	}
	return v, true
}
