// Package jsonutil handles JSON response rendering for the galleryd API.
package jsonutil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apperr "github.com/galleryd/galleryd/internal/errors"
)

// ErrorResponse is the JSON body returned for every API error.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Orphan    string `json:"orphan,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Write marshals v as JSON and writes it to w with the given HTTP status code.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Encoding JSON response", "error", err)
	}
}

// WriteError renders err as a JSON error response, mapping its taxonomy
// kind to an HTTP status. Errors outside the taxonomy render as a 500
// InternalError without leaking the cause to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{
		Error:     string(apperr.KindOf(err)),
		Message:   messageOf(err),
		Orphan:    string(apperr.OrphanOf(err)),
		RequestID: w.Header().Get("X-Request-Id"),
	}
	Write(w, apperr.StatusOf(err), resp)
}

// messageOf returns the taxonomy message for err, or a generic message for
// unexpected errors so internals stay out of responses.
func messageOf(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// FormatTime formats a time.Time as the ISO 8601 string used in all API
// payloads (e.g., "2006-01-02T15:04:05.000Z").
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
