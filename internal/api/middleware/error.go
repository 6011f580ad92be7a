// Package middleware provides HTTP middleware and the response envelope for the API.
package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/lash-studio/backoffice/internal/apperror"
	"github.com/lash-studio/backoffice/internal/logging"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WriteJSON writes a successful envelope around data.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{Success: true, Data: data})
}

// WriteFailure writes a failed envelope with a user-facing message.
func WriteFailure(w http.ResponseWriter, status int, message string) {
	write(w, status, Envelope{Success: false, Error: message})
}

// WriteError maps a categorized error onto status code and message.
// Internal causes are never written to the client.
func WriteError(w http.ResponseWriter, err error) {
	WriteFailure(w, StatusFor(apperror.CodeOf(err)), apperror.MessageOf(err))
}

// StatusFor returns the HTTP status used for an error category.
func StatusFor(code apperror.Code) int {
	switch code {
	case apperror.CodeNotFound:
		return http.StatusNotFound
	case apperror.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Log.Warn("writing response", zap.Error(err))
	}
}

// ErrorRecovery is middleware that recovers from panics and returns a 500 error.
func ErrorRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.Log.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
				WriteFailure(w, http.StatusInternalServerError, apperror.MessageOf(apperror.Internal("http", nil)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
