package shared

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/modelgate/internal/redact"
)

// Envelope is the uniform response body for every endpoint. Results holds
// the endpoint-specific payload and is null on errors.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Results any    `json:"results"`
}

// RespondWithJSON writes a success envelope with the given status and
// payload.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, message string, results any) {
	writeEnvelope(w, r, status, Envelope{Success: true, Message: message, Results: results})
}

// RespondWithError writes an error envelope with the given status and a
// client-safe message.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeEnvelope(w, r, status, Envelope{Success: false, Message: message})
}

// RespondWithErrorAndLog writes an error envelope and logs the underlying
// error with redacted details. The raw error never reaches the client.
func RespondWithErrorAndLog(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	traceID := GetTraceID(r.Context())

	attrs := []slog.Attr{
		slog.String("trace_id", traceID),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status_code", status),
		slog.String("user_message", message),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("error", redact.Error(err)),
			slog.String("error_type", fmt.Sprintf("%T", err)))
	}

	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.LogAttrs(r.Context(), level, "API error response", attrs...)

	writeEnvelope(w, r, status, Envelope{Success: false, Message: message})
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to encode JSON response",
			"error", err,
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()))
	}
}
