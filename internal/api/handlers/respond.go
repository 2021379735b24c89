package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/logger"
)

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the service error taxonomy onto HTTP statuses. Unknown
// errors become a generic 500 so internals never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, core.ErrInvalidSource):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, core.ErrDocumentCapReached),
		errors.Is(err, core.ErrMessageCapReached),
		errors.Is(err, core.ErrSessionClosed):
		status = http.StatusConflict
	case errors.Is(err, core.ErrProviderFailure):
		status = http.StatusBadGateway
	default:
		logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
