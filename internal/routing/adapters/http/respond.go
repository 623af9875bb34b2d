package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// respondError translates domain sentinels into HTTP status codes. Anything
// unrecognized is a 500 with a generic body; the detail stays in the log.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrAccessDenied):
		respondJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicateEntry):
		respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrDuplicateEvent):
		// idempotent replays are acknowledged, not erred
		respondJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
	case errors.Is(err, domain.ErrProvider):
		respondJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		logger.ErrorContext(r.Context(), "unhandled error", "path", r.URL.Path, "error", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}
