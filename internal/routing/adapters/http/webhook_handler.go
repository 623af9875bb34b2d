package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexocrm/waroute/internal/routing/app"
)

// WebhookHandler is the provider-facing ingress. One route, no auth beyond
// the per-instance key and optional shared secret.
type WebhookHandler struct {
	webhooks     *app.WebhookService
	logger       *slog.Logger
	maxBodyBytes int64
}

func NewWebhookHandler(webhooks *app.WebhookService, logger *slog.Logger, maxBodyBytes int64) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &WebhookHandler{
		webhooks:     webhooks,
		logger:       logger.With("handler", "webhook"),
		maxBodyBytes: maxBodyBytes,
	}
}

func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/{instanceKey}", h.Receive)
}

// Receive acks 200 as soon as the delivery is durably captured; providers
// retrying on anything else would only redeliver what we already hold.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	instanceKey := chi.URLParam(r, "instanceKey")

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes+1))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body"})
		return
	}
	if int64(len(body)) > h.maxBodyBytes {
		respondJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload too large"})
		return
	}

	headers := map[string]string{}
	for _, name := range []string{app.WebhookSecretHeader, "Content-Type", "User-Agent"} {
		if v := r.Header.Get(name); v != "" {
			headers[name] = v
		}
	}

	if err := h.webhooks.ProcessWebhook(r.Context(), instanceKey, body, headers); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
