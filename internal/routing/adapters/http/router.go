// Package http is the service's REST surface: the provider webhook ingress
// and the agent/supervisor API consumed by the CRM frontend.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the full route tree with the standard middleware stack.
func NewRouter(webhook *WebhookHandler, conversations *ConversationHandler, instances *InstanceHandler, agents *AgentHandler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	webhook.RegisterRoutes(r)

	r.Route("/api/v1", func(r chi.Router) {
		conversations.RegisterRoutes(r)
		instances.RegisterRoutes(r, agents)
	})

	return r
}
