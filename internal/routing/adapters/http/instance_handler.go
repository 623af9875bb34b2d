package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexocrm/waroute/internal/routing/app"
	"github.com/nexocrm/waroute/internal/routing/domain"
	"github.com/nexocrm/waroute/internal/routing/provider"
)

type InstanceHandler struct {
	instances  *app.InstanceService
	registry   *app.RegistryService
	assignment *app.AssignmentService
	logs       domain.WebhookLogRepository
	logger     *slog.Logger
	batchSize  int
}

func NewInstanceHandler(instances *app.InstanceService, registry *app.RegistryService, assignment *app.AssignmentService, logs domain.WebhookLogRepository, logger *slog.Logger, batchSize int) *InstanceHandler {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &InstanceHandler{
		instances:  instances,
		registry:   registry,
		assignment: assignment,
		logs:       logs,
		logger:     logger.With("handler", "instance"),
		batchSize:  batchSize,
	}
}

// RegisterRoutes owns the /instances subtree; agent binding routes live under
// it, so the agent handler registers here too.
func (h *InstanceHandler) RegisterRoutes(r chi.Router, agents *AgentHandler) {
	r.Route("/instances", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.ListByTenant)
		r.Route("/{instanceID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.Deactivate)
			r.Get("/qr", h.FetchQR)
			r.Get("/connection", h.FetchStatus)
			r.Put("/templates/{operation}", h.PutTemplate)
			r.Post("/auto-assign", h.AutoAssign)
			r.Get("/stats", h.Stats)
			r.Get("/webhook-logs", h.WebhookLogs)
			r.Route("/agents", func(r chi.Router) {
				r.Get("/", agents.List)
				r.Put("/{userID}", agents.Update)
				r.Put("/{userID}/presence", agents.SetPresence)
				r.Get("/{userID}/stats", h.AgentStats)
			})
		})
	})
}

func (h *InstanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createInstanceRequest
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	inst, err := h.instances.Create(r.Context(), req.TenantID, req.Name, req.Provider, req.APIBaseURL, req.Auth, req.WebhookSecret)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, inst)
}

func (h *InstanceHandler) ListByTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		respondError(w, r, h.logger, fmt.Errorf("%w: tenant_id is required", domain.ErrValidation))
		return
	}
	list, err := h.instances.ListByTenant(r.Context(), tenantID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"instances": list})
}

func (h *InstanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "instanceID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	inst, err := h.instances.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, inst)
}

func (h *InstanceHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "instanceID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := h.instances.Deactivate(r.Context(), id); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *InstanceHandler) FetchQR(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "instanceID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	qr, err := h.instances.FetchQR(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"qr": qr})
}

func (h *InstanceHandler) FetchStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "instanceID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	status, err := h.instances.FetchStatus(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"connection": status})
}

func (h *InstanceHandler) PutTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "instanceID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	op := provider.OperationType(chi.URLParam(r, "operation"))
	var req putTemplateRequest
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := h.instances.PutTemplate(r.Context(), id, op, &req.Template); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

func (h *InstanceHandler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "instanceID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	req := autoAssignRequest{BatchSize: h.batchSize}
	if r.ContentLength > 0 {
		if err := decodeValid(r, &req); err != nil {
			respondError(w, r, h.logger, err)
			return
		}
	}
	result, err := h.assignment.AutoAssign(r.Context(), id, req.BatchSize)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *InstanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "instanceID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	stats, err := h.registry.StatsByInstance(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *InstanceHandler) AgentStats(w http.ResponseWriter, r *http.Request) {
	instanceID, err := pathUUID(r, "instanceID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	userID, err := pathUUID(r, "userID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	stats, err := h.registry.StatsByAgent(r.Context(), instanceID, userID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *InstanceHandler) WebhookLogs(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "instanceID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.logs.ListByInstance(r.Context(), id, limit)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"webhook_logs": logs})
}
