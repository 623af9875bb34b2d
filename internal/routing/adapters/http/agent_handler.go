package http

import (
	"log/slog"
	"net/http"

	"github.com/nexocrm/waroute/internal/routing/app"
)

type AgentHandler struct {
	agents *app.AgentService
	logger *slog.Logger
}

func NewAgentHandler(agents *app.AgentService, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{agents: agents, logger: logger.With("handler", "agent")}
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	instanceID, err := pathUUID(r, "instanceID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	bindings, err := h.agents.ListByInstance(r.Context(), instanceID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"agents": bindings})
}

func (h *AgentHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	actor, err := actorID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var req updateBindingRequest
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	binding, err := h.agents.UpdateBinding(r.Context(), actor, userID, instanceID, app.BindingUpdate{
		CanReceiveChats:    req.CanReceiveChats,
		CanSendMessages:    req.CanSendMessages,
		CanTransferChats:   req.CanTransferChats,
		IsSupervisor:       req.IsSupervisor,
		MaxConcurrentChats: req.MaxConcurrentChats,
		AutoAssignNewChats: req.AutoAssignNewChats,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, binding)
}

// SetPresence is self-service: the path userID must match the acting agent.
func (h *AgentHandler) SetPresence(w http.ResponseWriter, r *http.Request) {
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
	actor, err := actorID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if actor != userID {
		respondJSON(w, http.StatusForbidden, errorResponse{Error: "presence is self-service"})
		return
	}
	var req presenceRequest
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	binding, err := h.agents.SetPresence(r.Context(), userID, instanceID, *req.Online)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, binding)
}
