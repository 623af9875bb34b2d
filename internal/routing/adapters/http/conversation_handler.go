package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexocrm/waroute/internal/routing/app"
	"github.com/nexocrm/waroute/internal/routing/domain"
)

// AgentIDHeader carries the acting agent's identity. Authentication lives in
// the CRM gateway in front of this service.
const AgentIDHeader = "X-Agent-ID"

type ConversationHandler struct {
	registry *app.RegistryService
	ledger   *app.LedgerService
	sender   *app.SendService
	logger   *slog.Logger
}

func NewConversationHandler(registry *app.RegistryService, ledger *app.LedgerService, sender *app.SendService, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{
		registry: registry,
		ledger:   ledger,
		sender:   sender,
		logger:   logger.With("handler", "conversation"),
	}
}

func (h *ConversationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.List)
		r.Route("/{conversationID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Get("/messages", h.ListMessages)
			r.Delete("/messages", h.PurgeMessages)
			r.Get("/transfers", h.ListTransfers)
			r.Post("/assign", h.Assign)
			r.Post("/transfer", h.Transfer)
			r.Post("/resolve", h.Resolve)
			r.Post("/archive", h.Archive)
			r.Post("/read", h.MarkRead)
			r.Post("/messages/text", h.SendText)
			r.Post("/messages/media", h.SendMedia)
		})
	})
}

func actorID(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(AgentIDHeader)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: missing %s header", domain.ErrValidation, AgentIDHeader)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed %s header", domain.ErrValidation, AgentIDHeader)
	}
	return id, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed %s", domain.ErrValidation, name)
	}
	return id, nil
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	instanceID, err := uuid.Parse(q.Get("instance_id"))
	if err != nil {
		respondError(w, r, h.logger, fmt.Errorf("%w: instance_id is required", domain.ErrValidation))
		return
	}
	filter := domain.ConversationFilter{
		InstanceID:      instanceID,
		Search:          q.Get("search"),
		UnreadOnly:      q.Get("unread_only") == "true",
		IncludeArchived: q.Get("include_archived") == "true",
	}
	if s := q.Get("status"); s != "" {
		status := domain.ConversationStatus(s)
		if !status.Valid() {
			respondError(w, r, h.logger, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, s))
			return
		}
		filter.Status = &status
	}
	if s := q.Get("assigned_agent_id"); s != "" {
		agentID, err := uuid.Parse(s)
		if err != nil {
			respondError(w, r, h.logger, fmt.Errorf("%w: malformed assigned_agent_id", domain.ErrValidation))
			return
		}
		filter.AssignedAgentID = &agentID
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	convs, err := h.registry.List(r.Context(), filter)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "conversationID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	conv, err := h.registry.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "conversationID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	messages, err := h.ledger.ListMessages(r.Context(), id, limit, offset)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *ConversationHandler) PurgeMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "conversationID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	n, err := h.registry.PurgeMessages(r.Context(), id, actor)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"purged": n})
}

func (h *ConversationHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "conversationID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	transfers, err := h.registry.ListTransfers(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

func (h *ConversationHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "conversationID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var req assignRequest
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := h.registry.Assign(r.Context(), id, req.AgentID, &actor); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

func (h *ConversationHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "conversationID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var req transferRequest
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := h.registry.Transfer(r.Context(), id, req.ToAgentID, actor, req.Reason, req.Note); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

func (h *ConversationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.registry.Resolve, "resolved")
}

func (h *ConversationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.registry.Archive, "archived")
}

func (h *ConversationHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, conversationID, actorID uuid.UUID) error, label string) {
	id, err := pathUUID(r, "conversationID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := fn(r.Context(), id, actor); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": label})
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "conversationID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var req markReadRequest
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	n, err := h.registry.MarkRead(r.Context(), id, actor, req.MessageIDs)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"marked_read": n})
}

func (h *ConversationHandler) SendText(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "conversationID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var req sendTextRequest
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	msg, err := h.sender.SendText(r.Context(), id, actor, req.Text)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

func (h *ConversationHandler) SendMedia(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "conversationID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var req sendMediaRequest
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	msg, err := h.sender.SendMedia(r.Context(), app.SendRequest{
		ConversationID: id,
		AgentID:        actor,
		Text:           req.Caption,
		Type:           req.Type,
		MediaURL:       req.MediaURL,
		MediaFilename:  req.MediaFilename,
		MediaMimeType:  req.MediaMimeType,
		MediaSize:      req.MediaSize,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}
