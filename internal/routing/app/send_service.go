package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nexocrm/waroute/internal/routing/domain"
	"github.com/nexocrm/waroute/internal/routing/provider"
)

// ProviderInvoker is the adapter surface the send pipeline needs. Satisfied
// by *provider.Adapter.
type ProviderInvoker interface {
	Invoke(ctx context.Context, inst *domain.Instance, op provider.OperationType, data map[string]string) (*provider.InvokeResult, error)
}

// SendRequest is one outbound message. MediaURL empty means plain text.
type SendRequest struct {
	ConversationID uuid.UUID
	AgentID        uuid.UUID
	Text           string
	Type           domain.MessageType
	MediaURL       string
	MediaFilename  string
	MediaMimeType  string
	MediaSize      int64
}

// SendService records outbound messages and pushes them through the provider
// adapter. The message row exists before the provider is called; a provider
// failure marks it failed with the captured reason and leaves the
// conversation's routing state alone.
type SendService struct {
	tx        domain.TxManager
	convs     domain.ConversationRepository
	instances domain.InstanceRepository
	bindings  domain.AgentBindingRepository
	messages  domain.MessageRepository
	ledger    *LedgerService
	invoker   ProviderInvoker
	logger    *slog.Logger
}

func NewSendService(tx domain.TxManager, convs domain.ConversationRepository, instances domain.InstanceRepository, bindings domain.AgentBindingRepository, messages domain.MessageRepository, ledger *LedgerService, invoker ProviderInvoker, logger *slog.Logger) *SendService {
	return &SendService{
		tx:        tx,
		convs:     convs,
		instances: instances,
		bindings:  bindings,
		messages:  messages,
		ledger:    ledger,
		invoker:   invoker,
		logger:    logger.With("service", "send"),
	}
}

// SendText sends a plain text message.
func (s *SendService) SendText(ctx context.Context, conversationID, agentID uuid.UUID, text string) (*domain.Message, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", domain.ErrValidation)
	}
	return s.send(ctx, SendRequest{
		ConversationID: conversationID,
		AgentID:        agentID,
		Text:           text,
		Type:           domain.TypeText,
	})
}

// SendMedia sends a media message by URL reference.
func (s *SendService) SendMedia(ctx context.Context, req SendRequest) (*domain.Message, error) {
	if req.MediaURL == "" {
		return nil, fmt.Errorf("%w: media_url is required", domain.ErrValidation)
	}
	if !req.Type.Valid() || req.Type == domain.TypeText {
		return nil, fmt.Errorf("%w: invalid media type %q", domain.ErrValidation, req.Type)
	}
	return s.send(ctx, req)
}

func (s *SendService) send(ctx context.Context, req SendRequest) (*domain.Message, error) {
	conv, err := s.convs.GetByID(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	inst, err := s.instances.GetByID(ctx, conv.InstanceID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, conv, req.AgentID); err != nil {
		return nil, err
	}

	msg := domain.NewMessage(conv.ID, conv.InstanceID, domain.DirectionOutbound, req.Type)
	msg.Content = req.Text
	msg.MediaURL = req.MediaURL
	msg.MediaFilename = req.MediaFilename
	msg.MediaMimeType = req.MediaMimeType
	msg.MediaSize = req.MediaSize
	msg.SenderAgentID = &req.AgentID
	if err := s.ledger.Record(ctx, msg); err != nil {
		return nil, err
	}

	op := provider.OpSendText
	if req.Type != domain.TypeText {
		op = provider.OpSendMedia
	}
	result, err := s.invoker.Invoke(ctx, inst, op, s.tokenData(conv, req))
	if err != nil {
		// configuration problem, not a provider failure
		s.failMessage(ctx, msg, err.Error())
		return msg, err
	}
	providerInvocations.WithLabelValues(string(op), outcomeLabel(result.OK)).Inc()

	if !result.OK {
		s.failMessage(ctx, msg, result.ErrorMessage)
		return msg, nil
	}

	if result.ProviderMessageID != "" {
		if err := s.messages.SetProviderMessageID(ctx, msg.ID, result.ProviderMessageID); err != nil {
			s.logger.WarnContext(ctx, "error storing provider message id",
				"message_id", msg.ID, "error", err)
		} else {
			msg.ProviderMessageID = result.ProviderMessageID
		}
	}
	if err := s.messages.UpdateDeliveryStatus(ctx, msg.ID, domain.StatusSent, nil, time.Now().UTC()); err != nil {
		s.logger.WarnContext(ctx, "error marking message sent", "message_id", msg.ID, "error", err)
	} else {
		msg.Status = domain.StatusSent
	}

	s.markInProgress(ctx, conv, req.AgentID)
	return msg, nil
}

// authorize requires can_send_messages plus being the assignee or a
// supervisor. Sending into an unassigned conversation is allowed; the agent
// picks it up through assignment, not implicitly here.
func (s *SendService) authorize(ctx context.Context, conv *domain.Conversation, agentID uuid.UUID) error {
	binding, err := s.bindings.GetByUserAndInstance(ctx, agentID, conv.InstanceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: agent is not bound to this instance", domain.ErrAccessDenied)
		}
		return err
	}
	if !binding.CanSendMessages {
		return fmt.Errorf("%w: agent cannot send messages", domain.ErrAccessDenied)
	}
	if binding.IsSupervisor {
		return nil
	}
	if conv.AssignedAgentID != nil && *conv.AssignedAgentID != agentID {
		return fmt.Errorf("%w: conversation is assigned to another agent", domain.ErrAccessDenied)
	}
	return nil
}

// markInProgress moves assigned to in_progress on the assignee's first
// successful outbound. Best effort; a miss leaves the status one step behind.
func (s *SendService) markInProgress(ctx context.Context, conv *domain.Conversation, agentID uuid.UUID) {
	if conv.Status != domain.ConversationAssigned {
		return
	}
	if conv.AssignedAgentID == nil || *conv.AssignedAgentID != agentID {
		return
	}
	if err := s.convs.UpdateStatus(ctx, conv.ID, domain.ConversationInProgress, false); err != nil {
		s.logger.WarnContext(ctx, "error marking conversation in progress",
			"conversation_id", conv.ID, "error", err)
	}
}

func (s *SendService) failMessage(ctx context.Context, msg *domain.Message, reason string) {
	if err := s.messages.UpdateDeliveryStatus(ctx, msg.ID, domain.StatusFailed, &reason, time.Now().UTC()); err != nil {
		s.logger.ErrorContext(ctx, "error marking message failed", "message_id", msg.ID, "error", err)
		return
	}
	msg.Status = domain.StatusFailed
	msg.ErrorMessage = &reason
}

func (s *SendService) tokenData(conv *domain.Conversation, req SendRequest) map[string]string {
	data := map[string]string{
		"phone":   conv.Phone,
		"message": req.Text,
	}
	if req.MediaURL != "" {
		data["mediaURL"] = req.MediaURL
		data["fileName"] = req.MediaFilename
		data["mimeType"] = req.MediaMimeType
		data["caption"] = req.Text
		data["mediaKind"] = string(req.Type)
		if req.MediaSize > 0 {
			data["mediaSize"] = strconv.FormatInt(req.MediaSize, 10)
		}
	}
	return data
}
