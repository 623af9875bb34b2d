package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexocrm/waroute/internal/routing/domain"
	"github.com/nexocrm/waroute/internal/routing/normalizer"
)

// WebhookSecretHeader carries the instance's optional shared secret.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookService is the inbound pipeline: capture the raw delivery, verify,
// normalize, dispatch. Exactly one WebhookLog row is written per delivery and
// the handler acks once that row is durable; processing failures are an
// outcome on the row, not an error to the provider.
type WebhookService struct {
	instances  domain.InstanceRepository
	logs       domain.WebhookLogRepository
	norm       *normalizer.Normalizer
	ledger     *LedgerService
	registry   *RegistryService
	assignment *AssignmentService
	publisher  EventPublisher
	logger     *slog.Logger
	batchSize  int
}

func NewWebhookService(instances domain.InstanceRepository, logs domain.WebhookLogRepository, norm *normalizer.Normalizer, ledger *LedgerService, registry *RegistryService, assignment *AssignmentService, publisher EventPublisher, logger *slog.Logger, batchSize int) *WebhookService {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &WebhookService{
		instances:  instances,
		logs:       logs,
		norm:       norm,
		ledger:     ledger,
		registry:   registry,
		assignment: assignment,
		publisher:  publisher,
		logger:     logger.With("service", "webhook"),
		batchSize:  batchSize,
	}
}

// outcome is one delivery's processing result, attached to its log row.
type outcome struct {
	kind           domain.EventKind
	processed      bool
	reason         string
	conversationID *uuid.UUID
	messageID      *uuid.UUID
}

// ProcessWebhook handles one delivery for the instance addressed by key.
// Returns ErrNotFound for an unknown key and an error when the log row could
// not be written; everything after the capture is absorbed into the row.
func (s *WebhookService) ProcessWebhook(ctx context.Context, instanceKey string, payload []byte, headers map[string]string) error {
	inst, err := s.instances.GetByWebhookKey(ctx, instanceKey)
	if err != nil {
		return err
	}
	webhooksReceived.WithLabelValues(string(inst.Provider)).Inc()
	timer := prometheus.NewTimer(webhookDuration)
	defer timer.ObserveDuration()

	logRow := domain.NewWebhookLog(&inst.ID, payload, headers)
	if err := s.logs.Create(ctx, logRow); err != nil {
		return fmt.Errorf("capturing webhook delivery: %w", err)
	}

	out := s.dispatch(ctx, inst, payload, headers)
	if err := s.logs.AttachOutcome(ctx, logRow.ID, out.kind, out.processed, out.reason, out.conversationID, out.messageID); err != nil {
		s.logger.ErrorContext(ctx, "error attaching webhook outcome", "log_id", logRow.ID, "error", err)
	}
	webhooksProcessed.WithLabelValues(string(out.kind), outcomeLabel(out.processed)).Inc()

	if !out.processed {
		s.logger.WarnContext(ctx, "webhook not processed",
			"instance_id", inst.ID, "event_kind", out.kind, "reason", out.reason)
	}
	return nil
}

func (s *WebhookService) dispatch(ctx context.Context, inst *domain.Instance, payload []byte, headers map[string]string) outcome {
	if inst.WebhookSecret != "" {
		got := headers[WebhookSecretHeader]
		if subtle.ConstantTimeCompare([]byte(got), []byte(inst.WebhookSecret)) != 1 {
			return outcome{kind: domain.EventOther, reason: "invalid webhook secret"}
		}
	}

	event, err := s.norm.Normalize(inst.Provider, payload, time.Now().UTC())
	if err != nil {
		return outcome{kind: domain.EventOther, reason: err.Error()}
	}

	switch event.Kind {
	case domain.EventMessage:
		return s.handleMessage(ctx, inst, event.Message)
	case domain.EventStatus:
		return s.handleStatus(ctx, inst, event.Status)
	case domain.EventConnection:
		return s.handleConnection(ctx, inst, event.Connection)
	}
	return outcome{kind: domain.EventOther, reason: "unrecognized payload shape"}
}

func (s *WebhookService) handleMessage(ctx context.Context, inst *domain.Instance, ev *domain.MessageEvent) outcome {
	out := outcome{kind: domain.EventMessage}

	// idempotency: a redelivered provider message id is a logged no-op,
	// recorded as unprocessed since nothing was written
	if existing, err := s.ledger.messages.GetByProviderMessageID(ctx, inst.ID, ev.ProviderMessageID); err == nil {
		out.reason = "already processed"
		out.conversationID = &existing.ConversationID
		out.messageID = &existing.ID
		return out
	} else if !errors.Is(err, domain.ErrNotFound) {
		out.reason = err.Error()
		return out
	}

	conv, created, err := s.registry.FindOrCreateByPhone(ctx, inst.ID, ev.Phone, ev.SenderName)
	if err != nil {
		out.reason = err.Error()
		return out
	}
	out.conversationID = &conv.ID

	direction := domain.DirectionInbound
	if ev.FromMe {
		// echo of a message sent outside the CRM
		direction = domain.DirectionOutbound
	}
	msg := domain.NewMessage(conv.ID, inst.ID, direction, ev.Type)
	msg.ProviderMessageID = ev.ProviderMessageID
	msg.Content = ev.Text
	msg.MediaURL = ev.MediaURL
	msg.MediaFilename = ev.MediaFilename
	msg.MediaMimeType = ev.MediaMimeType
	msg.MediaSize = ev.MediaSize
	msg.SenderName = ev.SenderName
	msg.Status = domain.StatusSent
	if !ev.Timestamp.IsZero() {
		msg.ProviderTimestamp = ev.Timestamp
	}

	if err := s.ledger.Record(ctx, msg); err != nil {
		if errors.Is(err, domain.ErrDuplicateEntry) {
			out.reason = "already processed"
			return out
		}
		out.reason = err.Error()
		return out
	}
	out.messageID = &msg.ID

	if (created || conv.Status == domain.ConversationUnassigned) && direction == domain.DirectionInbound {
		if _, err := s.assignment.AutoAssign(ctx, inst.ID, s.batchSize); err != nil {
			s.logger.WarnContext(ctx, "error auto-assigning after inbound message",
				"instance_id", inst.ID, "error", err)
		}
	}

	out.processed = true
	return out
}

func (s *WebhookService) handleStatus(ctx context.Context, inst *domain.Instance, ev *domain.StatusEvent) outcome {
	out := outcome{kind: domain.EventStatus}
	err := s.ledger.UpdateStatus(ctx, inst.ID, ev.ProviderMessageID, ev.Status, ev.ErrorMessage)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// report for a message we never saw: accepted, dropped
			out.reason = "message not found"
			return out
		}
		out.reason = err.Error()
		return out
	}
	out.processed = true
	return out
}

func (s *WebhookService) handleConnection(ctx context.Context, inst *domain.Instance, ev *domain.ConnectionEvent) outcome {
	out := outcome{kind: domain.EventConnection}
	if err := s.instances.UpdateConnection(ctx, inst.ID, ev.Status, ev.Phone); err != nil {
		out.reason = err.Error()
		return out
	}
	s.publisher.InstanceConnectionChanged(ctx, inst.ID, ev.Status)
	out.processed = true
	return out
}
