package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nexocrm/waroute/internal/platform/messagebroker"
	"github.com/nexocrm/waroute/internal/routing/domain"
)

// EventPublisher pushes domain events to whatever keeps agent UIs current.
// All methods are best effort: implementations log failures and never return
// them to the caller.
type EventPublisher interface {
	MessageReceived(ctx context.Context, instanceID uuid.UUID, msg *domain.Message)
	ConversationAssigned(ctx context.Context, instanceID uuid.UUID, conv *domain.Conversation)
	MessageStatusChanged(ctx context.Context, instanceID uuid.UUID, msgID uuid.UUID, status domain.DeliveryStatus)
	InstanceConnectionChanged(ctx context.Context, instanceID uuid.UUID, status domain.ConnectionStatus)
}

// NatsEventPublisher publishes events on per-instance subjects.
type NatsEventPublisher struct {
	client *messagebroker.NatsClient
	logger *slog.Logger
}

func NewNatsEventPublisher(client *messagebroker.NatsClient, logger *slog.Logger) *NatsEventPublisher {
	return &NatsEventPublisher{client: client, logger: logger.With("component", "event_publisher")}
}

func (p *NatsEventPublisher) publish(ctx context.Context, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.ErrorContext(ctx, "error encoding event", "subject", subject, "error", err)
		return
	}
	if err := p.client.Publish(ctx, subject, data); err != nil {
		p.logger.WarnContext(ctx, "error publishing event", "subject", subject, "error", err)
	}
}

func (p *NatsEventPublisher) MessageReceived(ctx context.Context, instanceID uuid.UUID, msg *domain.Message) {
	p.publish(ctx, fmt.Sprintf("chat.message.received.%s", instanceID), msg)
}

func (p *NatsEventPublisher) ConversationAssigned(ctx context.Context, instanceID uuid.UUID, conv *domain.Conversation) {
	p.publish(ctx, fmt.Sprintf("chat.conversation.assigned.%s", instanceID), conv)
}

func (p *NatsEventPublisher) MessageStatusChanged(ctx context.Context, instanceID uuid.UUID, msgID uuid.UUID, status domain.DeliveryStatus) {
	p.publish(ctx, fmt.Sprintf("chat.message.status.%s", instanceID), map[string]any{
		"message_id": msgID, "status": status,
	})
}

func (p *NatsEventPublisher) InstanceConnectionChanged(ctx context.Context, instanceID uuid.UUID, status domain.ConnectionStatus) {
	p.publish(ctx, fmt.Sprintf("chat.instance.connection.%s", instanceID), map[string]any{
		"instance_id": instanceID, "status": status,
	})
}

// NoopEventPublisher is used when the broker is not configured.
type NoopEventPublisher struct{}

func (NoopEventPublisher) MessageReceived(context.Context, uuid.UUID, *domain.Message)             {}
func (NoopEventPublisher) ConversationAssigned(context.Context, uuid.UUID, *domain.Conversation)   {}
func (NoopEventPublisher) MessageStatusChanged(context.Context, uuid.UUID, uuid.UUID, domain.DeliveryStatus) {
}
func (NoopEventPublisher) InstanceConnectionChanged(context.Context, uuid.UUID, domain.ConnectionStatus) {
}
