package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TxManager runs a function within one database transaction. Operations
// performed through repositories inside fn share the transaction; the
// postgres implementation carries it in the context.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// InstanceRepository persists tenant messaging lines.
type InstanceRepository interface {
	Create(ctx context.Context, inst *Instance) error
	GetByID(ctx context.Context, id uuid.UUID) (*Instance, error)
	// GetByWebhookKey resolves the instance addressed by a webhook URL path key.
	GetByWebhookKey(ctx context.Context, key string) (*Instance, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Instance, error)
	UpdateConnection(ctx context.Context, id uuid.UUID, status ConnectionStatus, phone string) error
	// Deactivate soft-disables the instance; instances are never hard-deleted.
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// ConversationFilter narrows conversation listings. Archived conversations
// are excluded unless IncludeArchived is set.
type ConversationFilter struct {
	InstanceID      uuid.UUID
	Status          *ConversationStatus
	AssignedAgentID *uuid.UUID
	UnreadOnly      bool
	Search          string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// ConversationRepository persists conversations and their counters.
type ConversationRepository interface {
	// Create returns ErrDuplicateEntry when (instance_id, phone) already exists.
	Create(ctx context.Context, conv *Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	// GetByIDLocked reads the row FOR UPDATE; only meaningful inside a
	// TxManager transaction.
	GetByIDLocked(ctx context.Context, id uuid.UUID) (*Conversation, error)
	GetByInstanceAndPhone(ctx context.Context, instanceID uuid.UUID, phone string) (*Conversation, error)
	List(ctx context.Context, f ConversationFilter) ([]*Conversation, error)
	ListUnassigned(ctx context.Context, instanceID uuid.UUID, limit int) ([]*Conversation, error)
	UpdateAssignment(ctx context.Context, id uuid.UUID, agentID *uuid.UUID, status ConversationStatus) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status ConversationStatus, archived bool) error
	// ApplyMessage atomically bumps the message counter, bumps unread for
	// inbound, and refreshes the last-message preview columns.
	ApplyMessage(ctx context.Context, id uuid.UUID, inbound bool, preview string, msgType MessageType, at time.Time) error
	ResetUnread(ctx context.Context, id uuid.UUID) error
	CountAssignedToAgent(ctx context.Context, instanceID, agentID uuid.UUID) (int, error)
	StatsByInstance(ctx context.Context, instanceID uuid.UUID) (*InstanceStats, error)
	StatsByAgent(ctx context.Context, instanceID, agentID uuid.UUID) (*AgentStats, error)
}

// MessageRepository persists the message ledger.
type MessageRepository interface {
	// Create returns ErrDuplicateEntry when (instance_id, provider_message_id)
	// already exists.
	Create(ctx context.Context, msg *Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)
	// GetByProviderMessageID returns ErrNotFound when the id has not been seen
	// on this instance.
	GetByProviderMessageID(ctx context.Context, instanceID uuid.UUID, providerMessageID string) (*Message, error)
	// GetByProviderMessageIDLocked reads the row FOR UPDATE; only meaningful
	// inside a TxManager transaction.
	GetByProviderMessageIDLocked(ctx context.Context, instanceID uuid.UUID, providerMessageID string) (*Message, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, error)
	UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status DeliveryStatus, errorMessage *string, at time.Time) error
	SetProviderMessageID(ctx context.Context, id uuid.UUID, providerMessageID string) error
	// MarkRead flags matching inbound unread messages; empty ids means all
	// unread in the conversation. Returns the number of messages flagged.
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error)
	// Purge removes every message of a conversation. Explicit agent action
	// only; nothing else deletes ledger rows.
	Purge(ctx context.Context, conversationID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, conversationID uuid.UUID) (int, error)
}

// AgentBindingRepository reads and mutates instance memberships.
type AgentBindingRepository interface {
	GetByUserAndInstance(ctx context.Context, userID, instanceID uuid.UUID) (*AgentBinding, error)
	ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]*AgentBinding, error)
	// ListEligible returns online, opted-in, receive-capable agents joined
	// with their current assigned count, ordered by load ascending then
	// least-recent activity first.
	ListEligible(ctx context.Context, instanceID uuid.UUID) ([]*AgentLoad, error)
	Upsert(ctx context.Context, b *AgentBinding) error
	TouchActivity(ctx context.Context, userID, instanceID uuid.UUID, at time.Time) error
}

// TransferRepository appends and lists assignment audit rows.
type TransferRepository interface {
	Create(ctx context.Context, t *Transfer) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]*Transfer, error)
}

// WebhookLogRepository captures raw webhook deliveries.
type WebhookLogRepository interface {
	Create(ctx context.Context, l *WebhookLog) error
	// AttachOutcome records the processing result exactly once.
	AttachOutcome(ctx context.Context, id uuid.UUID, kind EventKind, processed bool, failureReason string, conversationID, messageID *uuid.UUID) error
	ListByInstance(ctx context.Context, instanceID uuid.UUID, limit int) ([]*WebhookLog, error)
}
