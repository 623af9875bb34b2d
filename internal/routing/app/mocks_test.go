package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/nexocrm/waroute/internal/routing/domain"
	"github.com/nexocrm/waroute/internal/routing/provider"
)

// fakeTxManager runs the function directly; services under test see one
// logical transaction.
type fakeTxManager struct{}

func (fakeTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type MockConversationRepository struct{ mock.Mock }

func (m *MockConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	return m.Called(ctx, conv).Error(0)
}

func (m *MockConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if c := args.Get(0); c != nil {
		return c.(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepository) GetByIDLocked(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if c := args.Get(0); c != nil {
		return c.(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepository) GetByInstanceAndPhone(ctx context.Context, instanceID uuid.UUID, phone string) (*domain.Conversation, error) {
	args := m.Called(ctx, instanceID, phone)
	if c := args.Get(0); c != nil {
		return c.(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepository) List(ctx context.Context, f domain.ConversationFilter) ([]*domain.Conversation, error) {
	args := m.Called(ctx, f)
	if c := args.Get(0); c != nil {
		return c.([]*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepository) ListUnassigned(ctx context.Context, instanceID uuid.UUID, limit int) ([]*domain.Conversation, error) {
	args := m.Called(ctx, instanceID, limit)
	if c := args.Get(0); c != nil {
		return c.([]*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepository) UpdateAssignment(ctx context.Context, id uuid.UUID, agentID *uuid.UUID, status domain.ConversationStatus) error {
	return m.Called(ctx, id, agentID, status).Error(0)
}

func (m *MockConversationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ConversationStatus, archived bool) error {
	return m.Called(ctx, id, status, archived).Error(0)
}

func (m *MockConversationRepository) ApplyMessage(ctx context.Context, id uuid.UUID, inbound bool, preview string, msgType domain.MessageType, at time.Time) error {
	return m.Called(ctx, id, inbound, preview, msgType, at).Error(0)
}

func (m *MockConversationRepository) ResetUnread(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockConversationRepository) CountAssignedToAgent(ctx context.Context, instanceID, agentID uuid.UUID) (int, error) {
	args := m.Called(ctx, instanceID, agentID)
	return args.Int(0), args.Error(1)
}

func (m *MockConversationRepository) StatsByInstance(ctx context.Context, instanceID uuid.UUID) (*domain.InstanceStats, error) {
	args := m.Called(ctx, instanceID)
	if c := args.Get(0); c != nil {
		return c.(*domain.InstanceStats), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepository) StatsByAgent(ctx context.Context, instanceID, agentID uuid.UUID) (*domain.AgentStats, error) {
	args := m.Called(ctx, instanceID, agentID)
	if c := args.Get(0); c != nil {
		return c.(*domain.AgentStats), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockMessageRepository struct{ mock.Mock }

func (m *MockMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepository) GetByProviderMessageID(ctx context.Context, instanceID uuid.UUID, providerMessageID string) (*domain.Message, error) {
	args := m.Called(ctx, instanceID, providerMessageID)
	if v := args.Get(0); v != nil {
		return v.(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepository) GetByProviderMessageIDLocked(ctx context.Context, instanceID uuid.UUID, providerMessageID string) (*domain.Message, error) {
	args := m.Called(ctx, instanceID, providerMessageID)
	if v := args.Get(0); v != nil {
		return v.(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID, limit, offset)
	if v := args.Get(0); v != nil {
		return v.([]*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepository) UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status domain.DeliveryStatus, errorMessage *string, at time.Time) error {
	return m.Called(ctx, id, status, errorMessage, at).Error(0)
}

func (m *MockMessageRepository) SetProviderMessageID(ctx context.Context, id uuid.UUID, providerMessageID string) error {
	return m.Called(ctx, id, providerMessageID).Error(0)
}

func (m *MockMessageRepository) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	args := m.Called(ctx, conversationID, readerID, ids, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepository) Purge(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepository) CountUnread(ctx context.Context, conversationID uuid.UUID) (int, error) {
	args := m.Called(ctx, conversationID)
	return args.Int(0), args.Error(1)
}

type MockAgentBindingRepository struct{ mock.Mock }

func (m *MockAgentBindingRepository) GetByUserAndInstance(ctx context.Context, userID, instanceID uuid.UUID) (*domain.AgentBinding, error) {
	args := m.Called(ctx, userID, instanceID)
	if v := args.Get(0); v != nil {
		return v.(*domain.AgentBinding), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAgentBindingRepository) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]*domain.AgentBinding, error) {
	args := m.Called(ctx, instanceID)
	if v := args.Get(0); v != nil {
		return v.([]*domain.AgentBinding), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAgentBindingRepository) ListEligible(ctx context.Context, instanceID uuid.UUID) ([]*domain.AgentLoad, error) {
	args := m.Called(ctx, instanceID)
	if v := args.Get(0); v != nil {
		return v.([]*domain.AgentLoad), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAgentBindingRepository) Upsert(ctx context.Context, b *domain.AgentBinding) error {
	return m.Called(ctx, b).Error(0)
}

func (m *MockAgentBindingRepository) TouchActivity(ctx context.Context, userID, instanceID uuid.UUID, at time.Time) error {
	return m.Called(ctx, userID, instanceID, at).Error(0)
}

type MockTransferRepository struct{ mock.Mock }

func (m *MockTransferRepository) Create(ctx context.Context, t *domain.Transfer) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockTransferRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]*domain.Transfer, error) {
	args := m.Called(ctx, conversationID)
	if v := args.Get(0); v != nil {
		return v.([]*domain.Transfer), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockInstanceRepository struct{ mock.Mock }

func (m *MockInstanceRepository) Create(ctx context.Context, inst *domain.Instance) error {
	return m.Called(ctx, inst).Error(0)
}

func (m *MockInstanceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Instance, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*domain.Instance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockInstanceRepository) GetByWebhookKey(ctx context.Context, key string) (*domain.Instance, error) {
	args := m.Called(ctx, key)
	if v := args.Get(0); v != nil {
		return v.(*domain.Instance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockInstanceRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.Instance, error) {
	args := m.Called(ctx, tenantID)
	if v := args.Get(0); v != nil {
		return v.([]*domain.Instance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockInstanceRepository) UpdateConnection(ctx context.Context, id uuid.UUID, status domain.ConnectionStatus, phone string) error {
	return m.Called(ctx, id, status, phone).Error(0)
}

func (m *MockInstanceRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type MockWebhookLogRepository struct{ mock.Mock }

func (m *MockWebhookLogRepository) Create(ctx context.Context, l *domain.WebhookLog) error {
	return m.Called(ctx, l).Error(0)
}

func (m *MockWebhookLogRepository) AttachOutcome(ctx context.Context, id uuid.UUID, kind domain.EventKind, processed bool, failureReason string, conversationID, messageID *uuid.UUID) error {
	return m.Called(ctx, id, kind, processed, failureReason, conversationID, messageID).Error(0)
}

func (m *MockWebhookLogRepository) ListByInstance(ctx context.Context, instanceID uuid.UUID, limit int) ([]*domain.WebhookLog, error) {
	args := m.Called(ctx, instanceID, limit)
	if v := args.Get(0); v != nil {
		return v.([]*domain.WebhookLog), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockProviderInvoker struct{ mock.Mock }

func (m *MockProviderInvoker) Invoke(ctx context.Context, inst *domain.Instance, op provider.OperationType, data map[string]string) (*provider.InvokeResult, error) {
	args := m.Called(ctx, inst, op, data)
	if v := args.Get(0); v != nil {
		return v.(*provider.InvokeResult), args.Error(1)
	}
	return nil, args.Error(1)
}
