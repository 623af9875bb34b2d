package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nexocrm/waroute/internal/routing/domain"
	"github.com/nexocrm/waroute/internal/routing/provider"
)

type sendTestComponents struct {
	service   *SendService
	convs     *MockConversationRepository
	instances *MockInstanceRepository
	bindings  *MockAgentBindingRepository
	messages  *MockMessageRepository
	invoker   *MockProviderInvoker
}

func setupSendTest(t *testing.T) sendTestComponents {
	t.Helper()
	convs := new(MockConversationRepository)
	instances := new(MockInstanceRepository)
	bindings := new(MockAgentBindingRepository)
	messages := new(MockMessageRepository)
	invoker := new(MockProviderInvoker)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := NewLedgerService(fakeTxManager{}, messages, convs, NoopEventPublisher{}, logger)
	service := NewSendService(fakeTxManager{}, convs, instances, bindings, messages, ledger, invoker, logger)
	return sendTestComponents{service: service, convs: convs, instances: instances, bindings: bindings, messages: messages, invoker: invoker}
}

func TestSendService_SendText(t *testing.T) {
	ctx := context.Background()

	t.Run("successful send marks the message sent with the provider id", func(t *testing.T) {
		deps := setupSendTest(t)
		inst := testInstance(domain.ProviderZAPI, "")
		agentID := uuid.New()
		conv := domain.NewConversation(inst.ID, "5511987654321", "Maria")
		conv.Status = domain.ConversationAssigned
		conv.AssignedAgentID = &agentID

		deps.convs.On("GetByID", mock.Anything, conv.ID).Return(conv, nil).Once()
		deps.instances.On("GetByID", mock.Anything, inst.ID).Return(inst, nil).Once()
		deps.bindings.On("GetByUserAndInstance", mock.Anything, agentID, inst.ID).Return(agentBinding(agentID, inst.ID), nil).Once()
		deps.messages.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
			return m.Direction == domain.DirectionOutbound && m.Status == domain.StatusPending && m.Content == "estamos verificando"
		})).Return(nil).Once()
		deps.convs.On("ApplyMessage", mock.Anything, conv.ID, false, "estamos verificando", domain.TypeText, mock.Anything).Return(nil).Once()
		deps.invoker.On("Invoke", mock.Anything, inst, provider.OpSendText, mock.MatchedBy(func(data map[string]string) bool {
			return data["phone"] == "5511987654321" && data["message"] == "estamos verificando"
		})).Return(&provider.InvokeResult{OK: true, StatusCode: 200, ProviderMessageID: "prov-77"}, nil).Once()
		deps.messages.On("SetProviderMessageID", mock.Anything, mock.Anything, "prov-77").Return(nil).Once()
		deps.messages.On("UpdateDeliveryStatus", mock.Anything, mock.Anything, domain.StatusSent, (*string)(nil), mock.Anything).Return(nil).Once()
		deps.convs.On("UpdateStatus", mock.Anything, conv.ID, domain.ConversationInProgress, false).Return(nil).Once()

		msg, err := deps.service.SendText(ctx, conv.ID, agentID, "estamos verificando")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSent, msg.Status)
		assert.Equal(t, "prov-77", msg.ProviderMessageID)
		deps.convs.AssertExpectations(t)
	})

	t.Run("provider failure marks the message failed and leaves routing alone", func(t *testing.T) {
		deps := setupSendTest(t)
		inst := testInstance(domain.ProviderZAPI, "")
		agentID := uuid.New()
		conv := domain.NewConversation(inst.ID, "5511987654321", "Maria")
		conv.Status = domain.ConversationAssigned
		conv.AssignedAgentID = &agentID

		deps.convs.On("GetByID", mock.Anything, conv.ID).Return(conv, nil).Once()
		deps.instances.On("GetByID", mock.Anything, inst.ID).Return(inst, nil).Once()
		deps.bindings.On("GetByUserAndInstance", mock.Anything, agentID, inst.ID).Return(agentBinding(agentID, inst.ID), nil).Once()
		deps.messages.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
		deps.convs.On("ApplyMessage", mock.Anything, conv.ID, false, mock.Anything, domain.TypeText, mock.Anything).Return(nil).Once()
		deps.invoker.On("Invoke", mock.Anything, inst, provider.OpSendText, mock.Anything).
			Return(&provider.InvokeResult{OK: false, StatusCode: 500, ErrorMessage: "instance disconnected"}, nil).Once()
		deps.messages.On("UpdateDeliveryStatus", mock.Anything, mock.Anything, domain.StatusFailed, mock.MatchedBy(func(reason *string) bool {
			return reason != nil && *reason == "instance disconnected"
		}), mock.Anything).Return(nil).Once()

		msg, err := deps.service.SendText(ctx, conv.ID, agentID, "oi")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, msg.Status)
		require.NotNil(t, msg.ErrorMessage)
		assert.Equal(t, "instance disconnected", *msg.ErrorMessage)
		deps.convs.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("agent without send permission is denied before anything is written", func(t *testing.T) {
		deps := setupSendTest(t)
		inst := testInstance(domain.ProviderZAPI, "")
		agentID := uuid.New()
		conv := domain.NewConversation(inst.ID, "5511987654321", "Maria")
		muted := agentBinding(agentID, inst.ID)
		muted.CanSendMessages = false

		deps.convs.On("GetByID", mock.Anything, conv.ID).Return(conv, nil).Once()
		deps.instances.On("GetByID", mock.Anything, inst.ID).Return(inst, nil).Once()
		deps.bindings.On("GetByUserAndInstance", mock.Anything, agentID, inst.ID).Return(muted, nil).Once()

		_, err := deps.service.SendText(ctx, conv.ID, agentID, "oi")
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
		deps.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("non-assignee cannot send into someone else's conversation", func(t *testing.T) {
		deps := setupSendTest(t)
		inst := testInstance(domain.ProviderZAPI, "")
		assignee, intruder := uuid.New(), uuid.New()
		conv := domain.NewConversation(inst.ID, "5511987654321", "Maria")
		conv.Status = domain.ConversationAssigned
		conv.AssignedAgentID = &assignee

		deps.convs.On("GetByID", mock.Anything, conv.ID).Return(conv, nil).Once()
		deps.instances.On("GetByID", mock.Anything, inst.ID).Return(inst, nil).Once()
		deps.bindings.On("GetByUserAndInstance", mock.Anything, intruder, inst.ID).Return(agentBinding(intruder, inst.ID), nil).Once()

		_, err := deps.service.SendText(ctx, conv.ID, intruder, "oi")
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
	})

	t.Run("empty text is rejected", func(t *testing.T) {
		deps := setupSendTest(t)
		_, err := deps.service.SendText(ctx, uuid.New(), uuid.New(), "")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestSendService_SendMedia(t *testing.T) {
	ctx := context.Background()

	t.Run("media send uses the media operation and tokens", func(t *testing.T) {
		deps := setupSendTest(t)
		inst := testInstance(domain.ProviderEvolution, "")
		agentID := uuid.New()
		conv := domain.NewConversation(inst.ID, "5511987654321", "Maria")
		conv.Status = domain.ConversationInProgress
		conv.AssignedAgentID = &agentID

		deps.convs.On("GetByID", mock.Anything, conv.ID).Return(conv, nil).Once()
		deps.instances.On("GetByID", mock.Anything, inst.ID).Return(inst, nil).Once()
		deps.bindings.On("GetByUserAndInstance", mock.Anything, agentID, inst.ID).Return(agentBinding(agentID, inst.ID), nil).Once()
		deps.messages.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
			return m.Type == domain.TypeDocument && m.MediaURL == "https://cdn.example.com/contract.pdf"
		})).Return(nil).Once()
		deps.convs.On("ApplyMessage", mock.Anything, conv.ID, false, "[document] contract.pdf", domain.TypeDocument, mock.Anything).Return(nil).Once()
		deps.invoker.On("Invoke", mock.Anything, inst, provider.OpSendMedia, mock.MatchedBy(func(data map[string]string) bool {
			return data["mediaURL"] == "https://cdn.example.com/contract.pdf" && data["fileName"] == "contract.pdf"
		})).Return(&provider.InvokeResult{OK: true, StatusCode: 201}, nil).Once()
		deps.messages.On("UpdateDeliveryStatus", mock.Anything, mock.Anything, domain.StatusSent, (*string)(nil), mock.Anything).Return(nil).Once()

		msg, err := deps.service.SendMedia(ctx, SendRequest{
			ConversationID: conv.ID,
			AgentID:        agentID,
			Type:           domain.TypeDocument,
			MediaURL:       "https://cdn.example.com/contract.pdf",
			MediaFilename:  "contract.pdf",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSent, msg.Status)
		// already in_progress, no further status move
		deps.convs.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing media url is rejected", func(t *testing.T) {
		deps := setupSendTest(t)
		_, err := deps.service.SendMedia(ctx, SendRequest{ConversationID: uuid.New(), AgentID: uuid.New(), Type: domain.TypeImage})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("text type is not a media send", func(t *testing.T) {
		deps := setupSendTest(t)
		_, err := deps.service.SendMedia(ctx, SendRequest{ConversationID: uuid.New(), AgentID: uuid.New(), Type: domain.TypeText, MediaURL: "https://x"})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}
