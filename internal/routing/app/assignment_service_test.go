package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

type assignmentTestComponents struct {
	service   *AssignmentService
	convs     *MockConversationRepository
	bindings  *MockAgentBindingRepository
	transfers *MockTransferRepository
}

func setupAssignmentTest(t *testing.T) assignmentTestComponents {
	t.Helper()
	convs := new(MockConversationRepository)
	bindings := new(MockAgentBindingRepository)
	transfers := new(MockTransferRepository)
	messages := new(MockMessageRepository)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := NewLedgerService(fakeTxManager{}, messages, convs, NoopEventPublisher{}, logger)
	registry := NewRegistryService(fakeTxManager{}, convs, bindings, transfers, ledger, NoopEventPublisher{}, logger)
	service := NewAssignmentService(convs, bindings, registry, logger)
	return assignmentTestComponents{service: service, convs: convs, bindings: bindings, transfers: transfers}
}

func loadOf(b *domain.AgentBinding, assigned int) *domain.AgentLoad {
	return &domain.AgentLoad{Binding: *b, AssignedCount: assigned}
}

func TestAssignmentService_AutoAssign(t *testing.T) {
	ctx := context.Background()
	instanceID := uuid.New()

	t.Run("no pending conversations is a clean no-op", func(t *testing.T) {
		deps := setupAssignmentTest(t)
		deps.convs.On("ListUnassigned", mock.Anything, instanceID, 20).Return([]*domain.Conversation(nil), nil).Once()

		result, err := deps.service.AutoAssign(ctx, instanceID, 20)
		require.NoError(t, err)
		assert.Zero(t, result.Assigned)
		assert.Zero(t, result.Skipped)
		deps.bindings.AssertNotCalled(t, "ListEligible", mock.Anything, mock.Anything)
	})

	t.Run("empty roster leaves everything unassigned", func(t *testing.T) {
		deps := setupAssignmentTest(t)
		pending := []*domain.Conversation{
			domain.NewConversation(instanceID, "5511911111111", ""),
			domain.NewConversation(instanceID, "5511922222222", ""),
		}
		deps.convs.On("ListUnassigned", mock.Anything, instanceID, 20).Return(pending, nil).Once()
		deps.bindings.On("ListEligible", mock.Anything, instanceID).Return([]*domain.AgentLoad(nil), nil).Once()

		result, err := deps.service.AutoAssign(ctx, instanceID, 20)
		require.NoError(t, err)
		assert.Zero(t, result.Assigned)
		assert.Equal(t, 2, result.Skipped)
		deps.convs.AssertNotCalled(t, "UpdateAssignment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("least loaded agent gets the conversation", func(t *testing.T) {
		deps := setupAssignmentTest(t)
		busy := agentBinding(uuid.New(), instanceID)
		idle := agentBinding(uuid.New(), instanceID)
		conv := domain.NewConversation(instanceID, "5511911111111", "")

		deps.convs.On("ListUnassigned", mock.Anything, instanceID, 20).Return([]*domain.Conversation{conv}, nil).Once()
		deps.bindings.On("ListEligible", mock.Anything, instanceID).Return([]*domain.AgentLoad{loadOf(idle, 1), loadOf(busy, 4)}, nil).Once()

		deps.convs.On("GetByIDLocked", mock.Anything, conv.ID).Return(conv, nil).Once()
		deps.bindings.On("GetByUserAndInstance", mock.Anything, idle.UserID, instanceID).Return(idle, nil).Once()
		deps.convs.On("UpdateAssignment", mock.Anything, conv.ID, &idle.UserID, domain.ConversationAssigned).Return(nil).Once()
		deps.transfers.On("Create", mock.Anything, mock.MatchedBy(func(tr *domain.Transfer) bool {
			return tr.FromAgentID == nil && tr.ActorID == nil && *tr.ToAgentID == idle.UserID
		})).Return(nil).Once()

		result, err := deps.service.AutoAssign(ctx, instanceID, 20)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Assigned)
		deps.convs.AssertExpectations(t)
	})

	t.Run("capacity cap is respected across the batch", func(t *testing.T) {
		deps := setupAssignmentTest(t)
		agent := agentBinding(uuid.New(), instanceID)
		agent.MaxConcurrentChats = 2
		pending := []*domain.Conversation{
			domain.NewConversation(instanceID, "5511911111111", ""),
			domain.NewConversation(instanceID, "5511922222222", ""),
			domain.NewConversation(instanceID, "5511933333333", ""),
		}

		deps.convs.On("ListUnassigned", mock.Anything, instanceID, 20).Return(pending, nil).Once()
		deps.bindings.On("ListEligible", mock.Anything, instanceID).Return([]*domain.AgentLoad{loadOf(agent, 0)}, nil).Once()

		for _, conv := range pending[:2] {
			deps.convs.On("GetByIDLocked", mock.Anything, conv.ID).Return(conv, nil).Once()
			deps.convs.On("UpdateAssignment", mock.Anything, conv.ID, &agent.UserID, domain.ConversationAssigned).Return(nil).Once()
		}
		deps.bindings.On("GetByUserAndInstance", mock.Anything, agent.UserID, instanceID).Return(agent, nil)
		deps.transfers.On("Create", mock.Anything, mock.Anything).Return(nil)

		result, err := deps.service.AutoAssign(ctx, instanceID, 20)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Assigned)
		assert.Equal(t, 1, result.Skipped)
		deps.convs.AssertNotCalled(t, "UpdateAssignment", mock.Anything, pending[2].ID, mock.Anything, mock.Anything)
	})

	t.Run("one failing assignment does not abort the batch", func(t *testing.T) {
		deps := setupAssignmentTest(t)
		agent := agentBinding(uuid.New(), instanceID)
		first := domain.NewConversation(instanceID, "5511911111111", "")
		second := domain.NewConversation(instanceID, "5511922222222", "")
		first.CreatedAt = time.Now().Add(-time.Hour)

		deps.convs.On("ListUnassigned", mock.Anything, instanceID, 20).Return([]*domain.Conversation{first, second}, nil).Once()
		deps.bindings.On("ListEligible", mock.Anything, instanceID).Return([]*domain.AgentLoad{loadOf(agent, 0)}, nil).Once()
		deps.bindings.On("GetByUserAndInstance", mock.Anything, agent.UserID, instanceID).Return(agent, nil)

		deps.convs.On("GetByIDLocked", mock.Anything, first.ID).Return(nil, domain.ErrNotFound).Once()
		deps.convs.On("GetByIDLocked", mock.Anything, second.ID).Return(second, nil).Once()
		deps.convs.On("UpdateAssignment", mock.Anything, second.ID, &agent.UserID, domain.ConversationAssigned).Return(nil).Once()
		deps.transfers.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

		result, err := deps.service.AutoAssign(ctx, instanceID, 20)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Assigned)
		assert.Equal(t, 1, result.Skipped)
	})
}
