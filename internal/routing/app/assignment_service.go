package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

// AssignmentResult reports one auto-assignment pass.
type AssignmentResult struct {
	Assigned int `json:"assigned"`
	Skipped  int `json:"skipped"`
}

// AssignmentService distributes unassigned conversations over the eligible
// agents of an instance: online, opted in, receive-capable, under their
// concurrency cap, lightest load first with least-recent activity breaking
// ties.
type AssignmentService struct {
	convs    domain.ConversationRepository
	bindings domain.AgentBindingRepository
	registry *RegistryService
	logger   *slog.Logger
}

func NewAssignmentService(convs domain.ConversationRepository, bindings domain.AgentBindingRepository, registry *RegistryService, logger *slog.Logger) *AssignmentService {
	return &AssignmentService{
		convs:    convs,
		bindings: bindings,
		registry: registry,
		logger:   logger.With("service", "assignment"),
	}
}

// AutoAssign processes up to batchSize unassigned conversations, oldest
// first. Conversations left over when every agent is at capacity stay
// unassigned and count as skipped; an individual assignment failure is logged
// and skipped, never aborts the batch.
func (s *AssignmentService) AutoAssign(ctx context.Context, instanceID uuid.UUID, batchSize int) (*AssignmentResult, error) {
	if batchSize <= 0 {
		batchSize = 20
	}

	pending, err := s.convs.ListUnassigned(ctx, instanceID, batchSize)
	if err != nil {
		return nil, err
	}
	result := &AssignmentResult{}
	if len(pending) == 0 {
		return result, nil
	}

	loads, err := s.bindings.ListEligible(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if len(loads) == 0 {
		result.Skipped = len(pending)
		return result, nil
	}

	for _, conv := range pending {
		load := s.pickAgent(loads)
		if load == nil {
			result.Skipped++
			continue
		}
		if err := s.registry.Assign(ctx, conv.ID, load.Binding.UserID, nil); err != nil {
			s.logger.WarnContext(ctx, "error auto-assigning conversation",
				"conversation_id", conv.ID, "agent_id", load.Binding.UserID, "error", err)
			result.Skipped++
			continue
		}
		load.AssignedCount++
		result.Assigned++
	}

	s.logger.InfoContext(ctx, "auto-assign pass finished",
		"instance_id", instanceID, "assigned", result.Assigned, "skipped", result.Skipped)
	return result, nil
}

// pickAgent returns the least-loaded agent with spare capacity. The slice is
// pre-ordered by load then recency; counts drift upward as the batch assigns,
// so rescan each time.
func (s *AssignmentService) pickAgent(loads []*domain.AgentLoad) *domain.AgentLoad {
	var best *domain.AgentLoad
	for _, l := range loads {
		if !l.HasCapacity() {
			continue
		}
		if best == nil || l.AssignedCount < best.AssignedCount {
			best = l
		}
	}
	return best
}
