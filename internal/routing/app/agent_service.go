package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

// BindingUpdate carries the mutable knobs of an agent binding. Nil fields are
// left untouched.
type BindingUpdate struct {
	CanReceiveChats    *bool
	CanSendMessages    *bool
	CanTransferChats   *bool
	IsSupervisor       *bool
	MaxConcurrentChats *int
	AutoAssignNewChats *bool
}

// AgentService manages agent bindings and presence. Permission and capacity
// changes are supervisor actions; presence is self-service.
type AgentService struct {
	bindings domain.AgentBindingRepository
	logger   *slog.Logger
}

func NewAgentService(bindings domain.AgentBindingRepository, logger *slog.Logger) *AgentService {
	return &AgentService{bindings: bindings, logger: logger.With("service", "agent")}
}

func (s *AgentService) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]*domain.AgentBinding, error) {
	return s.bindings.ListByInstance(ctx, instanceID)
}

// UpdateBinding applies a supervisor's change to an agent's permissions or
// capacity, creating the binding when the agent is new to the instance.
func (s *AgentService) UpdateBinding(ctx context.Context, actorID, userID, instanceID uuid.UUID, upd BindingUpdate) (*domain.AgentBinding, error) {
	actor, err := s.bindings.GetByUserAndInstance(ctx, actorID, instanceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: actor is not bound to this instance", domain.ErrAccessDenied)
		}
		return nil, err
	}
	if !actor.IsSupervisor {
		return nil, fmt.Errorf("%w: only a supervisor can change bindings", domain.ErrAccessDenied)
	}

	now := time.Now().UTC()
	b, err := s.bindings.GetByUserAndInstance(ctx, userID, instanceID)
	if errors.Is(err, domain.ErrNotFound) {
		b = &domain.AgentBinding{
			ID:                 uuid.New(),
			UserID:             userID,
			InstanceID:         instanceID,
			MaxConcurrentChats: 5,
			LastActivityAt:     now,
			CreatedAt:          now,
		}
	} else if err != nil {
		return nil, err
	}

	if upd.CanReceiveChats != nil {
		b.CanReceiveChats = *upd.CanReceiveChats
	}
	if upd.CanSendMessages != nil {
		b.CanSendMessages = *upd.CanSendMessages
	}
	if upd.CanTransferChats != nil {
		b.CanTransferChats = *upd.CanTransferChats
	}
	if upd.IsSupervisor != nil {
		b.IsSupervisor = *upd.IsSupervisor
	}
	if upd.MaxConcurrentChats != nil {
		if *upd.MaxConcurrentChats < 0 {
			return nil, fmt.Errorf("%w: max_concurrent_chats cannot be negative", domain.ErrValidation)
		}
		b.MaxConcurrentChats = *upd.MaxConcurrentChats
	}
	if upd.AutoAssignNewChats != nil {
		b.AutoAssignNewChats = *upd.AutoAssignNewChats
	}
	b.UpdatedAt = now

	if err := s.bindings.Upsert(ctx, b); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "agent binding updated",
		"actor_id", actorID, "user_id", userID, "instance_id", instanceID)
	return b, nil
}

// SetPresence flips the agent's own online flag and stamps activity.
func (s *AgentService) SetPresence(ctx context.Context, userID, instanceID uuid.UUID, online bool) (*domain.AgentBinding, error) {
	b, err := s.bindings.GetByUserAndInstance(ctx, userID, instanceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: agent is not bound to this instance", domain.ErrAccessDenied)
		}
		return nil, err
	}
	b.IsOnline = online
	b.LastActivityAt = time.Now().UTC()
	b.UpdatedAt = b.LastActivityAt
	if err := s.bindings.Upsert(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}
