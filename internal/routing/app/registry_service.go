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

// RegistryService owns conversation identity and routing state: one
// conversation per (instance, phone), the status machine, assignment and
// transfer with their audit rows, and the permission checks in front of every
// agent mutation.
type RegistryService struct {
	tx        domain.TxManager
	convs     domain.ConversationRepository
	bindings  domain.AgentBindingRepository
	transfers domain.TransferRepository
	ledger    *LedgerService
	publisher EventPublisher
	logger    *slog.Logger
}

func NewRegistryService(tx domain.TxManager, convs domain.ConversationRepository, bindings domain.AgentBindingRepository, transfers domain.TransferRepository, ledger *LedgerService, publisher EventPublisher, logger *slog.Logger) *RegistryService {
	return &RegistryService{
		tx:        tx,
		convs:     convs,
		bindings:  bindings,
		transfers: transfers,
		ledger:    ledger,
		publisher: publisher,
		logger:    logger.With("service", "registry"),
	}
}

// FindOrCreateByPhone resolves the conversation for a normalized phone number,
// creating it unassigned when the number has not been seen on the instance.
// Concurrent creates race on the (instance, phone) unique constraint; the
// loser re-reads the winner's row. A resolved or archived conversation is
// reopened: resolved keeps its assignee, archived comes back unassigned.
func (s *RegistryService) FindOrCreateByPhone(ctx context.Context, instanceID uuid.UUID, phone, displayName string) (*domain.Conversation, bool, error) {
	conv, err := s.convs.GetByInstanceAndPhone(ctx, instanceID, phone)
	if err == nil {
		return s.maybeReopen(ctx, conv)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	conv = domain.NewConversation(instanceID, phone, displayName)
	if err := s.convs.Create(ctx, conv); err != nil {
		if errors.Is(err, domain.ErrDuplicateEntry) {
			existing, gerr := s.convs.GetByInstanceAndPhone(ctx, instanceID, phone)
			if gerr != nil {
				return nil, false, gerr
			}
			return s.maybeReopen(ctx, existing)
		}
		return nil, false, err
	}
	return conv, true, nil
}

func (s *RegistryService) maybeReopen(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error) {
	if conv.Status != domain.ConversationResolved && conv.Status != domain.ConversationArchived {
		return conv, false, nil
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.convs.GetByIDLocked(ctx, conv.ID)
		if err != nil {
			return err
		}
		from := locked.AssignedAgentID

		switch locked.Status {
		case domain.ConversationResolved:
			// keep the agent who knows the history
			if locked.AssignedAgentID != nil {
				locked.Status = domain.ConversationAssigned
			} else {
				locked.Status = domain.ConversationUnassigned
			}
		case domain.ConversationArchived:
			locked.Status = domain.ConversationUnassigned
			locked.AssignedAgentID = nil
		default:
			// someone else reopened it first
			conv = locked
			return nil
		}
		locked.Archived = false

		if err := s.convs.UpdateAssignment(ctx, locked.ID, locked.AssignedAgentID, locked.Status); err != nil {
			return err
		}
		if err := s.transfers.Create(ctx, domain.NewTransfer(locked.ID, from, locked.AssignedAgentID, nil, "reopened", "")); err != nil {
			return err
		}
		conv = locked
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	s.logger.InfoContext(ctx, "conversation reopened",
		"conversation_id", conv.ID, "status", conv.Status)
	return conv, false, nil
}

// Assign puts the conversation on an agent's queue. A nil actor is the
// assignment engine; a human actor must be a supervisor, or the agent
// claiming an unassigned conversation for themselves.
func (s *RegistryService) Assign(ctx context.Context, conversationID, agentID uuid.UUID, actorID *uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		conv, err := s.convs.GetByIDLocked(ctx, conversationID)
		if err != nil {
			return err
		}

		target, err := s.bindings.GetByUserAndInstance(ctx, agentID, conv.InstanceID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: agent is not bound to this instance", domain.ErrValidation)
			}
			return err
		}
		if !target.CanReceiveChats {
			return fmt.Errorf("%w: agent cannot receive chats", domain.ErrValidation)
		}

		if actorID != nil {
			actor, err := s.actorBinding(ctx, *actorID, conv.InstanceID)
			if err != nil {
				return err
			}
			selfClaim := *actorID == agentID && conv.Status == domain.ConversationUnassigned
			if !actor.IsSupervisor && !selfClaim {
				return fmt.Errorf("%w: only a supervisor can assign other agents", domain.ErrAccessDenied)
			}
		}

		if !conv.Status.CanTransition(domain.ConversationAssigned) {
			return fmt.Errorf("%w: cannot assign a %s conversation", domain.ErrConflict, conv.Status)
		}

		from := conv.AssignedAgentID
		if err := s.convs.UpdateAssignment(ctx, conv.ID, &agentID, domain.ConversationAssigned); err != nil {
			return err
		}
		if err := s.transfers.Create(ctx, domain.NewTransfer(conv.ID, from, &agentID, actorID, "assigned", "")); err != nil {
			return err
		}

		assignmentsMade.Inc()
		conv.AssignedAgentID = &agentID
		conv.Status = domain.ConversationAssigned
		s.publisher.ConversationAssigned(ctx, conv.InstanceID, conv)
		return s.touch(ctx, actorID, conv.InstanceID)
	})
}

// Transfer moves the conversation to another agent. The actor must be a
// supervisor, or the current assignee holding can_transfer_chats.
func (s *RegistryService) Transfer(ctx context.Context, conversationID, toAgentID, actorID uuid.UUID, reason, note string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		conv, err := s.convs.GetByIDLocked(ctx, conversationID)
		if err != nil {
			return err
		}

		actor, err := s.actorBinding(ctx, actorID, conv.InstanceID)
		if err != nil {
			return err
		}
		isAssignee := conv.AssignedAgentID != nil && *conv.AssignedAgentID == actorID
		if !actor.IsSupervisor {
			if !isAssignee {
				return fmt.Errorf("%w: conversation is assigned to another agent", domain.ErrAccessDenied)
			}
			if !actor.CanTransferChats {
				return fmt.Errorf("%w: agent cannot transfer chats", domain.ErrAccessDenied)
			}
		}

		target, err := s.bindings.GetByUserAndInstance(ctx, toAgentID, conv.InstanceID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: target agent is not bound to this instance", domain.ErrValidation)
			}
			return err
		}
		if !target.CanReceiveChats {
			return fmt.Errorf("%w: target agent cannot receive chats", domain.ErrValidation)
		}
		if !conv.Status.CanTransition(domain.ConversationAssigned) {
			return fmt.Errorf("%w: cannot transfer a %s conversation", domain.ErrConflict, conv.Status)
		}

		from := conv.AssignedAgentID
		if err := s.convs.UpdateAssignment(ctx, conv.ID, &toAgentID, domain.ConversationAssigned); err != nil {
			return err
		}
		if err := s.transfers.Create(ctx, domain.NewTransfer(conv.ID, from, &toAgentID, &actorID, reason, note)); err != nil {
			return err
		}

		conv.AssignedAgentID = &toAgentID
		conv.Status = domain.ConversationAssigned
		s.publisher.ConversationAssigned(ctx, conv.InstanceID, conv)
		return s.touch(ctx, &actorID, conv.InstanceID)
	})
}

// Resolve closes out an active conversation.
func (s *RegistryService) Resolve(ctx context.Context, conversationID, actorID uuid.UUID) error {
	return s.transition(ctx, conversationID, actorID, domain.ConversationResolved, false)
}

// Archive removes the conversation from active listings. Reachable from any
// state; an inbound message reopens it unassigned.
func (s *RegistryService) Archive(ctx context.Context, conversationID, actorID uuid.UUID) error {
	return s.transition(ctx, conversationID, actorID, domain.ConversationArchived, true)
}

func (s *RegistryService) transition(ctx context.Context, conversationID, actorID uuid.UUID, target domain.ConversationStatus, archived bool) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		conv, err := s.convs.GetByIDLocked(ctx, conversationID)
		if err != nil {
			return err
		}
		if err := s.requireOwnOrSupervisor(ctx, conv, actorID); err != nil {
			return err
		}
		if !conv.Status.CanTransition(target) {
			return fmt.Errorf("%w: cannot move a %s conversation to %s", domain.ErrConflict, conv.Status, target)
		}
		if err := s.convs.UpdateStatus(ctx, conv.ID, target, archived); err != nil {
			return err
		}
		return s.touch(ctx, &actorID, conv.InstanceID)
	})
}

// MarkRead checks the actor may touch the conversation, then delegates the
// ledger work.
func (s *RegistryService) MarkRead(ctx context.Context, conversationID, actorID uuid.UUID, ids []uuid.UUID) (int64, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if err := s.requireOwnOrSupervisor(ctx, conv, actorID); err != nil {
		return 0, err
	}
	n, err := s.ledger.MarkRead(ctx, conversationID, actorID, ids)
	if err != nil {
		return 0, err
	}
	return n, s.touch(ctx, &actorID, conv.InstanceID)
}

// PurgeMessages deletes a conversation's entire message history. Supervisor
// only; nothing else removes ledger rows.
func (s *RegistryService) PurgeMessages(ctx context.Context, conversationID, actorID uuid.UUID) (int64, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	binding, err := s.actorBinding(ctx, actorID, conv.InstanceID)
	if err != nil {
		return 0, err
	}
	if !binding.IsSupervisor {
		return 0, fmt.Errorf("%w: only a supervisor can purge messages", domain.ErrAccessDenied)
	}

	var purged int64
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		purged, err = s.ledger.Purge(ctx, conversationID)
		if err != nil {
			return err
		}
		return s.convs.ResetUnread(ctx, conversationID)
	})
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "conversation history purged",
		"conversation_id", conversationID, "actor_id", actorID, "purged", purged)
	return purged, nil
}

func (s *RegistryService) Get(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	return s.convs.GetByID(ctx, conversationID)
}

func (s *RegistryService) List(ctx context.Context, f domain.ConversationFilter) ([]*domain.Conversation, error) {
	return s.convs.List(ctx, f)
}

func (s *RegistryService) ListTransfers(ctx context.Context, conversationID uuid.UUID) ([]*domain.Transfer, error) {
	return s.transfers.ListByConversation(ctx, conversationID)
}

func (s *RegistryService) StatsByInstance(ctx context.Context, instanceID uuid.UUID) (*domain.InstanceStats, error) {
	return s.convs.StatsByInstance(ctx, instanceID)
}

func (s *RegistryService) StatsByAgent(ctx context.Context, instanceID, agentID uuid.UUID) (*domain.AgentStats, error) {
	return s.convs.StatsByAgent(ctx, instanceID, agentID)
}

func (s *RegistryService) actorBinding(ctx context.Context, actorID, instanceID uuid.UUID) (*domain.AgentBinding, error) {
	b, err := s.bindings.GetByUserAndInstance(ctx, actorID, instanceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: actor is not bound to this instance", domain.ErrAccessDenied)
		}
		return nil, err
	}
	return b, nil
}

func (s *RegistryService) requireOwnOrSupervisor(ctx context.Context, conv *domain.Conversation, actorID uuid.UUID) error {
	actor, err := s.actorBinding(ctx, actorID, conv.InstanceID)
	if err != nil {
		return err
	}
	if actor.IsSupervisor {
		return nil
	}
	if conv.AssignedAgentID == nil || *conv.AssignedAgentID != actorID {
		return fmt.Errorf("%w: conversation is assigned to another agent", domain.ErrAccessDenied)
	}
	return nil
}

func (s *RegistryService) touch(ctx context.Context, actorID *uuid.UUID, instanceID uuid.UUID) error {
	if actorID == nil {
		return nil
	}
	if err := s.bindings.TouchActivity(ctx, *actorID, instanceID, time.Now().UTC()); err != nil {
		s.logger.WarnContext(ctx, "error stamping agent activity", "agent_id", *actorID, "error", err)
	}
	return nil
}
