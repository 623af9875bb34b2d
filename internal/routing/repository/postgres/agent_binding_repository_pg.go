package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

type PgAgentBindingRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgAgentBindingRepository(db *pgxpool.Pool, logger *slog.Logger) *PgAgentBindingRepository {
	return &PgAgentBindingRepository{db: db, logger: logger}
}

const bindingColumns = `
	id, user_id, instance_id, can_receive_chats, can_send_messages,
	can_transfer_chats, is_supervisor, max_concurrent_chats, is_online,
	auto_assign_new_chats, last_activity_at, created_at, updated_at
`

func (r *PgAgentBindingRepository) GetByUserAndInstance(ctx context.Context, userID, instanceID uuid.UUID) (*domain.AgentBinding, error) {
	query := `SELECT ` + bindingColumns + ` FROM agent_bindings WHERE user_id = $1 AND instance_id = $2`
	row := queryEngine(ctx, r.db).QueryRow(ctx, query, userID, instanceID)
	b, err := scanBinding(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (r *PgAgentBindingRepository) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]*domain.AgentBinding, error) {
	query := `SELECT ` + bindingColumns + ` FROM agent_bindings WHERE instance_id = $1 ORDER BY created_at`
	rows, err := queryEngine(ctx, r.db).Query(ctx, query, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AgentBinding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListEligible joins each receive-capable, online, opted-in binding with its
// live assigned count, ordered the way the assignment engine consumes it:
// lightest load first, ties broken by least-recent activity.
func (r *PgAgentBindingRepository) ListEligible(ctx context.Context, instanceID uuid.UUID) ([]*domain.AgentLoad, error) {
	query := `
		SELECT ` + bindingColumns + `,
			(SELECT COUNT(*) FROM conversations c
			 WHERE c.instance_id = b.instance_id
			   AND c.assigned_agent_id = b.user_id
			   AND c.status IN ('assigned', 'in_progress')
			   AND NOT c.archived) AS assigned_count
		FROM agent_bindings b
		WHERE b.instance_id = $1
		  AND b.can_receive_chats AND b.auto_assign_new_chats AND b.is_online
		ORDER BY assigned_count ASC, b.last_activity_at ASC
	`
	rows, err := queryEngine(ctx, r.db).Query(ctx, query, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AgentLoad
	for rows.Next() {
		load := &domain.AgentLoad{}
		if err := rows.Scan(
			&load.Binding.ID, &load.Binding.UserID, &load.Binding.InstanceID,
			&load.Binding.CanReceiveChats, &load.Binding.CanSendMessages,
			&load.Binding.CanTransferChats, &load.Binding.IsSupervisor,
			&load.Binding.MaxConcurrentChats, &load.Binding.IsOnline,
			&load.Binding.AutoAssignNewChats, &load.Binding.LastActivityAt,
			&load.Binding.CreatedAt, &load.Binding.UpdatedAt,
			&load.AssignedCount,
		); err != nil {
			return nil, err
		}
		out = append(out, load)
	}
	return out, rows.Err()
}

func (r *PgAgentBindingRepository) Upsert(ctx context.Context, b *domain.AgentBinding) error {
	query := `
		INSERT INTO agent_bindings (` + bindingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, instance_id) DO UPDATE SET
			can_receive_chats = EXCLUDED.can_receive_chats,
			can_send_messages = EXCLUDED.can_send_messages,
			can_transfer_chats = EXCLUDED.can_transfer_chats,
			is_supervisor = EXCLUDED.is_supervisor,
			max_concurrent_chats = EXCLUDED.max_concurrent_chats,
			is_online = EXCLUDED.is_online,
			auto_assign_new_chats = EXCLUDED.auto_assign_new_chats,
			last_activity_at = EXCLUDED.last_activity_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := queryEngine(ctx, r.db).Exec(ctx, query,
		b.ID, b.UserID, b.InstanceID, b.CanReceiveChats, b.CanSendMessages,
		b.CanTransferChats, b.IsSupervisor, b.MaxConcurrentChats, b.IsOnline,
		b.AutoAssignNewChats, b.LastActivityAt, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "error upserting agent binding", "error", err,
			"user_id", b.UserID, "instance_id", b.InstanceID)
	}
	return err
}

func (r *PgAgentBindingRepository) TouchActivity(ctx context.Context, userID, instanceID uuid.UUID, at time.Time) error {
	query := `UPDATE agent_bindings SET last_activity_at = $3, updated_at = $3 WHERE user_id = $1 AND instance_id = $2`
	_, err := queryEngine(ctx, r.db).Exec(ctx, query, userID, instanceID, at)
	return err
}

func scanBinding(row pgx.Row) (*domain.AgentBinding, error) {
	b := &domain.AgentBinding{}
	err := row.Scan(
		&b.ID, &b.UserID, &b.InstanceID, &b.CanReceiveChats, &b.CanSendMessages,
		&b.CanTransferChats, &b.IsSupervisor, &b.MaxConcurrentChats, &b.IsOnline,
		&b.AutoAssignNewChats, &b.LastActivityAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}
