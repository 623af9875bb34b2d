package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

type PgConversationRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgConversationRepository(db *pgxpool.Pool, logger *slog.Logger) *PgConversationRepository {
	return &PgConversationRepository{db: db, logger: logger}
}

const conversationColumns = `
	id, instance_id, phone, display_name, contact_id, assigned_agent_id, status,
	unread_count, message_count, last_message_text, last_message_type,
	last_message_at, archived, created_at, updated_at
`

func (r *PgConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	query := `
		INSERT INTO conversations (` + conversationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := queryEngine(ctx, r.db).Exec(ctx, query,
		conv.ID, conv.InstanceID, conv.Phone, conv.DisplayName, conv.ContactID,
		conv.AssignedAgentID, conv.Status, conv.UnreadCount, conv.MessageCount,
		conv.LastMessageText, conv.LastMessageType, conv.LastMessageAt,
		conv.Archived, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEntry
		}
		r.logger.ErrorContext(ctx, "error creating conversation", "error", err,
			"instance_id", conv.InstanceID, "phone", conv.Phone)
		return err
	}
	return nil
}

func (r *PgConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *PgConversationRepository) GetByIDLocked(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1 FOR UPDATE`
	return r.scanOne(ctx, query, id)
}

func (r *PgConversationRepository) GetByInstanceAndPhone(ctx context.Context, instanceID uuid.UUID, phone string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE instance_id = $1 AND phone = $2`
	row := queryEngine(ctx, r.db).QueryRow(ctx, query, instanceID, phone)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return conv, nil
}

func (r *PgConversationRepository) List(ctx context.Context, f domain.ConversationFilter) ([]*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE instance_id = $1`
	args := []any{f.InstanceID}

	if !f.IncludeArchived {
		query += ` AND NOT archived`
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if f.AssignedAgentID != nil {
		args = append(args, *f.AssignedAgentID)
		query += fmt.Sprintf(` AND assigned_agent_id = $%d`, len(args))
	}
	if f.UnreadOnly {
		query += ` AND unread_count > 0`
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		query += fmt.Sprintf(` AND (phone ILIKE $%d OR display_name ILIKE $%d)`, len(args), len(args))
	}

	query += ` ORDER BY last_message_at DESC NULLS LAST, created_at DESC`
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	return r.scanMany(ctx, query, args...)
}

func (r *PgConversationRepository) ListUnassigned(ctx context.Context, instanceID uuid.UUID, limit int) ([]*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE instance_id = $1 AND status = $2 AND NOT archived
		ORDER BY created_at ASC
		LIMIT $3
	`
	return r.scanMany(ctx, query, instanceID, domain.ConversationUnassigned, limit)
}

func (r *PgConversationRepository) UpdateAssignment(ctx context.Context, id uuid.UUID, agentID *uuid.UUID, status domain.ConversationStatus) error {
	query := `
		UPDATE conversations
		SET assigned_agent_id = $2, status = $3, archived = false, updated_at = $4
		WHERE id = $1
	`
	tag, err := queryEngine(ctx, r.db).Exec(ctx, query, id, agentID, status, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgConversationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ConversationStatus, archived bool) error {
	query := `UPDATE conversations SET status = $2, archived = $3, updated_at = $4 WHERE id = $1`
	tag, err := queryEngine(ctx, r.db).Exec(ctx, query, id, status, archived, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ApplyMessage bumps counters and the last-message preview in one statement
// so concurrent webhook deliveries cannot lose an increment.
func (r *PgConversationRepository) ApplyMessage(ctx context.Context, id uuid.UUID, inbound bool, preview string, msgType domain.MessageType, at time.Time) error {
	unreadInc := 0
	if inbound {
		unreadInc = 1
	}
	query := `
		UPDATE conversations
		SET message_count = message_count + 1,
		    unread_count = unread_count + $2,
		    last_message_text = $3,
		    last_message_type = $4,
		    last_message_at = $5,
		    updated_at = $6
		WHERE id = $1
	`
	now := time.Now().UTC()
	tag, err := queryEngine(ctx, r.db).Exec(ctx, query, id, unreadInc, preview, msgType, at, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResetUnread resyncs the counter from the ledger so partial mark-reads keep
// unread_count equal to the number of unread inbound messages.
func (r *PgConversationRepository) ResetUnread(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE conversations SET
			unread_count = (SELECT COUNT(*) FROM messages m
			                WHERE m.conversation_id = conversations.id
			                  AND m.direction = 'inbound' AND NOT m.is_read),
			updated_at = $2
		WHERE id = $1`
	tag, err := queryEngine(ctx, r.db).Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgConversationRepository) CountAssignedToAgent(ctx context.Context, instanceID, agentID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM conversations
		WHERE instance_id = $1 AND assigned_agent_id = $2
		  AND status IN ($3, $4) AND NOT archived
	`
	var count int
	err := queryEngine(ctx, r.db).QueryRow(ctx, query, instanceID, agentID,
		domain.ConversationAssigned, domain.ConversationInProgress).Scan(&count)
	return count, err
}

func (r *PgConversationRepository) StatsByInstance(ctx context.Context, instanceID uuid.UUID) (*domain.InstanceStats, error) {
	query := `
		SELECT status, COUNT(*), COALESCE(SUM(unread_count), 0)
		FROM conversations
		WHERE instance_id = $1 AND NOT archived
		GROUP BY status
	`
	rows, err := queryEngine(ctx, r.db).Query(ctx, query, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.InstanceStats{
		InstanceID: instanceID,
		ByStatus:   make(map[domain.ConversationStatus]int),
	}
	for rows.Next() {
		var status domain.ConversationStatus
		var count, unread int
		if err := rows.Scan(&status, &count, &unread); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = count
		stats.TotalUnread += unread
	}
	return stats, rows.Err()
}

func (r *PgConversationRepository) StatsByAgent(ctx context.Context, instanceID, agentID uuid.UUID) (*domain.AgentStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status IN ($3, $4)),
			COUNT(*) FILTER (WHERE status = $5),
			COALESCE(SUM(unread_count) FILTER (WHERE status IN ($3, $4)), 0)
		FROM conversations
		WHERE instance_id = $1 AND assigned_agent_id = $2 AND NOT archived
	`
	stats := &domain.AgentStats{AgentID: agentID, InstanceID: instanceID}
	err := queryEngine(ctx, r.db).QueryRow(ctx, query, instanceID, agentID,
		domain.ConversationAssigned, domain.ConversationInProgress, domain.ConversationResolved).
		Scan(&stats.AssignedCount, &stats.ResolvedCount, &stats.UnreadCount)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *PgConversationRepository) scanOne(ctx context.Context, query string, id uuid.UUID) (*domain.Conversation, error) {
	row := queryEngine(ctx, r.db).QueryRow(ctx, query, id)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return conv, nil
}

func (r *PgConversationRepository) scanMany(ctx context.Context, query string, args ...any) ([]*domain.Conversation, error) {
	rows, err := queryEngine(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	err := row.Scan(
		&conv.ID, &conv.InstanceID, &conv.Phone, &conv.DisplayName, &conv.ContactID,
		&conv.AssignedAgentID, &conv.Status, &conv.UnreadCount, &conv.MessageCount,
		&conv.LastMessageText, &conv.LastMessageType, &conv.LastMessageAt,
		&conv.Archived, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return conv, nil
}
