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

type PgMessageRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgMessageRepository(db *pgxpool.Pool, logger *slog.Logger) *PgMessageRepository {
	return &PgMessageRepository{db: db, logger: logger}
}

const messageColumns = `
	id, conversation_id, instance_id, provider_message_id, direction, type,
	content, media_url, media_filename, media_mime_type, media_size, status,
	error_message, is_read, read_by, sender_agent_id, sender_name,
	provider_timestamp, sent_at, delivered_at, read_at, created_at, updated_at
`

func (r *PgMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`
	_, err := queryEngine(ctx, r.db).Exec(ctx, query,
		msg.ID, msg.ConversationID, msg.InstanceID, msg.ProviderMessageID,
		msg.Direction, msg.Type, msg.Content, msg.MediaURL, msg.MediaFilename,
		msg.MediaMimeType, msg.MediaSize, msg.Status, msg.ErrorMessage,
		msg.IsRead, msg.ReadBy, msg.SenderAgentID, msg.SenderName,
		msg.ProviderTimestamp, msg.SentAt, msg.DeliveredAt, msg.ReadAt,
		msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEntry
		}
		r.logger.ErrorContext(ctx, "error creating message", "error", err,
			"conversation_id", msg.ConversationID, "provider_message_id", msg.ProviderMessageID)
		return err
	}
	return nil
}

func (r *PgMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	row := queryEngine(ctx, r.db).QueryRow(ctx, query, id)
	return r.mapScan(row)
}

func (r *PgMessageRepository) GetByProviderMessageID(ctx context.Context, instanceID uuid.UUID, providerMessageID string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE instance_id = $1 AND provider_message_id = $2`
	row := queryEngine(ctx, r.db).QueryRow(ctx, query, instanceID, providerMessageID)
	return r.mapScan(row)
}

func (r *PgMessageRepository) GetByProviderMessageIDLocked(ctx context.Context, instanceID uuid.UUID, providerMessageID string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE instance_id = $1 AND provider_message_id = $2 FOR UPDATE`
	row := queryEngine(ctx, r.db).QueryRow(ctx, query, instanceID, providerMessageID)
	return r.mapScan(row)
}

func (r *PgMessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY provider_timestamp DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := queryEngine(ctx, r.db).Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (r *PgMessageRepository) UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status domain.DeliveryStatus, errorMessage *string, at time.Time) error {
	query := `
		UPDATE messages
		SET status = $2,
		    error_message = CASE WHEN $2 = 'failed' THEN $3 ELSE error_message END,
		    sent_at = CASE WHEN $2 = 'sent' THEN $4 ELSE sent_at END,
		    delivered_at = CASE WHEN $2 = 'delivered' THEN $4 ELSE delivered_at END,
		    read_at = CASE WHEN $2 = 'read' THEN $4 ELSE read_at END,
		    updated_at = $5
		WHERE id = $1
	`
	tag, err := queryEngine(ctx, r.db).Exec(ctx, query, id, status, errorMessage, at, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgMessageRepository) SetProviderMessageID(ctx context.Context, id uuid.UUID, providerMessageID string) error {
	query := `UPDATE messages SET provider_message_id = $2, updated_at = $3 WHERE id = $1`
	tag, err := queryEngine(ctx, r.db).Exec(ctx, query, id, providerMessageID, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEntry
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgMessageRepository) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE messages
		SET is_read = true, read_by = $2, read_at = $3, updated_at = $3
		WHERE conversation_id = $1 AND direction = 'inbound' AND NOT is_read
	`
	args := []any{conversationID, readerID, at}
	if len(ids) > 0 {
		args = append(args, ids)
		query += ` AND id = ANY($4)`
	}
	tag, err := queryEngine(ctx, r.db).Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgMessageRepository) Purge(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	tag, err := queryEngine(ctx, r.db).Exec(ctx,
		`DELETE FROM messages WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgMessageRepository) CountUnread(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var count int
	err := queryEngine(ctx, r.db).QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1 AND direction = 'inbound' AND NOT is_read`,
		conversationID).Scan(&count)
	return count, err
}

func (r *PgMessageRepository) mapScan(row pgx.Row) (*domain.Message, error) {
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	msg := &domain.Message{}
	var providerID *string
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.InstanceID, &providerID, &msg.Direction,
		&msg.Type, &msg.Content, &msg.MediaURL, &msg.MediaFilename,
		&msg.MediaMimeType, &msg.MediaSize, &msg.Status, &msg.ErrorMessage,
		&msg.IsRead, &msg.ReadBy, &msg.SenderAgentID, &msg.SenderName,
		&msg.ProviderTimestamp, &msg.SentAt, &msg.DeliveredAt, &msg.ReadAt,
		&msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if providerID != nil {
		msg.ProviderMessageID = *providerID
	}
	return msg, nil
}
