package postgres

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

type PgWebhookLogRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgWebhookLogRepository(db *pgxpool.Pool, logger *slog.Logger) *PgWebhookLogRepository {
	return &PgWebhookLogRepository{db: db, logger: logger}
}

func (r *PgWebhookLogRepository) Create(ctx context.Context, l *domain.WebhookLog) error {
	headers, err := json.Marshal(l.Headers)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO webhook_logs (id, instance_id, event_kind, payload, headers, processed, failure_reason, conversation_id, message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = queryEngine(ctx, r.db).Exec(ctx, query,
		l.ID, l.InstanceID, l.EventKind, []byte(l.Payload), headers,
		l.Processed, l.FailureReason, l.ConversationID, l.MessageID, l.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "error creating webhook log", "error", err, "log_id", l.ID)
	}
	return err
}

func (r *PgWebhookLogRepository) AttachOutcome(ctx context.Context, id uuid.UUID, kind domain.EventKind, processed bool, failureReason string, conversationID, messageID *uuid.UUID) error {
	query := `
		UPDATE webhook_logs
		SET event_kind = $2, processed = $3, failure_reason = $4, conversation_id = $5, message_id = $6
		WHERE id = $1
	`
	_, err := queryEngine(ctx, r.db).Exec(ctx, query, id, kind, processed, failureReason, conversationID, messageID)
	if err != nil {
		r.logger.ErrorContext(ctx, "error attaching webhook outcome", "error", err, "log_id", id)
	}
	return err
}

func (r *PgWebhookLogRepository) ListByInstance(ctx context.Context, instanceID uuid.UUID, limit int) ([]*domain.WebhookLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, instance_id, event_kind, payload, headers, processed, failure_reason, conversation_id, message_id, created_at
		FROM webhook_logs
		WHERE instance_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := queryEngine(ctx, r.db).Query(ctx, query, instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.WebhookLog
	for rows.Next() {
		l := &domain.WebhookLog{}
		var payload, headers []byte
		if err := rows.Scan(&l.ID, &l.InstanceID, &l.EventKind, &payload, &headers,
			&l.Processed, &l.FailureReason, &l.ConversationID, &l.MessageID, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Payload = json.RawMessage(payload)
		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &l.Headers); err != nil {
				return nil, err
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
