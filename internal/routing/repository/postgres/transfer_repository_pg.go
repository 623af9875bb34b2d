package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexocrm/waroute/internal/routing/domain"
)

type PgTransferRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgTransferRepository(db *pgxpool.Pool, logger *slog.Logger) *PgTransferRepository {
	return &PgTransferRepository{db: db, logger: logger}
}

func (r *PgTransferRepository) Create(ctx context.Context, t *domain.Transfer) error {
	query := `
		INSERT INTO transfers (id, conversation_id, from_agent_id, to_agent_id, actor_id, reason, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := queryEngine(ctx, r.db).Exec(ctx, query,
		t.ID, t.ConversationID, t.FromAgentID, t.ToAgentID, t.ActorID, t.Reason, t.Note, t.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "error creating transfer", "error", err, "conversation_id", t.ConversationID)
	}
	return err
}

func (r *PgTransferRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]*domain.Transfer, error) {
	query := `
		SELECT id, conversation_id, from_agent_id, to_agent_id, actor_id, reason, note, created_at
		FROM transfers
		WHERE conversation_id = $1
		ORDER BY created_at
	`
	rows, err := queryEngine(ctx, r.db).Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Transfer
	for rows.Next() {
		t := &domain.Transfer{}
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.FromAgentID, &t.ToAgentID, &t.ActorID, &t.Reason, &t.Note, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
