package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexocrm/waroute/internal/routing/domain"
	"github.com/nexocrm/waroute/internal/routing/provider"
)

// PgTemplateRepository stores per-instance operation template overrides as
// JSONB. Implements provider.TemplateStore.
type PgTemplateRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgTemplateRepository(db *pgxpool.Pool, logger *slog.Logger) *PgTemplateRepository {
	return &PgTemplateRepository{db: db, logger: logger}
}

func (r *PgTemplateRepository) Get(ctx context.Context, instanceID uuid.UUID, op provider.OperationType) (*provider.OperationTemplate, error) {
	query := `SELECT template FROM provider_templates WHERE instance_id = $1 AND operation = $2`
	var raw []byte
	err := queryEngine(ctx, r.db).QueryRow(ctx, query, instanceID, string(op)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	t := &provider.OperationTemplate{}
	if err := json.Unmarshal(raw, t); err != nil {
		r.logger.ErrorContext(ctx, "error decoding stored template", "error", err,
			"instance_id", instanceID, "operation", op)
		return nil, err
	}
	return t, nil
}

func (r *PgTemplateRepository) Put(ctx context.Context, instanceID uuid.UUID, op provider.OperationType, t *provider.OperationTemplate) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO provider_templates (instance_id, operation, template, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instance_id, operation) DO UPDATE SET
			template = EXCLUDED.template,
			updated_at = EXCLUDED.updated_at
	`
	_, err = queryEngine(ctx, r.db).Exec(ctx, query, instanceID, string(op), raw, time.Now().UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "error storing template", "error", err,
			"instance_id", instanceID, "operation", op)
	}
	return err
}
