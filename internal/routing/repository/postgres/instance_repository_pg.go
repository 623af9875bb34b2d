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
)

type PgInstanceRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgInstanceRepository(db *pgxpool.Pool, logger *slog.Logger) *PgInstanceRepository {
	return &PgInstanceRepository{db: db, logger: logger}
}

const instanceColumns = `
	id, tenant_id, name, provider, api_base_url, auth, webhook_key,
	webhook_secret, connection_status, phone_number, active, created_at, updated_at
`

func (r *PgInstanceRepository) Create(ctx context.Context, inst *domain.Instance) error {
	authJSON, err := json.Marshal(inst.Auth)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO instances (` + instanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = queryEngine(ctx, r.db).Exec(ctx, query,
		inst.ID, inst.TenantID, inst.Name, inst.Provider, inst.APIBaseURL, authJSON,
		inst.WebhookKey, inst.WebhookSecret, inst.Connection, inst.PhoneNumber,
		inst.Active, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEntry
		}
		r.logger.ErrorContext(ctx, "error creating instance", "error", err, "instance_id", inst.ID)
		return err
	}
	return nil
}

func (r *PgInstanceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *PgInstanceRepository) GetByWebhookKey(ctx context.Context, key string) (*domain.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE webhook_key = $1 AND active`
	return r.scanOne(ctx, query, key)
}

func (r *PgInstanceRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE tenant_id = $1 AND active ORDER BY created_at`
	rows, err := queryEngine(ctx, r.db).Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (r *PgInstanceRepository) UpdateConnection(ctx context.Context, id uuid.UUID, status domain.ConnectionStatus, phone string) error {
	query := `
		UPDATE instances
		SET connection_status = $2,
		    phone_number = CASE WHEN $3 <> '' THEN $3 ELSE phone_number END,
		    updated_at = $4
		WHERE id = $1
	`
	tag, err := queryEngine(ctx, r.db).Exec(ctx, query, id, status, phone, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgInstanceRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE instances SET active = false, connection_status = $2, updated_at = $3 WHERE id = $1`
	tag, err := queryEngine(ctx, r.db).Exec(ctx, query, id, domain.ConnectionInactive, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgInstanceRepository) scanOne(ctx context.Context, query string, arg any) (*domain.Instance, error) {
	row := queryEngine(ctx, r.db).QueryRow(ctx, query, arg)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return inst, nil
}

func scanInstance(row pgx.Row) (*domain.Instance, error) {
	inst := &domain.Instance{}
	var authJSON []byte
	err := row.Scan(
		&inst.ID, &inst.TenantID, &inst.Name, &inst.Provider, &inst.APIBaseURL, &authJSON,
		&inst.WebhookKey, &inst.WebhookSecret, &inst.Connection, &inst.PhoneNumber,
		&inst.Active, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(authJSON, &inst.Auth); err != nil {
		return nil, err
	}
	return inst, nil
}
