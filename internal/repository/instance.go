package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wavehub/instance-server-go/internal/database"
	"github.com/wavehub/instance-server-go/internal/model"
)

type InstanceRepository interface {
	FindByID(ctx context.Context, id string) (*model.Instance, error)
	List(ctx context.Context) ([]model.Instance, error)
	Upsert(ctx context.Context, params model.UpsertInstanceParams) error
	Delete(ctx context.Context, id string) error
	DeleteOrphaned(ctx context.Context, activeIDs []string) (int64, error)
}

type instanceRepo struct {
	db database.DBTX
}

func NewInstanceRepository(db database.DBTX) InstanceRepository {
	return &instanceRepo{db: db}
}

func (r *instanceRepo) FindByID(ctx context.Context, id string) (*model.Instance, error) {
	var inst model.Instance
	err := r.db.GetContext(ctx, &inst, `SELECT * FROM instances WHERE id = $1`, id)
	return HandleNotFound(&inst, err)
}

func (r *instanceRepo) List(ctx context.Context) ([]model.Instance, error) {
	var instances []model.Instance
	err := r.db.SelectContext(ctx, &instances, `
		SELECT * FROM instances
		ORDER BY created_at ASC
	`)
	return instances, err
}

func (r *instanceRepo) Upsert(ctx context.Context, params model.UpsertInstanceParams) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO instances
			(id, name, status, pairing_artifact, bound_address, last_transition_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			pairing_artifact = EXCLUDED.pairing_artifact,
			bound_address = EXCLUDED.bound_address,
			last_transition_at = EXCLUDED.last_transition_at,
			updated_at = EXCLUDED.updated_at
	`, params.ID, params.Name, params.Status, params.PairingArtifact,
		params.BoundAddress, params.LastTransitionAt, time.Now())
	return err
}

func (r *instanceRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM instances WHERE id = $1`, id)
	return err
}

func (r *instanceRepo) DeleteOrphaned(ctx context.Context, activeIDs []string) (int64, error) {
	if len(activeIDs) == 0 {
		result, err := r.db.ExecContext(ctx, `DELETE FROM instances`)
		if err != nil {
			return 0, err
		}
		return result.RowsAffected()
	}

	query, args, err := sqlx.In(`DELETE FROM instances WHERE id NOT IN (?)`, activeIDs)
	if err != nil {
		return 0, err
	}
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
