package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/testimonioya/recovery-service/internal/domain"
)

type businessRepository struct {
	pool *pgxpool.Pool
}

// NewBusinessRepository returns a Postgres-backed implementation.
func NewBusinessRepository(pool *pgxpool.Pool) BusinessRepository {
	return &businessRepository{pool: pool}
}

func (r *businessRepository) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	if !pgKey(id) {
		return nil, ErrNotFound
	}
	const query = `
        SELECT id, user_id, business_name, COALESCE(use_recovery_flow, false)
        FROM businesses WHERE id=$1`

	var biz domain.Business
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&biz.ID,
		&biz.UserID,
		&biz.BusinessName,
		&biz.UseRecoveryFlow,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &biz, nil
}
