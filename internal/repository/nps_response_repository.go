package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/testimonioya/recovery-service/internal/domain"
)

type npsResponseRepository struct {
	pool *pgxpool.Pool
}

// NewNPSResponseRepository returns a Postgres-backed implementation.
func NewNPSResponseRepository(pool *pgxpool.Pool) NPSResponseRepository {
	return &npsResponseRepository{pool: pool}
}

func (r *npsResponseRepository) Create(ctx context.Context, resp *domain.NPSResponse) error {
	const query = `
        INSERT INTO nps_responses (id, business_id, score, category, feedback, customer_name, customer_email, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.pool.Exec(ctx, query,
		resp.ID,
		resp.BusinessID,
		resp.Score,
		resp.Category,
		resp.Feedback,
		resp.CustomerName,
		resp.CustomerEmail,
		resp.CreatedAt,
	)
	return err
}
