package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation over the auth
// provider's users table.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) GetEmail(ctx context.Context, userID string) (string, error) {
	if !pgKey(userID) {
		return "", ErrNotFound
	}
	const query = `SELECT COALESCE(email, '') FROM auth.users WHERE id=$1`

	var email string
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	if email == "" {
		return "", ErrNotFound
	}
	return email, nil
}
