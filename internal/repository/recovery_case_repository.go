package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/testimonioya/recovery-service/internal/domain"
)

type recoveryCaseRepository struct {
	pool *pgxpool.Pool
}

// NewRecoveryCaseRepository returns a Postgres-backed implementation.
func NewRecoveryCaseRepository(pool *pgxpool.Pool) RecoveryCaseRepository {
	return &recoveryCaseRepository{pool: pool}
}

const caseColumns = `id, business_id, nps_response_id, customer_name, customer_email,
               status, messages, version, created_at, updated_at`

func (r *recoveryCaseRepository) Create(ctx context.Context, c *domain.RecoveryCase) error {
	messages, err := encodeMessages(c.Messages)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO recovery_cases (id, business_id, nps_response_id, customer_name, customer_email,
            status, messages, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,1,$8,$9)`
	if _, err := r.pool.Exec(ctx, query,
		c.ID,
		c.BusinessID,
		c.NPSResponseID,
		c.CustomerName,
		c.CustomerEmail,
		c.Status,
		messages,
		c.CreatedAt,
		c.UpdatedAt,
	); err != nil {
		return err
	}
	c.Version = 1
	return nil
}

func (r *recoveryCaseRepository) GetByID(ctx context.Context, id string) (*domain.RecoveryCase, error) {
	if !pgKey(id) {
		return nil, ErrNotFound
	}
	query := `SELECT ` + caseColumns + ` FROM recovery_cases WHERE id=$1`
	c, err := scanCase(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (r *recoveryCaseRepository) ListByBusiness(ctx context.Context, businessID string, limit, offset int) ([]domain.RecoveryCase, error) {
	if !pgKey(businessID) {
		return nil, nil
	}
	limit, offset = normalizePage(limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM recovery_cases WHERE business_id=$1
             ORDER BY created_at DESC LIMIT %d OFFSET %d`, caseColumns, limit, offset)

	rows, err := r.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RecoveryCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (r *recoveryCaseRepository) Update(ctx context.Context, c *domain.RecoveryCase, expectedVersion int64) error {
	if !pgKey(c.ID) {
		return ErrNotFound
	}
	messages, err := encodeMessages(c.Messages)
	if err != nil {
		return err
	}
	const query = `
        UPDATE recovery_cases SET status=$1, messages=$2, updated_at=$3, version=version+1
        WHERE id=$4 AND version=$5`
	cmd, err := r.pool.Exec(ctx, query, c.Status, messages, c.UpdatedAt, c.ID, expectedVersion)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	c.Version = expectedVersion + 1
	return nil
}

func scanCase(row pgx.Row) (*domain.RecoveryCase, error) {
	var (
		c   domain.RecoveryCase
		raw []byte
	)
	if err := row.Scan(
		&c.ID,
		&c.BusinessID,
		&c.NPSResponseID,
		&c.CustomerName,
		&c.CustomerEmail,
		&c.Status,
		&raw,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	msgs, err := decodeMessages(raw)
	if err != nil {
		return nil, err
	}
	c.Messages = msgs
	return &c, nil
}

func encodeMessages(msgs []domain.Message) (string, error) {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return "", fmt.Errorf("encode messages: %w", err)
	}
	return string(b), nil
}

func decodeMessages(raw []byte) ([]domain.Message, error) {
	if len(raw) == 0 {
		return []domain.Message{}, nil
	}
	var msgs []domain.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}
