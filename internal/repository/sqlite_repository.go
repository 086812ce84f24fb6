package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/testimonioya/recovery-service/internal/domain"
)

// SQLite implementations share one *sql.DB opened by persistence.OpenSQLite.
// Timestamps are stored as unix microseconds.

type sqliteCaseRepository struct {
	db *sql.DB
}

// NewSQLiteRecoveryCaseRepository returns a SQLite-backed implementation.
func NewSQLiteRecoveryCaseRepository(db *sql.DB) RecoveryCaseRepository {
	return &sqliteCaseRepository{db: db}
}

func (r *sqliteCaseRepository) Create(ctx context.Context, c *domain.RecoveryCase) error {
	messages, err := encodeMessages(c.Messages)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recovery_cases (id, business_id, nps_response_id, customer_name, customer_email,
			status, messages, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		c.ID,
		c.BusinessID,
		c.NPSResponseID,
		c.CustomerName,
		c.CustomerEmail,
		string(c.Status),
		messages,
		c.CreatedAt.UnixMicro(),
		c.UpdatedAt.UnixMicro(),
	)
	if err != nil {
		return err
	}
	c.Version = 1
	return nil
}

func (r *sqliteCaseRepository) GetByID(ctx context.Context, id string) (*domain.RecoveryCase, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM recovery_cases WHERE id = ?`, id)
	c, err := scanSQLiteCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (r *sqliteCaseRepository) ListByBusiness(ctx context.Context, businessID string, limit, offset int) ([]domain.RecoveryCase, error) {
	limit, offset = normalizePage(limit, offset)
	rows, err := r.db.QueryContext(ctx, `SELECT `+caseColumns+` FROM recovery_cases
		WHERE business_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, businessID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RecoveryCase
	for rows.Next() {
		c, err := scanSQLiteCase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (r *sqliteCaseRepository) Update(ctx context.Context, c *domain.RecoveryCase, expectedVersion int64) error {
	messages, err := encodeMessages(c.Messages)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE recovery_cases SET status = ?, messages = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(c.Status), messages, c.UpdatedAt.UnixMicro(), c.ID, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	c.Version = expectedVersion + 1
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteCase(row rowScanner) (*domain.RecoveryCase, error) {
	var (
		c                    domain.RecoveryCase
		npsID, name, email   sql.NullString
		status, messages     string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&c.ID,
		&c.BusinessID,
		&npsID,
		&name,
		&email,
		&status,
		&messages,
		&c.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	msgs, err := decodeMessages([]byte(messages))
	if err != nil {
		return nil, err
	}
	c.NPSResponseID = nullableString(npsID)
	c.CustomerName = nullableString(name)
	c.CustomerEmail = nullableString(email)
	c.Status = domain.CaseStatus(status)
	c.Messages = msgs
	c.CreatedAt = time.UnixMicro(createdAt).UTC()
	c.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return &c, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

type sqliteBusinessRepository struct {
	db *sql.DB
}

// NewSQLiteBusinessRepository returns a SQLite-backed implementation.
func NewSQLiteBusinessRepository(db *sql.DB) BusinessRepository {
	return &sqliteBusinessRepository{db: db}
}

func (r *sqliteBusinessRepository) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	var biz domain.Business
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, business_name, use_recovery_flow FROM businesses WHERE id = ?`, id).
		Scan(&biz.ID, &biz.UserID, &biz.BusinessName, &biz.UseRecoveryFlow)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &biz, nil
}

type sqliteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository returns a SQLite-backed implementation.
func NewSQLiteUserRepository(db *sql.DB) UserRepository {
	return &sqliteUserRepository{db: db}
}

func (r *sqliteUserRepository) GetEmail(ctx context.Context, userID string) (string, error) {
	var email sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = ?`, userID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && (!email.Valid || email.String == "")) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return email.String, nil
}

type sqliteNPSRepository struct {
	db *sql.DB
}

// NewSQLiteNPSResponseRepository returns a SQLite-backed implementation.
func NewSQLiteNPSResponseRepository(db *sql.DB) NPSResponseRepository {
	return &sqliteNPSRepository{db: db}
}

func (r *sqliteNPSRepository) Create(ctx context.Context, resp *domain.NPSResponse) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO nps_responses (id, business_id, score, category, feedback, customer_name, customer_email, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		resp.ID,
		resp.BusinessID,
		resp.Score,
		string(resp.Category),
		resp.Feedback,
		resp.CustomerName,
		resp.CustomerEmail,
		resp.CreatedAt.UnixMicro(),
	)
	return err
}
