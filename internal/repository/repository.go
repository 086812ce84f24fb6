package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/testimonioya/recovery-service/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a conditional update lost a race.
	ErrVersionConflict = errors.New("version conflict")
)

// RecoveryCaseRepository persists recovery cases. Update is a compare-and-swap
// on Version: it succeeds only if the stored version equals expectedVersion and
// then sets c.Version to expectedVersion+1.
type RecoveryCaseRepository interface {
	Create(ctx context.Context, c *domain.RecoveryCase) error
	GetByID(ctx context.Context, id string) (*domain.RecoveryCase, error)
	ListByBusiness(ctx context.Context, businessID string, limit, offset int) ([]domain.RecoveryCase, error)
	Update(ctx context.Context, c *domain.RecoveryCase, expectedVersion int64) error
}

// BusinessRepository reads tenant records.
type BusinessRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Business, error)
}

// UserRepository resolves account emails for owner notifications.
type UserRepository interface {
	GetEmail(ctx context.Context, userID string) (string, error)
}

// NPSResponseRepository stores survey submissions.
type NPSResponseRepository interface {
	Create(ctx context.Context, r *domain.NPSResponse) error
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// pgKey reports whether id can match a Postgres primary key. The Postgres
// schema types ids as UUID, so any other text is rejected by the server rather
// than simply matching no row.
func pgKey(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
