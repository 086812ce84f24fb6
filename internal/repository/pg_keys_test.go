package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testimonioya/recovery-service/internal/domain"
)

// The pool is nil: malformed ids must be answered before any query is sent.
func TestPostgresReposTreatMalformedIDsAsMissing(t *testing.T) {
	ctx := context.Background()

	_, err := NewRecoveryCaseRepository(nil).GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := NewRecoveryCaseRepository(nil).ListByBusiness(ctx, "biz'; --", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = NewRecoveryCaseRepository(nil).Update(ctx, &domain.RecoveryCase{ID: "42"}, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewBusinessRepository(nil).GetByID(ctx, "biz-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewUserRepository(nil).GetEmail(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPgKey(t *testing.T) {
	assert.True(t, pgKey(uuid.NewString()))
	assert.True(t, pgKey("6F9619FF-8B86-D011-B42D-00C04FC964FF"))
	for _, id := range []string{"", "not-a-uuid", "123", "6f9619ff-8b86-d011-b42d-00c04fc964f"} {
		assert.False(t, pgKey(id), id)
	}
}
