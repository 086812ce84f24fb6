package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/testimonioya/recovery-service/internal/auth"
	"github.com/testimonioya/recovery-service/internal/domain"
	"github.com/testimonioya/recovery-service/internal/events"
	"github.com/testimonioya/recovery-service/internal/notify"
	"github.com/testimonioya/recovery-service/internal/repository"
	apperrors "github.com/testimonioya/recovery-service/pkg/util"
)

const (
	ownerID    = "user-owner"
	strangerID = "user-stranger"
	businessID = "biz-1"
	baseURL    = "https://testimonioya.com"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Email
	err  error
}

func (m *recordingMailer) Send(_ context.Context, e notify.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
	return m.err
}

func (m *recordingMailer) emails() []notify.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Email(nil), m.sent...)
}

type countingLimiter struct {
	mu       sync.Mutex
	failures map[string]int
	max      int
}

func (l *countingLimiter) Blocked(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.max > 0 && l.failures[key] >= l.max
}

func (l *countingLimiter) RecordFailure(_ context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[key]++
}

type fixture struct {
	store   *repository.MemoryStore
	tokens  *auth.CaseTokens
	mailer  *recordingMailer
	limiter *countingLimiter
	svc     *RecoveryService
	clock   *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithCases(t, nil)
}

// newFixtureWithCases lets a test wrap the case repository.
func newFixtureWithCases(t *testing.T, wrap func(repository.RecoveryCaseRepository) repository.RecoveryCaseRepository) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	store.PutBusiness(domain.Business{ID: businessID, UserID: ownerID, BusinessName: "Café Sol", UseRecoveryFlow: true})
	store.PutUser(ownerID, "owner@cafesol.com")

	tokens, err := auth.NewCaseTokens("test-secret")
	require.NoError(t, err)

	cases := store.Cases()
	if wrap != nil {
		cases = wrap(cases)
	}

	f := &fixture{
		store:   store,
		tokens:  tokens,
		mailer:  &recordingMailer{},
		limiter: &countingLimiter{failures: map[string]int{}, max: 3},
		clock:   &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}

	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	NewNotificationService(NotificationDependencies{
		Dispatcher:   dispatcher,
		CaseRepo:     store.Cases(),
		BusinessRepo: store.Businesses(),
		UserRepo:     store.Users(),
		Tokens:       tokens,
		Mailer:       f.mailer,
		BaseURL:      baseURL,
	}).RegisterHandlers()

	f.svc = NewRecoveryService(RecoveryDependencies{
		CaseRepo:     cases,
		BusinessRepo: store.Businesses(),
		NPSRepo:      store.NPS(),
		Tokens:       tokens,
		Limiter:      f.limiter,
		Dispatcher:   dispatcher,
		BaseURL:      baseURL,
		Clock:        f.clock.Now,
	})
	return f
}

func (f *fixture) seedCase(t *testing.T, email *string, messages int) *domain.RecoveryCase {
	t.Helper()
	name := "Ana"
	c := &domain.RecoveryCase{
		ID:            uuid.NewString(),
		BusinessID:    businessID,
		CustomerName:  &name,
		CustomerEmail: email,
		Status:        domain.CaseStatusOpen,
		CreatedAt:     f.clock.Now(),
	}
	for i := 0; i < messages; i++ {
		c.Messages = append(c.Messages, domain.Message{Role: domain.RoleCustomer, Text: "seed", CreatedAt: c.CreatedAt})
	}
	c.UpdatedAt = c.CreatedAt
	require.NoError(t, f.store.Cases().Create(context.Background(), c))
	return c
}

func (f *fixture) load(t *testing.T, id string) *domain.RecoveryCase {
	t.Helper()
	c, err := f.store.Cases().GetByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func strPtr(s string) *string { return &s }

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCase(t, strPtr("a@b.com"), 0)

	res, err := f.svc.BusinessReply(ctx, ownerID, c.ID, "Lamentamos...")
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusInProgress, res.Case.Status)
	require.Len(t, res.Case.Messages, 1)
	assert.Equal(t, domain.RoleBusiness, res.Case.Messages[0].Role)
	assert.Equal(t, "Lamentamos...", res.Case.Messages[0].Text)

	token := f.tokens.Generate(c.ID, "a@b.com")
	res, err = f.svc.CustomerReply(ctx, c.ID, token, "Gracias por responder")
	require.NoError(t, err)
	assert.Len(t, res.Case.Messages, 2)
	assert.Equal(t, domain.CaseStatusInProgress, res.Case.Status)

	stored := f.load(t, c.ID)
	assert.Len(t, stored.Messages, 2)
	assert.Equal(t, domain.CaseStatusInProgress, stored.Status)

	sent := f.mailer.emails()
	require.Len(t, sent, 2)
	assert.Equal(t, "a@b.com", sent[0].To)
	assert.Contains(t, sent[0].HTML, BuildCustomerLink(baseURL, c.ID, token))
	assert.Equal(t, "owner@cafesol.com", sent[1].To)
	assert.Contains(t, sent[1].HTML, baseURL+"/dashboard/recovery")
}

func TestCustomerWithoutEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCase(t, nil, 0)

	_, err := f.svc.CustomerReply(ctx, c.ID, f.tokens.Generate(c.ID, ""), "hola")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	res, err := f.svc.BusinessReply(ctx, ownerID, c.ID, "Lamentamos lo ocurrido")
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusInProgress, res.Case.Status)
	assert.Empty(t, f.mailer.emails())
}

func TestBusinessReplyRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, strPtr("a@b.com"), 0)

	_, err := f.svc.BusinessReply(context.Background(), strangerID, c.ID, "hola")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Empty(t, f.load(t, c.ID).Messages)
}

func TestCaseNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.BusinessReply(context.Background(), ownerID, "missing", "hola")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.CustomerReply(context.Background(), "missing", "token", "hola")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInvalidTokenRejectedAndCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCase(t, strPtr("a@b.com"), 0)

	for i := 0; i < 3; i++ {
		_, err := f.svc.CustomerReply(ctx, c.ID, "deadbeef", "hola")
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	}

	_, err := f.svc.CustomerReply(ctx, c.ID, f.tokens.Generate(c.ID, "a@b.com"), "hola")
	assert.ErrorIs(t, err, apperrors.ErrTooManyAttempts)
	assert.Empty(t, f.load(t, c.ID).Messages)
}

func TestMessageCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCase(t, strPtr("a@b.com"), 0)
	token := f.tokens.Generate(c.ID, "a@b.com")

	for i := 0; i < domain.MaxCaseMessages; i++ {
		var err error
		if i%2 == 0 {
			_, err = f.svc.BusinessReply(ctx, ownerID, c.ID, "b")
		} else {
			_, err = f.svc.CustomerReply(ctx, c.ID, token, "c")
		}
		require.NoError(t, err)
	}

	_, err := f.svc.CustomerReply(ctx, c.ID, token, "sixth")
	assert.ErrorIs(t, err, apperrors.ErrMessageLimitReached)
	_, err = f.svc.BusinessReply(ctx, ownerID, c.ID, "sixth")
	assert.ErrorIs(t, err, apperrors.ErrMessageLimitReached)
	assert.Len(t, f.load(t, c.ID).Messages, domain.MaxCaseMessages)
}

func TestClosedIsAbsorbing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCase(t, strPtr("a@b.com"), 1)

	closed, err := f.svc.Close(ctx, ownerID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusClosed, closed.Status)

	again, err := f.svc.Close(ctx, ownerID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, closed.Version, again.Version)

	_, err = f.svc.BusinessReply(ctx, ownerID, c.ID, "hola")
	assert.ErrorIs(t, err, apperrors.ErrCaseClosed)
	_, err = f.svc.CustomerReply(ctx, c.ID, f.tokens.Generate(c.ID, "a@b.com"), "hola")
	assert.ErrorIs(t, err, apperrors.ErrCaseClosed)
	assert.Len(t, f.load(t, c.ID).Messages, 1)
}

func TestBlankTextRejected(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, strPtr("a@b.com"), 0)
	before := f.load(t, c.ID)

	_, err := f.svc.BusinessReply(context.Background(), ownerID, c.ID, "   ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	after := f.load(t, c.ID)
	assert.Empty(t, after.Messages)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, domain.CaseStatusOpen, after.Status)
}

func TestOrderingPreserved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCase(t, strPtr("a@b.com"), 0)
	token := f.tokens.Generate(c.ID, "a@b.com")

	_, err := f.svc.CustomerReply(ctx, c.ID, token, "m1")
	require.NoError(t, err)
	_, err = f.svc.CustomerReply(ctx, c.ID, token, "m2")
	require.NoError(t, err)

	msgs := f.load(t, c.ID).Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].Text)
	assert.Equal(t, "m2", msgs[1].Text)
	assert.True(t, msgs[0].CreatedAt.Before(msgs[1].CreatedAt))
	assert.Equal(t, domain.CaseStatusOpen, f.load(t, c.ID).Status)
}

func TestTextIsTrimmed(t *testing.T) {
	f := newFixture(t)
	c := f.seedCase(t, nil, 0)

	res, err := f.svc.BusinessReply(context.Background(), ownerID, c.ID, "  hola \n")
	require.NoError(t, err)
	assert.Equal(t, "hola", res.Message.Text)
}

// barrierCases holds the first n loads until all n have happened, so
// concurrent appends observe the same version.
type barrierCases struct {
	repository.RecoveryCaseRepository
	n     int32
	calls atomic.Int32
	wg    sync.WaitGroup
}

func newBarrierCases(inner repository.RecoveryCaseRepository, n int) *barrierCases {
	b := &barrierCases{RecoveryCaseRepository: inner, n: int32(n)}
	b.wg.Add(n)
	return b
}

func (b *barrierCases) GetByID(ctx context.Context, id string) (*domain.RecoveryCase, error) {
	c, err := b.RecoveryCaseRepository.GetByID(ctx, id)
	if b.calls.Add(1) <= b.n {
		b.wg.Done()
		b.wg.Wait()
	}
	return c, err
}

func TestConcurrentAppendsRacingForLastSlot(t *testing.T) {
	f := newFixtureWithCases(t, func(inner repository.RecoveryCaseRepository) repository.RecoveryCaseRepository {
		return newBarrierCases(inner, 2)
	})
	ctx := context.Background()
	c := f.seedCase(t, strPtr("a@b.com"), 4)
	token := f.tokens.Generate(c.ID, "a@b.com")

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.svc.BusinessReply(ctx, ownerID, c.ID, "business")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.svc.CustomerReply(ctx, c.ID, token, "customer")
	}()
	wg.Wait()

	var successes, losers int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, apperrors.ErrMessageLimitReached), errors.Is(err, apperrors.ErrConflict):
			losers++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, losers)
	assert.Len(t, f.load(t, c.ID).Messages, domain.MaxCaseMessages)
}

type conflictingCases struct {
	repository.RecoveryCaseRepository
	failures int32
	updates  atomic.Int32
}

func (c *conflictingCases) Update(ctx context.Context, rc *domain.RecoveryCase, expected int64) error {
	if c.updates.Add(1) <= c.failures {
		return repository.ErrVersionConflict
	}
	return c.RecoveryCaseRepository.Update(ctx, rc, expected)
}

func TestConflictRetriedOnce(t *testing.T) {
	var cc *conflictingCases
	f := newFixtureWithCases(t, func(inner repository.RecoveryCaseRepository) repository.RecoveryCaseRepository {
		cc = &conflictingCases{RecoveryCaseRepository: inner, failures: 1}
		return cc
	})
	c := f.seedCase(t, nil, 0)

	_, err := f.svc.BusinessReply(context.Background(), ownerID, c.ID, "hola")
	require.NoError(t, err)
	assert.Equal(t, int32(2), cc.updates.Load())
	assert.Len(t, f.load(t, c.ID).Messages, 1)
}

func TestPersistentConflictSurfaces(t *testing.T) {
	var cc *conflictingCases
	f := newFixtureWithCases(t, func(inner repository.RecoveryCaseRepository) repository.RecoveryCaseRepository {
		cc = &conflictingCases{RecoveryCaseRepository: inner, failures: 10}
		return cc
	})
	c := f.seedCase(t, nil, 0)

	_, err := f.svc.BusinessReply(context.Background(), ownerID, c.ID, "hola")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, int32(2), cc.updates.Load())
	assert.Empty(t, f.load(t, c.ID).Messages)
	assert.Empty(t, f.mailer.emails())
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("provider down")
	c := f.seedCase(t, strPtr("a@b.com"), 0)

	_, err := f.svc.BusinessReply(context.Background(), ownerID, c.ID, "hola")
	require.NoError(t, err)
	assert.Len(t, f.mailer.emails(), 1)
	assert.Len(t, f.load(t, c.ID).Messages, 1)
}

func TestListAndGetForBusiness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCase(t, strPtr("a@b.com"), 1)

	list, err := f.svc.ListForBusiness(ctx, ownerID, businessID, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)

	_, err = f.svc.ListForBusiness(ctx, strangerID, businessID, 0, 0)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.svc.ListForBusiness(ctx, ownerID, "", 0, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	got, err := f.svc.GetForBusiness(ctx, ownerID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestGetForCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCase(t, strPtr("a@b.com"), 1)

	view, err := f.svc.GetForCustomer(ctx, c.ID, f.tokens.Generate(c.ID, "a@b.com"))
	require.NoError(t, err)
	assert.Equal(t, "Café Sol", view.BusinessName)
	assert.Len(t, view.Case.Messages, 1)

	_, err = f.svc.GetForCustomer(ctx, c.ID, f.tokens.Generate(c.ID, "other@b.com"))
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestCustomerLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCase(t, strPtr("a@b.com"), 0)

	link, err := f.svc.CustomerLink(ctx, ownerID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, baseURL+"/recovery/"+c.ID+"?token="+f.tokens.Generate(c.ID, "a@b.com"), link)

	noEmail := f.seedCase(t, nil, 0)
	_, err = f.svc.CustomerLink(ctx, ownerID, noEmail.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestOpenFromNPS(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.OpenFromNPS(ctx, NPSInput{
		BusinessID:    businessID,
		Score:         3,
		Feedback:      "  El pedido llegó frío ",
		CustomerName:  "Ana",
		CustomerEmail: "a@b.com",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.NPSDetractor, res.Response.Category)
	require.NotNil(t, res.Case)
	assert.Equal(t, domain.CaseStatusOpen, res.Case.Status)
	assert.Equal(t, res.Response.ID, *res.Case.NPSResponseID)
	require.Len(t, res.Case.Messages, 1)
	assert.Equal(t, domain.RoleCustomer, res.Case.Messages[0].Role)
	assert.Equal(t, "El pedido llegó frío", res.Case.Messages[0].Text)
	assert.Equal(t, "a@b.com", res.Case.Email())

	stored := f.load(t, res.Case.ID)
	assert.Equal(t, int64(1), stored.Version)
	assert.Len(t, f.store.NPSResponses(), 1)
}

func TestOpenFromNPSRouting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	passive, err := f.svc.OpenFromNPS(ctx, NPSInput{BusinessID: businessID, Score: 8})
	require.NoError(t, err)
	assert.Equal(t, domain.NPSPassive, passive.Response.Category)
	assert.Nil(t, passive.Case)

	_, err = f.svc.OpenFromNPS(ctx, NPSInput{BusinessID: businessID, Score: 10, Feedback: "genial"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = f.svc.OpenFromNPS(ctx, NPSInput{BusinessID: businessID, Score: 2})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = f.svc.OpenFromNPS(ctx, NPSInput{BusinessID: businessID, Score: 11})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = f.svc.OpenFromNPS(ctx, NPSInput{BusinessID: "missing", Score: 8})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	f.store.PutBusiness(domain.Business{ID: "biz-2", UserID: ownerID, BusinessName: "Sin flujo"})
	res, err := f.svc.OpenFromNPS(ctx, NPSInput{BusinessID: "biz-2", Score: 1, Feedback: "mal"})
	require.NoError(t, err)
	assert.Nil(t, res.Case)
}

// Postgres repositories with no pool: a malformed id must never reach the
// database, so these calls would panic if it did.
func TestMalformedIDsAreNotFoundOnPostgres(t *testing.T) {
	tokens, err := auth.NewCaseTokens("test-secret")
	require.NoError(t, err)
	svc := NewRecoveryService(RecoveryDependencies{
		CaseRepo:     repository.NewRecoveryCaseRepository(nil),
		BusinessRepo: repository.NewBusinessRepository(nil),
		NPSRepo:      repository.NewNPSResponseRepository(nil),
		Tokens:       tokens,
	})
	ctx := context.Background()

	_, err = svc.CustomerReply(ctx, "not-a-uuid", tokens.Generate("not-a-uuid", "a@b.com"), "hola")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.GetForCustomer(ctx, "not-a-uuid", "whatever")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.BusinessReply(ctx, ownerID, "not-a-uuid", "hola")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.OpenFromNPS(ctx, NPSInput{BusinessID: "not-a-uuid", Score: 2, Feedback: "lento"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.ListForBusiness(ctx, ownerID, "not-a-uuid", 10, 0)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}
