package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/testimonioya/recovery-service/internal/auth"
	"github.com/testimonioya/recovery-service/internal/domain"
	"github.com/testimonioya/recovery-service/internal/events"
	"github.com/testimonioya/recovery-service/internal/observability"
	"github.com/testimonioya/recovery-service/internal/repository"
	apperrors "github.com/testimonioya/recovery-service/pkg/util"
)

const (
	msgNotYourCase  = "not authorized for this case"
	msgInvalidLink  = "invalid or expired link"
	appendAttempts  = 2
	defaultPageSize = 20
)

// RecoveryService coordinates recovery case workflows.
type RecoveryService struct {
	cases      repository.RecoveryCaseRepository
	businesses repository.BusinessRepository
	nps        repository.NPSResponseRepository
	tokens     *auth.CaseTokens
	limiter    auth.AttemptLimiter
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	baseURL    string
	now        func() time.Time
}

// RecoveryDependencies bundles collaborators for the recovery service.
type RecoveryDependencies struct {
	CaseRepo     repository.RecoveryCaseRepository
	BusinessRepo repository.BusinessRepository
	NPSRepo      repository.NPSResponseRepository
	Tokens       *auth.CaseTokens
	Limiter      auth.AttemptLimiter
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	BaseURL      string
	Clock        func() time.Time
}

// AuthProof carries the caller's credential for one side of the conversation.
// Business callers set UserID, customers set Token.
type AuthProof struct {
	UserID string
	Token  string
}

// AppendResult is returned after a message is stored.
type AppendResult struct {
	Case    *domain.RecoveryCase
	Message domain.Message
}

// NPSInput describes a survey submission.
type NPSInput struct {
	BusinessID    string
	Score         int
	Feedback      string
	CustomerName  string
	CustomerEmail string
}

// NPSResult reports how a submission was routed.
type NPSResult struct {
	Response *domain.NPSResponse
	Case     *domain.RecoveryCase
}

// CustomerView is what the customer page shows.
type CustomerView struct {
	Case         *domain.RecoveryCase
	BusinessName string
}

// NewRecoveryService constructs the service.
func NewRecoveryService(deps RecoveryDependencies) *RecoveryService {
	s := &RecoveryService{
		cases:      deps.CaseRepo,
		businesses: deps.BusinessRepo,
		nps:        deps.NPSRepo,
		tokens:     deps.Tokens,
		limiter:    deps.Limiter,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		baseURL:    strings.TrimRight(deps.BaseURL, "/"),
		now:        deps.Clock,
	}
	if s.limiter == nil {
		s.limiter = auth.NoopLimiter{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// BusinessReply appends a message written by the case owner.
func (s *RecoveryService) BusinessReply(ctx context.Context, userID, caseID, text string) (*AppendResult, error) {
	return s.AppendMessage(ctx, caseID, domain.RoleBusiness, text, AuthProof{UserID: userID})
}

// CustomerReply appends a message written by the customer holding the link token.
func (s *RecoveryService) CustomerReply(ctx context.Context, caseID, token, text string) (*AppendResult, error) {
	return s.AppendMessage(ctx, caseID, domain.RoleCustomer, text, AuthProof{Token: token})
}

// AppendMessage loads, authorizes, appends and stores in one compare-and-swap.
// A lost race is retried once against fresh state; a second loss is a Conflict.
func (s *RecoveryService) AppendMessage(ctx context.Context, caseID string, role domain.MessageRole, text string, proof AuthProof) (*AppendResult, error) {
	if !role.Valid() {
		return nil, apperrors.NewValidationError("unknown author role", map[string]any{"role": role})
	}

	for attempt := 1; ; attempt++ {
		c, err := s.loadAuthorized(ctx, caseID, role, proof)
		if err != nil {
			s.metrics.AppendRejected(string(role), apperrors.ToDomainError(err).Code)
			return nil, err
		}

		msg, err := c.Append(role, text, s.now())
		if err != nil {
			s.metrics.AppendRejected(string(role), apperrors.ToDomainError(err).Code)
			return nil, err
		}

		err = s.cases.Update(ctx, c, c.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.VersionConflict()
			if attempt < appendAttempts {
				s.logger.Debug("recovery case changed concurrently, retrying", zap.String("case_id", caseID))
				continue
			}
			s.metrics.AppendRejected(string(role), apperrors.CodeConflict)
			return nil, apperrors.NewConflict("case was modified concurrently, try again", map[string]any{"case_id": caseID})
		}
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}

		s.metrics.MessageAppended(string(role))
		s.publishEvent(ctx, events.NewEvent(events.EventRecoveryMessageAdded, c, msg.CreatedAt, events.MessageAddedPayload{
			Role:         role,
			Text:         msg.Text,
			MessageCount: len(c.Messages),
		}))
		return &AppendResult{Case: c, Message: msg}, nil
	}
}

// GetForBusiness returns a case owned by userID.
func (s *RecoveryService) GetForBusiness(ctx context.Context, userID, caseID string) (*domain.RecoveryCase, error) {
	return s.loadAuthorized(ctx, caseID, domain.RoleBusiness, AuthProof{UserID: userID})
}

// ListForBusiness lists cases of a business owned by userID, newest first.
func (s *RecoveryService) ListForBusiness(ctx context.Context, userID, businessID string, limit, offset int) ([]domain.RecoveryCase, error) {
	if strings.TrimSpace(businessID) == "" {
		return nil, apperrors.NewValidationError("business_id is required", nil)
	}
	if _, err := s.ownedBusiness(ctx, userID, businessID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	cases, err := s.cases.ListByBusiness(ctx, businessID, limit, offset)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if cases == nil {
		cases = []domain.RecoveryCase{}
	}
	return cases, nil
}

// GetForCustomer returns the case and business name for a valid link token.
func (s *RecoveryService) GetForCustomer(ctx context.Context, caseID, token string) (*CustomerView, error) {
	c, err := s.loadAuthorized(ctx, caseID, domain.RoleCustomer, AuthProof{Token: token})
	if err != nil {
		return nil, err
	}
	view := &CustomerView{Case: c}
	biz, err := s.businesses.GetByID(ctx, c.BusinessID)
	switch {
	case err == nil:
		view.BusinessName = biz.BusinessName
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewInternalError(err)
	}
	return view, nil
}

// Close moves an owned case to closed. Closing a closed case is a no-op.
func (s *RecoveryService) Close(ctx context.Context, userID, caseID string) (*domain.RecoveryCase, error) {
	for attempt := 1; ; attempt++ {
		c, err := s.GetForBusiness(ctx, userID, caseID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		if !c.Close(now) {
			return c, nil
		}

		err = s.cases.Update(ctx, c, c.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.VersionConflict()
			if attempt < appendAttempts {
				continue
			}
			return nil, apperrors.NewConflict("case was modified concurrently, try again", map[string]any{"case_id": caseID})
		}
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}

		s.publishEvent(ctx, events.NewEvent(events.EventRecoveryCaseClosed, c, now, events.CaseClosedPayload{
			MessageCount: len(c.Messages),
		}))
		return c, nil
	}
}

// CustomerLink builds the emailed reply link for a case owned by userID.
func (s *RecoveryService) CustomerLink(ctx context.Context, userID, caseID string) (string, error) {
	c, err := s.GetForBusiness(ctx, userID, caseID)
	if err != nil {
		return "", err
	}
	if !c.HasCustomerChannel() {
		return "", apperrors.NewValidationError("case has no customer email", nil)
	}
	return BuildCustomerLink(s.baseURL, c.ID, s.tokens.Generate(c.ID, c.Email())), nil
}

// BuildCustomerLink formats <base>/recovery/<id>?token=<token>.
func BuildCustomerLink(baseURL, caseID, token string) string {
	return strings.TrimRight(baseURL, "/") + "/recovery/" + url.PathEscape(caseID) + "?token=" + url.QueryEscape(token)
}

// OpenFromNPS records a survey submission and opens a recovery case for
// detractors of businesses that use the recovery flow. The feedback becomes
// the first customer message.
func (s *RecoveryService) OpenFromNPS(ctx context.Context, input NPSInput) (*NPSResult, error) {
	category, err := domain.CategorizeScore(input.Score)
	if err != nil {
		return nil, err
	}
	feedback := strings.TrimSpace(input.Feedback)
	name := strings.TrimSpace(input.CustomerName)
	email := strings.TrimSpace(input.CustomerEmail)

	switch category {
	case domain.NPSPromoter:
		if name == "" || feedback == "" {
			return nil, apperrors.NewValidationError("customer_name and feedback are required", nil)
		}
	case domain.NPSDetractor:
		if feedback == "" {
			return nil, apperrors.NewValidationError("feedback is required", nil)
		}
	}

	biz, err := s.businesses.GetByID(ctx, input.BusinessID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("business", map[string]any{"business_id": input.BusinessID})
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	now := s.now()
	resp := &domain.NPSResponse{
		ID:            uuid.NewString(),
		BusinessID:    biz.ID,
		Score:         input.Score,
		Category:      category,
		Feedback:      optional(feedback),
		CustomerName:  optional(name),
		CustomerEmail: optional(email),
		CreatedAt:     now,
	}
	if err := s.nps.Create(ctx, resp); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.metrics.NPSResponse(string(category))

	result := &NPSResult{Response: resp}
	if category != domain.NPSDetractor || !biz.UseRecoveryFlow {
		return result, nil
	}

	c := &domain.RecoveryCase{
		ID:            uuid.NewString(),
		BusinessID:    biz.ID,
		NPSResponseID: &resp.ID,
		CustomerName:  resp.CustomerName,
		CustomerEmail: resp.CustomerEmail,
		Status:        domain.CaseStatusOpen,
		Messages:      []domain.Message{{Role: domain.RoleCustomer, Text: feedback, CreatedAt: now}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.metrics.CaseOpened()
	s.publishEvent(ctx, events.NewEvent(events.EventRecoveryCaseOpened, c, now, events.CaseOpenedPayload{
		NPSResponseID: c.NPSResponseID,
		HasEmail:      c.HasCustomerChannel(),
	}))
	result.Case = c
	return result, nil
}

// loadAuthorized loads the case and checks the caller's right to act as role.
func (s *RecoveryService) loadAuthorized(ctx context.Context, caseID string, role domain.MessageRole, proof AuthProof) (*domain.RecoveryCase, error) {
	if strings.TrimSpace(caseID) == "" {
		return nil, apperrors.NewValidationError("case_id is required", nil)
	}
	if role == domain.RoleCustomer && s.limiter.Blocked(ctx, caseID) {
		return nil, apperrors.NewTooManyAttempts()
	}

	c, err := s.cases.GetByID(ctx, caseID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("case", nil)
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	switch role {
	case domain.RoleBusiness:
		if _, err := s.ownedBusiness(ctx, proof.UserID, c.BusinessID); err != nil {
			return nil, err
		}
	case domain.RoleCustomer:
		if !c.HasCustomerChannel() || !s.tokens.Validate(c.ID, c.Email(), proof.Token) {
			s.limiter.RecordFailure(ctx, caseID)
			return nil, apperrors.NewUnauthorized(msgInvalidLink)
		}
	}
	return c, nil
}

func (s *RecoveryService) ownedBusiness(ctx context.Context, userID, businessID string) (*domain.Business, error) {
	if userID == "" {
		return nil, apperrors.NewUnauthorized(msgNotYourCase)
	}
	biz, err := s.businesses.GetByID(ctx, businessID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewUnauthorized(msgNotYourCase)
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !biz.OwnedBy(userID) {
		return nil, apperrors.NewUnauthorized(msgNotYourCase)
	}
	return biz, nil
}

func (s *RecoveryService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event not dispatched",
			zap.String("event_type", string(event.Type)),
			zap.String("case_id", event.CaseID),
			zap.Error(err))
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
