package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/testimonioya/recovery-service/internal/auth"
	"github.com/testimonioya/recovery-service/internal/domain"
	"github.com/testimonioya/recovery-service/internal/events"
	"github.com/testimonioya/recovery-service/internal/notify"
	"github.com/testimonioya/recovery-service/internal/observability"
	"github.com/testimonioya/recovery-service/internal/repository"
)

// NotificationService emails the other party when a message is added.
type NotificationService struct {
	dispatcher events.Dispatcher
	cases      repository.RecoveryCaseRepository
	businesses repository.BusinessRepository
	users      repository.UserRepository
	tokens     *auth.CaseTokens
	mailer     notify.Mailer
	metrics    *observability.Metrics
	logger     *zap.Logger
	baseURL    string
}

// NotificationDependencies bundles collaborators for notifications.
type NotificationDependencies struct {
	Dispatcher   events.Dispatcher
	CaseRepo     repository.RecoveryCaseRepository
	BusinessRepo repository.BusinessRepository
	UserRepo     repository.UserRepository
	Tokens       *auth.CaseTokens
	Mailer       notify.Mailer
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	BaseURL      string
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		cases:      deps.CaseRepo,
		businesses: deps.BusinessRepo,
		users:      deps.UserRepo,
		tokens:     deps.Tokens,
		mailer:     deps.Mailer,
		metrics:    deps.Metrics,
		logger:     logger,
		baseURL:    deps.BaseURL,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventRecoveryMessageAdded, n.handleMessageAdded)
	n.dispatcher.Subscribe(events.EventRecoveryCaseOpened, n.logEvent)
	n.dispatcher.Subscribe(events.EventRecoveryCaseClosed, n.logEvent)
}

func (n *NotificationService) logEvent(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("case_id", event.CaseID),
		zap.String("business_id", event.BusinessID))
	return nil
}

// handleMessageAdded never fails the append; errors are logged and counted.
func (n *NotificationService) handleMessageAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MessageAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}

	recipient := string(payload.Role.Counterpart())
	err := n.notify(ctx, event.CaseID, payload)
	switch {
	case errors.Is(err, errSkipped):
		n.metrics.Notification(recipient, "skipped")
		return nil
	case err != nil:
		n.metrics.Notification(recipient, "failed")
		n.logger.Warn("recovery notification failed",
			zap.String("case_id", event.CaseID),
			zap.String("recipient", recipient),
			zap.Error(err))
		return nil
	}
	n.metrics.Notification(recipient, "sent")
	n.logger.Info("recovery notification sent",
		zap.String("case_id", event.CaseID),
		zap.String("recipient", recipient),
		zap.String("preview", events.Preview(payload.Text, 40)))
	return nil
}

var errSkipped = errors.New("notification skipped")

func (n *NotificationService) notify(ctx context.Context, caseID string, payload events.MessageAddedPayload) error {
	c, err := n.cases.GetByID(ctx, caseID)
	if err != nil {
		return fmt.Errorf("load case: %w", err)
	}
	biz, err := n.businesses.GetByID(ctx, c.BusinessID)
	if err != nil {
		return fmt.Errorf("load business: %w", err)
	}

	var email notify.Email
	switch payload.Role {
	case domain.RoleBusiness:
		if !c.HasCustomerChannel() {
			return errSkipped
		}
		email, err = notify.CustomerReplyEmail(c.Email(), notify.CustomerReplyData{
			BusinessName: biz.BusinessName,
			Message:      payload.Text,
			ReplyURL:     BuildCustomerLink(n.baseURL, c.ID, n.tokens.Generate(c.ID, c.Email())),
			SiteURL:      n.baseURL,
		})
	case domain.RoleCustomer:
		owner, lookupErr := n.users.GetEmail(ctx, biz.UserID)
		if errors.Is(lookupErr, repository.ErrNotFound) {
			return errSkipped
		}
		if lookupErr != nil {
			return fmt.Errorf("resolve owner email: %w", lookupErr)
		}
		email, err = notify.OwnerReplyEmail(owner, notify.OwnerReplyData{
			BusinessName: biz.BusinessName,
			CustomerName: c.DisplayName(""),
			Message:      payload.Text,
			DashboardURL: n.baseURL + "/dashboard/recovery",
			SiteURL:      n.baseURL,
		})
	default:
		return errSkipped
	}
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, email)
}
