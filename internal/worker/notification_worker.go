package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/testimonioya/recovery-service/internal/events"
	"github.com/testimonioya/recovery-service/internal/service"
)

// NotificationWorker owns the async dispatcher that delivers recovery emails.
type NotificationWorker struct {
	dispatcher *events.AsyncDispatcher
	logger     *zap.Logger
}

// StartNotificationWorker registers notification handlers and starts delivery.
func StartNotificationWorker(dispatcher *events.AsyncDispatcher, notificationService *service.NotificationService, logger *zap.Logger) *NotificationWorker {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	dispatcher.Start()
	logger.Info("notification worker started")
	return &NotificationWorker{dispatcher: dispatcher, logger: logger}
}

// Stop drains queued notifications until ctx ends.
func (w *NotificationWorker) Stop(ctx context.Context) {
	if w == nil {
		return
	}
	if err := w.dispatcher.Stop(ctx); err != nil {
		w.logger.Warn("notification queue not drained", zap.Error(err))
		return
	}
	w.logger.Info("notification worker stopped")
}
