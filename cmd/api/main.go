package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/testimonioya/recovery-service/internal/api/http"
	"github.com/testimonioya/recovery-service/internal/api/http/handlers"
	"github.com/testimonioya/recovery-service/internal/auth"
	"github.com/testimonioya/recovery-service/internal/config"
	"github.com/testimonioya/recovery-service/internal/events"
	"github.com/testimonioya/recovery-service/internal/notify"
	"github.com/testimonioya/recovery-service/internal/observability"
	"github.com/testimonioya/recovery-service/internal/persistence"
	"github.com/testimonioya/recovery-service/internal/service"
	"github.com/testimonioya/recovery-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	caseTokens, err := auth.NewCaseTokens(cfg.Recovery.TokenSecret, cfg.Recovery.PreviousSecrets...)
	if err != nil {
		logger.Fatal("invalid recovery token configuration", zap.Error(err))
	}

	stores, err := persistence.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer stores.Close()

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	dispatcher := events.NewAsyncDispatcher(events.AsyncConfig{
		QueueSize:      cfg.Recovery.NotifyQueueSize,
		Workers:        cfg.Recovery.NotifyWorkers,
		HandlerTimeout: cfg.Recovery.NotifyTimeout(),
	}, logger)

	readiness := map[string]handlers.Pinger{string(stores.Backend): stores}
	if redis.Enabled() {
		readiness["redis"] = redis
	}

	if cfg.NATS.URL != "" {
		publisher, err := events.ConnectNATS(ctx, events.NATSConfig{URL: cfg.NATS.URL, Token: cfg.NATS.Token}, logger)
		if err != nil {
			logger.Warn("nats unavailable; events will not be mirrored", zap.Error(err))
		} else {
			publisher.SubscribeAll(dispatcher)
			readiness["nats"] = publisher
			defer publisher.Close()
		}
	}

	notificationService := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher:   dispatcher,
		CaseRepo:     stores.Cases,
		BusinessRepo: stores.Businesses,
		UserRepo:     stores.Users,
		Tokens:       caseTokens,
		Mailer:       notify.NewMailer(cfg.Email, logger),
		Metrics:      metrics,
		Logger:       logger,
		BaseURL:      cfg.App.PublicBaseURL,
	})
	notifications := worker.StartNotificationWorker(dispatcher, notificationService, logger)

	recoveryService := service.NewRecoveryService(service.RecoveryDependencies{
		CaseRepo:     stores.Cases,
		BusinessRepo: stores.Businesses,
		NPSRepo:      stores.NPS,
		Tokens:       caseTokens,
		Limiter:      auth.NewRedisAttemptLimiter(redis.Client(), cfg.Recovery.MaxTokenFailures, cfg.Recovery.FailureWindow(), logger),
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
		BaseURL:      cfg.App.PublicBaseURL,
	})

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:      cfg.App.RequestTimeout(),
		AllowOrigins: cfg.App.CORSAllowOrigins,
	})

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:          handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Recovery:        handlers.NewRecoveryHandler(recoveryService),
		Customer:        handlers.NewCustomerHandler(recoveryService),
		NPS:             handlers.NewNPSHandler(recoveryService),
		AuthMiddleware:  auth.NewAuthMiddleware(tokenManager),
		PublicRateLimit: cfg.App.PublicRateLimit,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("store", string(stores.Backend)))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Recovery.NotifyTimeout())
	defer drainCancel()
	notifications.Stop(drainCtx)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
