package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/testimonioya/recovery-service/internal/api/http/handlers"
	"github.com/testimonioya/recovery-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Recovery       *handlers.RecoveryHandler
	Customer       *handlers.CustomerHandler
	NPS            *handlers.NPSHandler
	AuthMiddleware *auth.AuthMiddleware
	// PublicRateLimit caps unauthenticated requests per IP per minute. Zero disables it.
	PublicRateLimit int
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/v1")

	// Public and protected routes share the /v1 prefix, so their middleware is
	// attached per route rather than through Group.
	public := func(h fiber.Handler) []fiber.Handler { return []fiber.Handler{h} }
	if cfg.PublicRateLimit > 0 {
		limit := PublicRateLimit(cfg.PublicRateLimit, time.Minute)
		public = func(h fiber.Handler) []fiber.Handler { return []fiber.Handler{limit, h} }
	}
	protected := func(h fiber.Handler) []fiber.Handler {
		return []fiber.Handler{cfg.AuthMiddleware.Handle, h}
	}

	v1.Post("/recovery-customer-reply", public(cfg.Customer.Reply)...)
	v1.Get("/recovery/public/:id", public(cfg.Customer.GetCase)...)
	v1.Post("/nps/responses", public(cfg.NPS.Submit)...)

	v1.Post("/recovery-reply", protected(cfg.Recovery.Reply)...)
	v1.Get("/recovery/cases", protected(cfg.Recovery.ListCases)...)
	v1.Get("/recovery/cases/:id", protected(cfg.Recovery.GetCase)...)
	v1.Get("/recovery/cases/:id/link", protected(cfg.Recovery.CustomerLink)...)
	v1.Post("/recovery/cases/:id/close", protected(cfg.Recovery.CloseCase)...)
}
