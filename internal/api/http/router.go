package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/chantiers-api/internal/api/http/handlers"
	"github.com/spec-kit/chantiers-api/internal/auth"
	"github.com/spec-kit/chantiers-api/internal/domain"
	"github.com/spec-kit/chantiers-api/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Logs           *handlers.LogsHandler
	AuthMiddleware *auth.AuthMiddleware
	RateLimiter    fiber.Handler
	Metrics        *observability.Metrics
	MetricsEnabled bool
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health", cfg.Health.Live)
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.MetricsEnabled && cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	authGroup := app.Group("/auth")
	if cfg.RateLimiter != nil {
		authGroup.Use(cfg.RateLimiter)
	}
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/logout", cfg.AuthMiddleware.Handle, cfg.Auth.Logout)
	authGroup.Get("/profile", cfg.AuthMiddleware.Handle, cfg.Auth.Profile)

	logsGroup := app.Group("/logs", cfg.AuthMiddleware.Handle, auth.Authorize(cfg.Metrics, domain.RoleAdmin))
	logsGroup.Get("/", cfg.Logs.List)
	logsGroup.Get("/connexions", cfg.Logs.Connexions)
}
