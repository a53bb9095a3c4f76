package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tutor-bot/internal/api/http/handlers"
	"github.com/spec-kit/tutor-bot/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Telegram       *handlers.TelegramHandler
	Admin          *handlers.AdminHandler
	Metrics        *handlers.MetricsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Telegram is optional; polling mode leaves it nil.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.Telegram != nil {
		app.Post("/telegram/webhook", cfg.Telegram.Webhook)
	}

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle)
	admin.Get("/metrics", auth.RequireRole(auth.RoleSupport, auth.RoleAdmin), cfg.Metrics.Get)
	admin.Get("/users/:id", auth.RequireRole(auth.RoleSupport, auth.RoleAdmin), cfg.Admin.GetUser)
	admin.Put("/users/:id/tier", auth.RequireRole(auth.RoleAdmin), cfg.Admin.UpdateTier)
}
