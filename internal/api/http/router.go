package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-copilot/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Tickets *handlers.TicketsHandler
	Review  *handlers.ReviewHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/tickets", cfg.Tickets.RaiseTicket)
	app.Get("/tickets/attention", cfg.Tickets.ListNeedsAttention)
	app.Get("/tickets/:stage", cfg.Tickets.ListTickets)
	app.Get("/tickets/:stage/:id", cfg.Tickets.GetTicket)
	app.Get("/tickets/:stage/:id/context", cfg.Tickets.GetContext)

	app.Post("/tickets/:id/approve", cfg.Review.Approve)
	app.Post("/tickets/:id/escalate", cfg.Review.Escalate)
	app.Post("/tickets/:id/resolve", cfg.Review.Resolve)
	app.Post("/rephrase", cfg.Review.Rephrase)
}
