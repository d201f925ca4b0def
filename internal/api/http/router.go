package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fieldserve/visit-service/internal/api/http/handlers"
	"github.com/fieldserve/visit-service/internal/auth"
	"github.com/fieldserve/visit-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Accounts       *handlers.AccountsHandler
	Tickets        *handlers.TicketsHandler
	Visits         *handlers.VisitsHandler
	Notifications  *handlers.NotificationsHandler
	Reports        *handlers.ReportsHandler
	Stream         *handlers.StreamHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.AuthMiddleware.HandleOptional, cfg.Accounts.Register)
	authGroup.Post("/login", cfg.Accounts.Login)

	staffOrClient := auth.RequireAnyRole()
	staff := auth.RequireRole(domain.RoleAdmin, domain.RoleEngineer)
	adminOnly := auth.RequireRole(domain.RoleAdmin)

	accounts := app.Group("/accounts", cfg.AuthMiddleware.Handle)
	accounts.Get("/engineers", adminOnly, cfg.Accounts.ListEngineers)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("", staff, cfg.Tickets.CreateTicket)
	tickets.Get("", staffOrClient, cfg.Tickets.ListTickets)
	tickets.Get("/:id", staffOrClient, cfg.Tickets.GetTicket)
	tickets.Patch("/:id/status", staff, cfg.Tickets.UpdateStatus)
	tickets.Patch("/:id/severity", staff, cfg.Tickets.UpdateSeverity)
	tickets.Patch("/:id/note-status", staff, cfg.Tickets.UpdateNoteStatus)
	tickets.Post("/:id/transfer", staff, cfg.Tickets.RequestTransfer)
	tickets.Delete("/:id/transfer", staff, cfg.Tickets.RejectTransfer)
	tickets.Post("/:id/date", staff, cfg.Tickets.SetDate)
	tickets.Post("/:id/assign", adminOnly, cfg.Tickets.Assign)
	tickets.Post("/:id/messages", staffOrClient, cfg.Tickets.AddMessage)

	app.Post("/contracts/plan", cfg.AuthMiddleware.Handle, adminOnly, cfg.Visits.PlanContract)

	events := app.Group("/events", cfg.AuthMiddleware.Handle)
	events.Post("/group", staff, cfg.Visits.ComposeGroup)
	events.Get("", staff, cfg.Visits.ListVisits)
	events.Patch("/:id/resolve", staff, cfg.Visits.Resolve)

	notifications := app.Group("/notifications", cfg.AuthMiddleware.Handle, staff)
	notifications.Get("", cfg.Notifications.List)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)

	app.Get("/reports/tickets", cfg.AuthMiddleware.Handle, adminOnly, cfg.Reports.Tickets)

	app.Get("/stream", cfg.AuthMiddleware.Handle, staffOrClient, cfg.Stream.Stream)
}
