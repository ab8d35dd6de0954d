package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes mounts every endpoint on app.
func (h *Handler) Routes(app *fiber.App, withMetrics bool) {
	// WS
	app.Get("/api/ws/register/:identity", RequireUpgrade, websocket.New(h.RegisterHandler)) // ?location=

	// APIs
	app.Get("/api/presence", h.PresenceHandler)
	app.Get("/api/history/public", h.PublicHistoryHandler)   // ?limit=
	app.Get("/api/history/private", h.PrivateHistoryHandler) // ?a=&b=&limit=

	app.Get("/api/inbox/:identity", h.InboxHandler)
	app.Post("/api/inbox/read", h.MarkReadHandler) // ?identity=&peer=

	app.Get("/api/notifications/:identity", h.NotificationsHandler) // ?limit=

	app.Get("/api/admin/messages/count", h.CountHandler)
	app.Delete("/api/admin/history", h.ClearHistoryHandler)

	app.Get("/healthz", h.HealthHandler)
	if withMetrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}
}
