package worker

import (
	"github.com/fieldserve/visit-service/internal/events"
	"github.com/fieldserve/visit-service/internal/service"
	"github.com/fieldserve/visit-service/internal/stream"
)

// Start wires the event-driven consumers onto the dispatcher: notification
// composition and the live-view fan-out. Handlers run synchronously inside
// Publish, so registration order fixes delivery order per event.
func Start(dispatcher events.Dispatcher, notifications *service.NotificationService, hub *stream.Hub) {
	if notifications != nil {
		notifications.RegisterHandlers()
	}
	if hub != nil {
		hub.Register(dispatcher)
	}
}
