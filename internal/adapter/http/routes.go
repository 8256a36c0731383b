package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the full route set: health and the websocket event
// stream. eventStream is the ws hub's upgrade handler.
func MountRoutes(r chi.Router, health *Health, eventStream http.HandlerFunc) {
	r.Get("/health", health.Handle)
	r.Get("/ws", eventStream)
}
