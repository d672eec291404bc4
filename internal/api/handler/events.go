package handler

import (
	"net/http"

	"github.com/mcoot/gamelobby/internal/api/events"
)

// EventHandler streams lobby events
type EventHandler struct {
	hub *events.Hub
}

// NewEventHandler creates a new event handler
func NewEventHandler(hub *events.Hub) *EventHandler {
	return &EventHandler{hub: hub}
}

// Stream handles GET /api/v1/events as a server-sent event stream
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	events.ServeSSE(w, r, h.hub)
}
