package handler

import (
	"net/http"

	"github.com/mcoot/gamelobby/internal/api/response"
	"github.com/mcoot/gamelobby/internal/services/session"
)

// PlayerHandler serves online player state
type PlayerHandler struct {
	sessions *session.Registry
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(sessions *session.Registry) *PlayerHandler {
	return &PlayerHandler{sessions: sessions}
}

// Online handles GET /api/v1/players/online
func (h *PlayerHandler) Online(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.List(h.sessions.ListOnline()))
}
