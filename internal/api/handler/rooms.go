package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/gamelobby/internal/api/response"
	"github.com/mcoot/gamelobby/internal/services/rooms"
)

// RoomHandler serves room state
type RoomHandler struct {
	rooms *rooms.Manager
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(rooms *rooms.Manager) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// List handles GET /api/v1/rooms
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries := h.rooms.ListRooms()
	out := make([]response.RoomSummary, len(summaries))
	for i, s := range summaries {
		out[i] = response.RoomSummaryFromModel(s)
	}
	response.JSON(w, http.StatusOK, response.List(out))
}

// Get handles GET /api/v1/rooms/{id}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.GetRoom(mux.Vars(r)["id"])
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.RoomFromModel(room))
}

// Ports handles GET /api/v1/ports
func (h *RoomHandler) Ports(w http.ResponseWriter, r *http.Request) {
	pool := h.rooms.Pool()
	low, high := pool.Range()
	response.JSON(w, http.StatusOK, response.PortPool{Low: low, High: high, InUse: pool.InUse()})
}
