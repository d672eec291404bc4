package rooms

import (
	"time"

	"github.com/mcoot/gamelobby/internal/model"
)

// EventType names a room lifecycle change
type EventType string

const (
	EventCreated EventType = "room_created"
	EventJoined  EventType = "room_joined"
	EventLeft    EventType = "room_left"
	EventStarted EventType = "room_started"
	EventEnded   EventType = "room_ended"
)

// Event describes one room lifecycle change
type Event struct {
	Type   EventType    `json:"type"`
	RoomID string       `json:"room_id"`
	GameID model.GameID `json:"game_id,omitempty"`
	Player string       `json:"player,omitempty"`
	Port   int          `json:"port,omitempty"`
	At     time.Time    `json:"at"`
}

// EventFunc observes room events. It is called synchronously, sometimes with
// the manager lock held, so it must not block or call back into the Manager.
type EventFunc func(Event)

func (m *Manager) emit(e Event) {
	if m.onEvent == nil {
		return
	}
	e.At = m.clock.Now()
	m.onEvent(e)
}
