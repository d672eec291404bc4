package model

import (
	"slices"
	"time"
)

// RoomStatus represents the current state of a room
type RoomStatus string

const (
	RoomStatusWaiting RoomStatus = "WAITING" // Gathering participants
	RoomStatusPlaying RoomStatus = "PLAYING" // Game server process running
)

// Room binds a host, a game and a set of participants to an eventual game server
type Room struct {
	ID           string
	Host         string
	GameID       GameID
	Participants []string // host first, unique by username
	Status       RoomStatus
	Port         int    // 0 until started
	Address      string // advertised game server address once started
	CreatedAt    time.Time
	StartedAt    time.Time
}

// HasParticipant reports whether username is in the room
func (r *Room) HasParticipant(username string) bool {
	return slices.Contains(r.Participants, username)
}

// RemoveParticipant drops username from the participant list, reporting whether it was present
func (r *Room) RemoveParticipant(username string) bool {
	i := slices.Index(r.Participants, username)
	if i < 0 {
		return false
	}
	r.Participants = slices.Delete(r.Participants, i, i+1)
	return true
}

// Summary returns the listing view of the room
func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		ID:      r.ID,
		GameID:  r.GameID,
		Host:    r.Host,
		Players: len(r.Participants),
		Status:  r.Status,
	}
}

// RoomSummary is the room listing entry sent to clients
type RoomSummary struct {
	ID      string     `json:"id"`
	GameID  GameID     `json:"game_id"`
	Host    string     `json:"host"`
	Players int        `json:"players"`
	Status  RoomStatus `json:"status"`
}
