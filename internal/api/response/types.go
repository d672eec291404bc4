package response

import (
	"time"

	"github.com/mcoot/gamelobby/internal/model"
)

// ListResponse wraps a collection with its size
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// List wraps items; a nil slice is rendered as []
func List[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}

// Game represents a catalog entry in API responses
type Game struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Owner         string  `json:"owner"`
	Version       string  `json:"version"`
	Description   string  `json:"description,omitempty"`
	Reviews       int     `json:"reviews"`
	AverageRating float64 `json:"average_rating"`
}

// GameFromModel converts a model.GameRecord
func GameFromModel(g *model.GameRecord) Game {
	return Game{
		ID:            string(g.GameID),
		Name:          g.Name,
		Owner:         g.Owner,
		Version:       g.CurrentVersion,
		Description:   g.Description,
		Reviews:       len(g.Reviews),
		AverageRating: g.AverageRating(),
	}
}

// Review represents a player review
type Review struct {
	Reviewer  string    `json:"reviewer"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GameDetail is a catalog entry with its history, reviews and extra metadata
type GameDetail struct {
	Game
	Versions  []string       `json:"versions"`
	ReviewLog []Review       `json:"review_log"`
	Extra     map[string]any `json:"extra,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// GameDetailFromModel converts a model.GameRecord with everything it carries
func GameDetailFromModel(g *model.GameRecord) GameDetail {
	reviews := make([]Review, len(g.Reviews))
	for i, r := range g.Reviews {
		reviews[i] = Review{
			Reviewer:  r.Reviewer,
			Rating:    r.Rating,
			Comment:   r.Comment,
			CreatedAt: r.CreatedAt,
		}
	}
	return GameDetail{
		Game:      GameFromModel(g),
		Versions:  append([]string{}, g.VersionHistory...),
		ReviewLog: reviews,
		Extra:     g.Extra,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

// RoomSummary represents a room listing entry
type RoomSummary struct {
	ID      string `json:"id"`
	GameID  string `json:"game_id"`
	Host    string `json:"host"`
	Players int    `json:"players"`
	Status  string `json:"status"`
}

// RoomSummaryFromModel converts model.RoomSummary
func RoomSummaryFromModel(s model.RoomSummary) RoomSummary {
	return RoomSummary{
		ID:      s.ID,
		GameID:  string(s.GameID),
		Host:    s.Host,
		Players: s.Players,
		Status:  string(s.Status),
	}
}

// Room represents a room with its participants and game server
type Room struct {
	RoomSummary
	Participants []string   `json:"participants"`
	Port         int        `json:"port,omitempty"`
	Address      string     `json:"address,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at"`
}

// RoomFromModel converts model.Room
func RoomFromModel(r *model.Room) Room {
	var started *time.Time
	if !r.StartedAt.IsZero() {
		t := r.StartedAt
		started = &t
	}
	return Room{
		RoomSummary:  RoomSummaryFromModel(r.Summary()),
		Participants: append([]string{}, r.Participants...),
		Port:         r.Port,
		Address:      r.Address,
		CreatedAt:    r.CreatedAt,
		StartedAt:    started,
	}
}

// PortPool reports game server port usage
type PortPool struct {
	Low   int `json:"low"`
	High  int `json:"high"`
	InUse int `json:"in_use"`
}

// Health is the health check response
type Health struct {
	Status  string `json:"status"`
	Players int    `json:"players_online"`
	Rooms   int    `json:"rooms"`
}
