package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/gamelobby/internal/api/events"
	"github.com/mcoot/gamelobby/internal/api/handler"
	"github.com/mcoot/gamelobby/internal/api/middleware"
	"github.com/mcoot/gamelobby/internal/api/response"
	"github.com/mcoot/gamelobby/internal/services/catalog"
	"github.com/mcoot/gamelobby/internal/services/rooms"
	"github.com/mcoot/gamelobby/internal/services/session"
)

// RouterConfig holds configuration for the admin API router
type RouterConfig struct {
	Logger   *slog.Logger
	Catalog  *catalog.Service
	Rooms    *rooms.Manager
	Sessions *session.Registry
	// Events, when set, is served as a server-sent event stream at /events
	Events *events.Hub
	// AdminToken, when set, is required as a bearer token on every route but /health
	AdminToken string
}

// NewRouter creates the read-only admin API router
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(handler.NotFound)

	// Create handlers
	catalogHandler := handler.NewCatalogHandler(cfg.Catalog)
	roomHandler := handler.NewRoomHandler(cfg.Rooms)
	playerHandler := handler.NewPlayerHandler(cfg.Sessions)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Recovery(cfg.Logger))
	api.Use(middleware.Logging(cfg.Logger))

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler(cfg.Rooms, cfg.Sessions)).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.AdminToken(cfg.AdminToken))

	protected.HandleFunc("/games", catalogHandler.List).Methods(http.MethodGet)
	protected.HandleFunc("/games/{id}", catalogHandler.Get).Methods(http.MethodGet)

	protected.HandleFunc("/rooms", roomHandler.List).Methods(http.MethodGet)
	protected.HandleFunc("/rooms/{id}", roomHandler.Get).Methods(http.MethodGet)
	protected.HandleFunc("/ports", roomHandler.Ports).Methods(http.MethodGet)

	protected.HandleFunc("/players/online", playerHandler.Online).Methods(http.MethodGet)

	if cfg.Events != nil {
		protected.HandleFunc("/events", handler.NewEventHandler(cfg.Events).Stream).Methods(http.MethodGet)
	}

	return r
}

func healthHandler(rooms *rooms.Manager, sessions *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, response.Health{
			Status:  "ok",
			Players: sessions.Count(),
			Rooms:   len(rooms.ListRooms()),
		})
	}
}
