package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/gamelobby/internal/api/response"
	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/services/catalog"
)

// CatalogHandler serves the game catalog
type CatalogHandler struct {
	catalog *catalog.Service
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *catalog.Service) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// List handles GET /api/v1/games
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	var games []*model.GameRecord
	if owner := r.URL.Query().Get("owner"); owner != "" {
		games = h.catalog.ListGamesByOwner(r.Context(), owner)
	} else {
		games = h.catalog.ListGames(r.Context())
	}

	out := make([]response.Game, len(games))
	for i, g := range games {
		out[i] = response.GameFromModel(g)
	}
	response.JSON(w, http.StatusOK, response.List(out))
}

// Get handles GET /api/v1/games/{id}
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := model.GameID(mux.Vars(r)["id"])
	if !id.Valid() {
		WriteError(w, model.ErrInvalidGameID)
		return
	}

	rec, err := h.catalog.GetGame(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.GameDetailFromModel(rec))
}
