package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/gamelobby/internal/dependencies/clock"
	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/storage"
)

// Service is the catalog store: accounts and published games.
// One mutex covers the in-memory tables and the write-through to storage.
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger

	bcryptCost int

	mu       sync.Mutex
	accounts model.AccountTable
	games    model.GameTable
}

// Config holds configuration for the catalog service
type Config struct {
	BcryptCost int
}

// DefaultConfig returns default catalog configuration
func DefaultConfig() Config {
	return Config{
		BcryptCost: bcrypt.DefaultCost,
	}
}

// New creates a catalog with empty tables; call Load to read persisted state
func New(store storage.Storage, clk clock.Clock, cfg Config, logger *slog.Logger) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultConfig().BcryptCost
	}
	return &Service{
		storage:    store,
		clock:      clk,
		logger:     logger.With(slog.String("component", "catalog")),
		bcryptCost: cfg.BcryptCost,
		accounts:   model.NewAccountTable(),
		games:      make(model.GameTable),
	}
}

// Load replaces the in-memory tables with the persisted documents
func (s *Service) Load(ctx context.Context) error {
	accounts, err := s.storage.LoadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	games, err := s.storage.LoadGames(ctx)
	if err != nil {
		return fmt.Errorf("load games: %w", err)
	}

	s.mu.Lock()
	s.accounts = accounts
	s.games = games
	s.mu.Unlock()

	s.logger.Info("catalog loaded",
		slog.Int("publishers", len(accounts[model.ClassPublisher])),
		slog.Int("players", len(accounts[model.ClassPlayer])),
		slog.Int("games", len(games)),
	)
	return nil
}

// Register creates an account. It returns false, without touching the
// existing record, when the username is already taken within the class.
func (s *Service) Register(ctx context.Context, class model.AccountClass, username, password string) (bool, error) {
	if !class.Valid() || strings.TrimSpace(username) == "" || password == "" {
		return false, model.ErrInvalidAccount
	}

	// Hash before locking; bcrypt is deliberately slow
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[class][username]; exists {
		return false, nil
	}

	s.accounts[class][username] = model.Account{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.clock.Now(),
	}
	if err := s.storage.SaveAccounts(ctx, s.accounts); err != nil {
		delete(s.accounts[class], username)
		return false, fmt.Errorf("%w: %w", model.ErrCatalogNotSaved, err)
	}

	s.logger.Info("account registered", slog.String("class", string(class)), slog.String("username", username))
	return true, nil
}

// Validate reports whether the credentials match a registered account
func (s *Service) Validate(ctx context.Context, class model.AccountClass, username, password string) bool {
	s.mu.Lock()
	account, ok := s.accounts[class][username]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) == nil
}

// UpsertGame creates a game owned by publisher, or merges meta over the
// publisher's existing game. A game owned by someone else is left unchanged.
func (s *Service) UpsertGame(ctx context.Context, publisher string, meta model.GameMeta) (*model.GameRecord, error) {
	if meta.Version == "" {
		return nil, model.ErrMissingVersion
	}
	id := meta.GameID
	if id == "" {
		id = model.DeriveGameID(meta.Name)
	}
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidGameID, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	previous, exists := s.games[id]
	if exists && previous.Owner != publisher {
		return nil, model.ErrNotOwner
	}

	var rec *model.GameRecord
	if exists {
		rec = previous.Clone()
	} else {
		rec = &model.GameRecord{
			GameID:    id,
			Owner:     publisher,
			Name:      meta.Name,
			CreatedAt: now,
		}
	}

	if meta.Name != "" {
		rec.Name = meta.Name
	}
	if meta.Description != "" {
		rec.Description = meta.Description
	}
	if len(meta.Extra) > 0 {
		if rec.Extra == nil {
			rec.Extra = make(map[string]any, len(meta.Extra))
		}
		maps.Copy(rec.Extra, meta.Extra)
	}
	rec.CurrentVersion = meta.Version
	if !rec.HasVersion(meta.Version) {
		rec.VersionHistory = append(rec.VersionHistory, meta.Version)
	}
	rec.UpdatedAt = now

	s.games[id] = rec
	if err := s.storage.SaveGames(ctx, s.games); err != nil {
		if exists {
			s.games[id] = previous
		} else {
			delete(s.games, id)
		}
		return nil, fmt.Errorf("%w: %w", model.ErrCatalogNotSaved, err)
	}

	s.logger.Info("game upserted",
		slog.String("game_id", string(id)),
		slog.String("owner", publisher),
		slog.String("version", meta.Version),
		slog.Bool("created", !exists),
	)
	return rec.Clone(), nil
}

// DeleteGame removes a game owned by publisher
func (s *Service) DeleteGame(ctx context.Context, publisher string, id model.GameID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.games[id]
	if !ok {
		return model.ErrGameNotFound
	}
	if rec.Owner != publisher {
		return model.ErrNotOwner
	}

	delete(s.games, id)
	if err := s.storage.SaveGames(ctx, s.games); err != nil {
		s.games[id] = rec
		return fmt.Errorf("%w: %w", model.ErrCatalogNotSaved, err)
	}

	s.logger.Info("game deleted", slog.String("game_id", string(id)), slog.String("owner", publisher))
	return nil
}

// ListGames returns every game sorted by id
func (s *Service) ListGames(ctx context.Context) []*model.GameRecord {
	return s.list(func(*model.GameRecord) bool { return true })
}

// ListGamesByOwner returns the games published by owner sorted by id
func (s *Service) ListGamesByOwner(ctx context.Context, owner string) []*model.GameRecord {
	return s.list(func(g *model.GameRecord) bool { return g.Owner == owner })
}

func (s *Service) list(keep func(*model.GameRecord) bool) []*model.GameRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.GameRecord, 0, len(s.games))
	for _, id := range slices.Sorted(maps.Keys(s.games)) {
		if g := s.games[id]; keep(g) {
			out = append(out, g.Clone())
		}
	}
	return out
}

// GetGame returns a copy of a single game
func (s *Service) GetGame(ctx context.Context, id model.GameID) (*model.GameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.games[id]
	if !ok {
		return nil, model.ErrGameNotFound
	}
	return rec.Clone(), nil
}

// AddReview appends a review to a game
func (s *Service) AddReview(ctx context.Context, id model.GameID, reviewer string, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return model.ErrInvalidRating
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.games[id]
	if !ok {
		return model.ErrGameNotFound
	}

	n := len(rec.Reviews)
	rec.Reviews = append(rec.Reviews, model.Review{
		Reviewer:  reviewer,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: s.clock.Now(),
	})
	if err := s.storage.SaveGames(ctx, s.games); err != nil {
		rec.Reviews = rec.Reviews[:n]
		return fmt.Errorf("%w: %w", model.ErrCatalogNotSaved, err)
	}

	s.logger.Info("review added", slog.String("game_id", string(id)), slog.String("reviewer", reviewer), slog.Int("rating", rating))
	return nil
}
