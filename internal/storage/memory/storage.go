package memory

import (
	"context"
	"sync"

	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	accounts model.AccountTable
	games    model.GameTable

	// failSaves makes every save return this error (for testing write-through rollback)
	failSaves error
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		accounts: model.NewAccountTable(),
		games:    make(model.GameTable),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) LoadAccounts(ctx context.Context) (model.AccountTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts.Clone(), nil
}

func (s *Storage) SaveAccounts(ctx context.Context, accounts model.AccountTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves != nil {
		return s.failSaves
	}
	s.accounts = accounts.Clone()
	return nil
}

// Game operations

func (s *Storage) LoadGames(ctx context.Context) (model.GameTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.games.Clone(), nil
}

func (s *Storage) SaveGames(ctx context.Context, games model.GameTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves != nil {
		return s.failSaves
	}
	s.games = games.Clone()
	return nil
}

// SetFailSaves toggles save failures
func (s *Storage) SetFailSaves(err error) {
	s.mu.Lock()
	s.failSaves = err
	s.mu.Unlock()
}

func (s *Storage) Close() error {
	return nil
}
