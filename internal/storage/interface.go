package storage

import (
	"context"

	"github.com/mcoot/gamelobby/internal/model"
)

// Storage persists the catalog documents.
// Each Save replaces the whole document atomically: a reader sees either the
// previous or the new document, never a mix.
type Storage interface {
	// Account operations
	LoadAccounts(ctx context.Context) (model.AccountTable, error)
	SaveAccounts(ctx context.Context, accounts model.AccountTable) error

	// Game operations
	LoadGames(ctx context.Context) (model.GameTable, error)
	SaveGames(ctx context.Context, games model.GameTable) error

	// Close releases backend resources
	Close() error
}
