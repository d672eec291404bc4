package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/storage"
)

// Document file names under the data directory
const (
	AccountsFile = "users.json"
	GamesFile    = "games.json"
)

// Storage keeps each catalog document as a JSON file.
// Saves write a temp file in the same directory and rename it over the old one.
type Storage struct {
	mu  sync.Mutex
	dir string
}

// New creates a file storage rooted at dir, creating it if needed
func New(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Dir returns the data directory
func (s *Storage) Dir() string {
	return s.dir
}

// Account operations

func (s *Storage) LoadAccounts(ctx context.Context) (model.AccountTable, error) {
	accounts := model.NewAccountTable()
	if err := s.read(AccountsFile, &accounts); err != nil {
		return nil, err
	}
	return accounts.Clone(), nil
}

func (s *Storage) SaveAccounts(ctx context.Context, accounts model.AccountTable) error {
	return s.write(ctx, AccountsFile, accounts)
}

// Game operations

func (s *Storage) LoadGames(ctx context.Context) (model.GameTable, error) {
	games := make(model.GameTable)
	if err := s.read(GamesFile, &games); err != nil {
		return nil, err
	}
	return games, nil
}

func (s *Storage) SaveGames(ctx context.Context, games model.GameTable) error {
	return s.write(ctx, GamesFile, games)
}

func (s *Storage) Close() error {
	return nil
}

// read decodes name into dst; a missing file leaves dst untouched
func (s *Storage) read(name string, dst any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *Storage) write(ctx context.Context, name string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return atomic.WriteFile(filepath.Join(s.dir, name), bytes.NewReader(data))
}
