package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
// Each document is a single JSON string key, so a save replaces it atomically.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultConfig().KeyPrefix
	}
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) LoadAccounts(ctx context.Context) (model.AccountTable, error) {
	accounts := model.NewAccountTable()
	found, err := s.load(ctx, accountsKey(s.cfg.KeyPrefix), &accounts)
	if err != nil {
		return nil, err
	}
	if !found {
		return model.NewAccountTable(), nil
	}
	// A document written with one class missing still yields both maps
	return accounts.Clone(), nil
}

func (s *Storage) SaveAccounts(ctx context.Context, accounts model.AccountTable) error {
	return s.save(ctx, accountsKey(s.cfg.KeyPrefix), accounts)
}

// Game operations

func (s *Storage) LoadGames(ctx context.Context) (model.GameTable, error) {
	games := make(model.GameTable)
	found, err := s.load(ctx, gamesKey(s.cfg.KeyPrefix), &games)
	if err != nil {
		return nil, err
	}
	if !found {
		return make(model.GameTable), nil
	}
	return games, nil
}

func (s *Storage) SaveGames(ctx context.Context, games model.GameTable) error {
	return s.save(ctx, gamesKey(s.cfg.KeyPrefix), games)
}

func (s *Storage) load(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) save(ctx context.Context, key string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	// MULTI/EXEC so the document and its revision move together
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.Incr(ctx, revisionKey(key))
		return nil
	})
	return err
}
