package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamelobby/internal/model"
)

type StorageSuite struct {
	suite.Suite
	mini    *miniredis.Miniredis
	storage *Storage
	ctx     context.Context
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())

	client := redis.NewClient(&redis.Options{
		Addr: s.mini.Addr(),
	})

	s.storage = NewWithClient(client, DefaultConfig())
	s.ctx = context.Background()
}

func (s *StorageSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

func (s *StorageSuite) TestMissingKeysLoadEmpty() {
	accounts, err := s.storage.LoadAccounts(s.ctx)
	s.Require().NoError(err)
	s.NotNil(accounts[model.ClassPublisher])
	s.Empty(accounts[model.ClassPlayer])

	games, err := s.storage.LoadGames(s.ctx)
	s.Require().NoError(err)
	s.Empty(games)
}

func (s *StorageSuite) TestAccountsRoundTrip() {
	accounts := model.NewAccountTable()
	accounts[model.ClassPlayer]["p1"] = model.Account{Username: "p1", PasswordHash: "hash"}

	s.Require().NoError(s.storage.SaveAccounts(s.ctx, accounts))

	loaded, err := s.storage.LoadAccounts(s.ctx)
	s.Require().NoError(err)
	s.Equal("hash", loaded[model.ClassPlayer]["p1"].PasswordHash)
	s.NotNil(loaded[model.ClassPublisher])
}

func (s *StorageSuite) TestGamesStoredAsSingleDocument() {
	games := model.GameTable{
		"pong":  {GameID: "pong", Owner: "dev1", CurrentVersion: "1.0.0", VersionHistory: []string{"1.0.0"}},
		"chess": {GameID: "chess", Owner: "dev2", CurrentVersion: "2.0", VersionHistory: []string{"2.0"}},
	}
	s.Require().NoError(s.storage.SaveGames(s.ctx, games))

	s.True(s.mini.Exists("gamelobby:games"))
	s.False(s.mini.Exists("gamelobby:game:pong"))

	loaded, err := s.storage.LoadGames(s.ctx)
	s.Require().NoError(err)
	s.Len(loaded, 2)
	s.Equal("dev2", loaded["chess"].Owner)
}

func (s *StorageSuite) TestSaveBumpsRevision() {
	s.Require().NoError(s.storage.SaveGames(s.ctx, model.GameTable{}))
	s.Require().NoError(s.storage.SaveGames(s.ctx, model.GameTable{}))

	rev, err := s.mini.Get(revisionKey(gamesKey("gamelobby")))
	s.Require().NoError(err)
	s.Equal("2", rev)
}

func (s *StorageSuite) TestKeyPrefix() {
	client := redis.NewClient(&redis.Options{Addr: s.mini.Addr()})
	cfg := DefaultConfig()
	cfg.KeyPrefix = "other"
	st := NewWithClient(client, cfg)
	defer func() { _ = st.Close() }()

	s.Require().NoError(st.SaveAccounts(s.ctx, model.NewAccountTable()))
	s.True(s.mini.Exists("other:accounts"))
	s.False(s.mini.Exists("gamelobby:accounts"))
}

func (s *StorageSuite) TestCorruptDocumentIsAnError() {
	s.Require().NoError(s.mini.Set("gamelobby:games", "{not json"))

	_, err := s.storage.LoadGames(s.ctx)
	s.Error(err)
}
