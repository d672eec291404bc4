package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/gamelobby/internal/api"
	"github.com/mcoot/gamelobby/internal/api/events"
	"github.com/mcoot/gamelobby/internal/config"
	"github.com/mcoot/gamelobby/internal/dependencies/clock"
	"github.com/mcoot/gamelobby/internal/dispatch"
	"github.com/mcoot/gamelobby/internal/server"
	"github.com/mcoot/gamelobby/internal/services/catalog"
	"github.com/mcoot/gamelobby/internal/services/packages"
	"github.com/mcoot/gamelobby/internal/services/rooms"
	"github.com/mcoot/gamelobby/internal/services/session"
	"github.com/mcoot/gamelobby/internal/storage"
	"github.com/mcoot/gamelobby/internal/storage/file"
	"github.com/mcoot/gamelobby/internal/storage/memory"
	redisstorage "github.com/mcoot/gamelobby/internal/storage/redis"
)

// GamesDir is the directory under data_dir holding installed game trees
const GamesDir = "games"

// DefaultShutdownTimeout bounds App.Run's shutdown once its context ends
const DefaultShutdownTimeout = 10 * time.Second

// App contains all wired application components
type App struct {
	Settings *config.Config
	Logger   *slog.Logger

	// Storage
	Storage storage.Storage

	// External dependencies
	Clock clock.Clock

	// Services
	Catalog    *catalog.Service
	Sessions   *session.Registry
	Packages   *packages.Store
	Rooms      *rooms.Manager
	Dispatcher *dispatch.Dispatcher
	Events     *events.Hub

	// Servers
	Server *server.Server
	Admin  *api.Server // nil when admin_addr is empty

	shutdownOnce sync.Once
	shutdownErr  error
}

// Config holds configuration for the application factory
type Config struct {
	// Settings is the loaded server configuration (required)
	Settings *config.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// Launcher starts game servers (optional)
	// If nil, an ExecLauncher using Settings.PythonInterp is used
	Launcher rooms.Launcher
	// Prober overrides the port pool's TCP probe (optional)
	Prober rooms.Prober
}

// New creates a new application with all dependencies wired and the catalog loaded
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.Settings == nil {
		return nil, errors.New("settings are required")
	}

	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := newStorage(cfg.Settings)
	if err != nil {
		return nil, err
	}

	launcher := cfg.Launcher
	if launcher == nil {
		launcher = rooms.NewExecLauncher(cfg.Settings.PythonInterp, logger)
	}

	app, err := newWithDependencies(ctx, cfg.Settings, store, clock.New(), launcher, cfg.Prober, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}

func newStorage(settings *config.Config) (storage.Storage, error) {
	switch settings.StorageType {
	case config.StorageTypeMemory:
		return memory.New(), nil
	case config.StorageTypeFile, "":
		return file.New(settings.DataDir)
	case config.StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = settings.RedisURL
		return redisstorage.New(redisCfg)
	default:
		return nil, fmt.Errorf("invalid storage type %q: must be file, memory or redis", settings.StorageType)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	ctx context.Context,
	settings *config.Config,
	store storage.Storage,
	clk clock.Clock,
	launcher rooms.Launcher,
	prober rooms.Prober,
	logger *slog.Logger,
) (*App, error) {
	// Create services
	catalogService := catalog.New(store, clk, catalog.Config{BcryptCost: settings.BcryptCost}, logger)
	if err := catalogService.Load(ctx); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	packageStore, err := packages.New(filepath.Join(settings.DataDir, GamesDir), logger)
	if err != nil {
		return nil, err
	}

	// Room lifecycle events feed the admin event stream
	hub := events.NewHub(logger)
	go hub.Run()

	sessions := session.NewRegistry(logger)
	roomManager := rooms.NewManager(rooms.Config{
		PortLow:          settings.PortLow,
		PortHigh:         settings.PortHigh,
		AdvertiseAddress: settings.AdvertiseAddress,
		Prober:           prober,
		OnEvent:          hub.PublishRoomEvent,
	}, packageStore, launcher, clk, logger)

	dispatcher := dispatch.New(dispatch.Config{
		Logger:         logger,
		Catalog:        catalogService,
		Sessions:       sessions,
		Rooms:          roomManager,
		Packages:       packageStore,
		MaxUploadBytes: settings.MaxUploadBytes,
	})

	// Create lobby server
	handler := dispatch.Chain(dispatcher, dispatch.Logging(logger), dispatch.Recovery(logger))
	lobbyServer := server.New(server.Config{
		ListenAddr:      settings.ListenAddr,
		FrameTimeout:    settings.FrameTimeout,
		TransferTimeout: settings.TransferTimeout,
		MaxFrameBytes:   settings.MaxFrameBytes,
	}, handler, dispatcher.OnClose, logger)

	// Create admin server
	var admin *api.Server
	if settings.AdminAddr != "" {
		router := api.NewRouter(api.RouterConfig{
			Logger:     logger,
			Catalog:    catalogService,
			Rooms:      roomManager,
			Sessions:   sessions,
			AdminToken: settings.AdminToken,
			Events:     hub,
		})
		adminCfg := api.DefaultServerConfig()
		adminCfg.Addr = settings.AdminAddr
		admin = api.NewServer(router, adminCfg, logger)
	}

	return &App{
		Settings:   settings,
		Logger:     logger,
		Storage:    store,
		Clock:      clk,
		Catalog:    catalogService,
		Sessions:   sessions,
		Packages:   packageStore,
		Rooms:      roomManager,
		Dispatcher: dispatcher,
		Events:     hub,
		Server:     lobbyServer,
		Admin:      admin,
	}, nil
}

// Run serves the lobby and admin servers until ctx ends or one of them fails,
// then shuts everything down
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Server.Start(gctx)
	})
	if a.Admin != nil {
		g.Go(func() error {
			return a.Admin.Start(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops the servers, ends every room and closes storage. It is safe
// to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		var errs []error
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if a.Admin != nil {
			if err := a.Admin.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		a.Rooms.Close()
		a.Events.Close()
		if err := a.Storage.Close(); err != nil {
			errs = append(errs, err)
		}
		a.shutdownErr = errors.Join(errs...)
	})
	return a.shutdownErr
}
