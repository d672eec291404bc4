package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamelobby/internal/config"
	"github.com/mcoot/gamelobby/internal/factory"
)

func main() {
	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "gamelobby-server",
		Short:         "Run the game lobby server",
		Long:          "Run the lobby TCP server and its admin HTTP API. Settings come from flags, then LOBBY_* environment variables, then the config file.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadWithFlags(configPath, cmd.Flags())
			if err != nil {
				slog.Error("failed to load config", slog.String("error", err.Error()))
				return err
			}
			return run(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", os.Getenv("LOBBY_CONFIG"), "Path to a config file (default ./gamelobby.yaml if present)")
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func run(ctx context.Context, settings *config.Config) error {
	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: settings.SlogLevel(),
	}))
	slog.SetDefault(logger)

	app, err := factory.New(ctx, factory.Config{
		Settings: settings,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server starting",
		slog.String("addr", settings.ListenAddr),
		slog.String("admin_addr", settings.AdminAddr),
		slog.String("storage", settings.StorageType),
	)

	if err := app.Run(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return nil
}
