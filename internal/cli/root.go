package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfg *Config

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "gamelobby",
		Short: "CLI tool for the game lobby server",
		Long: `gamelobby talks to a game lobby server over its framed TCP protocol.

Publishers upload and manage game packages; players browse the store,
download games, rate them and gather in rooms to start game servers.
Every invocation opens its own connection and logs in with --user/--pass
when the command needs an account.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Output != "text" && cfg.Output != "json" {
				return fmt.Errorf("unknown output format %q", cfg.Output)
			}
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.Server, "server", cfg.Server, "Lobby server address (env: GAMELOBBY_SERVER)")
	rootCmd.PersistentFlags().StringVarP(&cfg.User, "user", "u", cfg.User, "Username (env: GAMELOBBY_USER)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Pass, "pass", "p", cfg.Pass, "Password (env: GAMELOBBY_PASS)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")

	// Add subcommands
	rootCmd.AddCommand(newDevCmd())
	rootCmd.AddCommand(newPlayerCmd())
	rootCmd.AddCommand(newStoreCmd())
	rootCmd.AddCommand(newRoomCmd())
	rootCmd.AddCommand(newRateCmd())
	rootCmd.AddCommand(newPlayersCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
