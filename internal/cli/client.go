package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamelobby/internal/client"
	"github.com/mcoot/gamelobby/internal/model"
)

// connect opens a lobby connection for one command
func connect(cmd *cobra.Command) (*client.Client, error) {
	return client.Dial(cmd.Context(), cfg.Server, client.WithTimeout(cfg.Timeout))
}

// withClient runs fn over a fresh connection
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	c, err := connect(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	return fn(cmd.Context(), c)
}

// withLogin runs fn over a fresh connection logged in as the configured user
func withLogin(cmd *cobra.Command, class model.AccountClass, fn func(ctx context.Context, c *client.Client) error) error {
	return withClient(cmd, func(ctx context.Context, c *client.Client) error {
		if err := login(ctx, c, class); err != nil {
			return err
		}
		return fn(ctx, c)
	})
}

func login(ctx context.Context, c *client.Client, class model.AccountClass) error {
	if err := requireCredentials(); err != nil {
		return err
	}
	_, err := c.Login(ctx, class, cfg.User, cfg.Pass)
	return err
}

func requireCredentials() error {
	if cfg.User == "" || cfg.Pass == "" {
		return errors.New("--user and --pass are required")
	}
	return nil
}

// registerCmd builds the register subcommand shared by dev and player
func registerCmd(class model.AccountClass) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register a new " + string(class) + " account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCredentials(); err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.Register(ctx, class, cfg.User, cfg.Pass); err != nil {
					return err
				}
				newOutput(cmd).PrintMessage("Registered " + cfg.User)
				return nil
			})
		},
	}
}

// loginCmd builds the login subcommand shared by dev and player. The session
// lasts as long as the connection, so this only checks the credentials.
func loginCmd(class model.AccountClass) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Check " + string(class) + " credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCredentials(); err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				token, err := c.Login(ctx, class, cfg.User, cfg.Pass)
				if err != nil {
					return err
				}
				newOutput(cmd).Print(LoginResult{Username: cfg.User, Class: string(class), Token: token})
				return nil
			})
		},
	}
}
