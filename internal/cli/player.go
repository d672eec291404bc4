package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamelobby/internal/client"
	"github.com/mcoot/gamelobby/internal/model"
)

func newPlayerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Player account commands",
	}

	cmd.AddCommand(registerCmd(model.ClassPlayer))
	cmd.AddCommand(loginCmd(model.ClassPlayer))

	return cmd
}

func newPlayersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "players",
		Short: "Online player commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "online",
		Short: "List players with a live session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				players, err := c.OnlinePlayers(ctx)
				if err != nil {
					return err
				}
				if players == nil {
					players = []string{}
				}
				newOutput(cmd).Print(PlayerList{Players: players})
				return nil
			})
		},
	})

	return cmd
}
