package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamelobby/internal/client"
	"github.com/mcoot/gamelobby/internal/model"
)

func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Browse and download games",
	}

	cmd.AddCommand(newStoreListCmd())
	cmd.AddCommand(newStoreDetailCmd())
	cmd.AddCommand(newStoreDownloadCmd())

	return cmd
}

func newStoreListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every published game",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				games, err := c.ListGames(ctx)
				if err != nil {
					return err
				}
				newOutput(cmd).Print(games)
				return nil
			})
		},
	}
}

func newStoreDetailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detail <game_id>",
		Short: "Show a game with its versions and reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				rec, err := c.GameDetail(ctx, model.GameID(args[0]))
				if err != nil {
					return err
				}
				newOutput(cmd).Print(rec)
				return nil
			})
		},
	}
}

func newStoreDownloadCmd() *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "download <game_id>",
		Short: "Download and unpack a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := model.GameID(args[0])
			if !id.Valid() {
				return fmt.Errorf("invalid game id %q", args[0])
			}
			if dest == "" {
				dest = filepath.Join("downloads", string(id))
			}

			return withLogin(cmd, model.ClassPlayer, func(ctx context.Context, c *client.Client) error {
				info, archive, err := c.Download(ctx, id)
				if err != nil {
					return err
				}
				files, err := extractArchive(archive, dest)
				if err != nil {
					return err
				}
				newOutput(cmd).Print(DownloadResult{GameID: info.GameID, Version: info.Version, Dest: dest, Files: files})
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "Destination directory (default downloads/<game_id>)")

	return cmd
}

func newRateCmd() *cobra.Command {
	var rating int
	var comment string

	cmd := &cobra.Command{
		Use:   "rate <game_id>",
		Short: "Review a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogin(cmd, model.ClassPlayer, func(ctx context.Context, c *client.Client) error {
				if err := c.Rate(ctx, model.GameID(args[0]), rating, comment); err != nil {
					return err
				}
				newOutput(cmd).PrintMessage(fmt.Sprintf("Rated %s %d/5", args[0], rating))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&rating, "rating", 0, "Rating from 1 to 5 (required)")
	cmd.Flags().StringVar(&comment, "comment", "", "Review comment")
	_ = cmd.MarkFlagRequired("rating")

	return cmd
}
