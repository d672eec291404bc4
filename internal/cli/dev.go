package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamelobby/internal/client"
	"github.com/mcoot/gamelobby/internal/model"
)

func newDevCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Publisher commands",
	}

	cmd.AddCommand(registerCmd(model.ClassPublisher))
	cmd.AddCommand(loginCmd(model.ClassPublisher))
	cmd.AddCommand(newDevUploadCmd())
	cmd.AddCommand(newDevListCmd())
	cmd.AddCommand(newDevDeleteCmd())

	return cmd
}

func newDevUploadCmd() *cobra.Command {
	var name, version, description string

	cmd := &cobra.Command{
		Use:   "upload <dir>",
		Short: "Upload a game package directory",
		Long: `Upload zips <dir> and publishes it. The directory must hold a config.json
manifest; its name, version and description are used unless overridden.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			meta, err := readPackageMeta(dir)
			if err != nil {
				return err
			}
			if name != "" {
				meta.Name = name
			}
			if version != "" {
				meta.Version = version
			}
			if description != "" {
				meta.Description = description
			}

			archive, err := zipDir(dir)
			if err != nil {
				return err
			}

			return withLogin(cmd, model.ClassPublisher, func(ctx context.Context, c *client.Client) error {
				rec, err := c.Upload(ctx, meta, archive)
				if err != nil {
					return err
				}
				newOutput(cmd).Print(rec)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Override the manifest name")
	cmd.Flags().StringVar(&version, "version", "", "Override the manifest version")
	cmd.Flags().StringVar(&description, "description", "", "Override the manifest description")

	return cmd
}

func newDevListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your published games",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogin(cmd, model.ClassPublisher, func(ctx context.Context, c *client.Client) error {
				games, err := c.MyGames(ctx)
				if err != nil {
					return err
				}
				newOutput(cmd).Print(games)
				return nil
			})
		},
	}
}

func newDevDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <game_id>",
		Short: "Delete one of your games",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogin(cmd, model.ClassPublisher, func(ctx context.Context, c *client.Client) error {
				if err := c.DeleteGame(ctx, model.GameID(args[0])); err != nil {
					return err
				}
				newOutput(cmd).PrintMessage("Deleted " + args[0])
				return nil
			})
		},
	}
}
