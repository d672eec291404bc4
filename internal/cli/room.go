package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamelobby/internal/client"
	"github.com/mcoot/gamelobby/internal/model"
)

func newRoomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Room commands",
		Long: `Rooms live as long as their host's connection, so create and join keep
the connection open. A host drives the room with lines on stdin:

  start   launch the game server and notify participants
  end     end the room and stop its game server
  list    show all rooms
  quit    leave (also on EOF); a started game server is stopped`,
	}

	cmd.AddCommand(newRoomCreateCmd())
	cmd.AddCommand(newRoomListCmd())
	cmd.AddCommand(newRoomJoinCmd())

	return cmd
}

func newRoomListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				rooms, err := c.ListRooms(ctx)
				if err != nil {
					return err
				}
				newOutput(cmd).Print(rooms)
				return nil
			})
		},
	}
}

func newRoomCreateCmd() *cobra.Command {
	var startAt int
	var poll time.Duration

	cmd := &cobra.Command{
		Use:   "create <game_id>",
		Short: "Host a room and drive it from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID := model.GameID(args[0])

			return withLogin(cmd, model.ClassPlayer, func(ctx context.Context, c *client.Client) error {
				roomID, err := c.CreateRoom(ctx, gameID)
				if err != nil {
					return err
				}
				out := newOutput(cmd)
				out.Print(RoomCreated{RoomID: roomID, GameID: gameID})

				h := &host{c: c, out: out, roomID: roomID}
				if startAt > 0 {
					if err := h.waitForPlayers(ctx, startAt, poll); err != nil {
						return err
					}
					if err := h.start(ctx); err != nil {
						return err
					}
				}
				return h.run(ctx, cmd.InOrStdin())
			})
		},
	}

	cmd.Flags().IntVar(&startAt, "start-at", 0, "Start automatically once this many players are in the room")
	cmd.Flags().DurationVar(&poll, "poll", time.Second, "Room poll interval for --start-at")

	return cmd
}

func newRoomJoinCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "join <room_id>",
		Short: "Join a room and wait for its game server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogin(cmd, model.ClassPlayer, func(ctx context.Context, c *client.Client) error {
				if err := c.JoinRoom(ctx, args[0]); err != nil {
					return err
				}
				if cfg.Output == "text" {
					newOutput(cmd).PrintMessage(fmt.Sprintf("Joined room %s, waiting for the host to start", args[0]))
				}

				if wait > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, wait)
					defer cancel()
				}
				start, err := c.WaitGameStart(ctx)
				if err != nil {
					return fmt.Errorf("waiting for game start: %w", err)
				}
				newOutput(cmd).Print(start)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 10*time.Minute, "How long to wait for the host to start (0 waits forever)")

	return cmd
}

// host drives a room over the connection that created it
type host struct {
	c      *client.Client
	out    *Output
	roomID string
}

func (h *host) waitForPlayers(ctx context.Context, n int, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		rooms, err := h.c.ListRooms(ctx)
		if err != nil {
			return err
		}
		for _, r := range rooms {
			if r.ID == h.roomID && r.Players >= n {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *host) start(ctx context.Context) error {
	start, err := h.c.StartRoom(ctx, h.roomID)
	if err != nil {
		return err
	}
	h.out.Print(start)
	return nil
}

// run reads host commands until quit, end, EOF or cancellation
func (h *host) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			done, err := h.exec(ctx, line)
			if err != nil {
				h.out.PrintError(err)
			}
			if done {
				return nil
			}
		}
	}
}

func (h *host) exec(ctx context.Context, line string) (bool, error) {
	switch line {
	case "":
		return false, nil
	case "start":
		return false, h.start(ctx)
	case "end":
		if err := h.c.EndRoom(ctx, h.roomID); err != nil {
			return false, err
		}
		h.out.PrintMessage("Room " + h.roomID + " ended")
		return true, nil
	case "list":
		rooms, err := h.c.ListRooms(ctx)
		if err != nil {
			return false, err
		}
		h.out.Print(rooms)
		return false, nil
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown room command %q (start, end, list, quit)", line)
	}
}
