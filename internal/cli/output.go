package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/protocol"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
	errW   io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, w, errW io.Writer) *Output {
	return &Output{format: format, w: w, errW: errW}
}

func newOutput(cmd *cobra.Command) *Output {
	return NewOutput(cfg.Output, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		_, _ = fmt.Fprintln(o.errW, string(data))
	} else {
		_, _ = fmt.Fprintf(o.errW, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.w, string(data))
	} else {
		_, _ = fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case LoginResult:
		o.printf("Logged in as %s (%s)\n", v.Username, v.Class)
		o.printf("Token: %s\n", v.Token)
	case []*model.GameRecord:
		o.printGames(v)
	case *model.GameRecord:
		o.printGame(v)
	case []model.RoomSummary:
		o.printRooms(v)
	case RoomCreated:
		o.printf("Room %s created for %s\n", v.RoomID, v.GameID)
	case protocol.GameStart:
		o.printf("Game server: %s:%d\n", v.Address, v.Port)
	case DownloadResult:
		o.printf("Downloaded %s %s to %s (%d files)\n", v.GameID, v.Version, v.Dest, len(v.Files))
	case PlayerList:
		o.printPlayers(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(o.w, format, args...)
}

// LoginResult is printed by the login commands
type LoginResult struct {
	Username string `json:"username"`
	Class    string `json:"class"`
	Token    string `json:"token"`
}

// RoomCreated is printed when a hosted room opens
type RoomCreated struct {
	RoomID string       `json:"room_id"`
	GameID model.GameID `json:"game_id"`
}

// DownloadResult describes an extracted download
type DownloadResult struct {
	GameID  model.GameID `json:"game_id"`
	Version string       `json:"version"`
	Dest    string       `json:"dest"`
	Files   []string     `json:"files"`
}

// PlayerList is the online player listing
type PlayerList struct {
	Players []string `json:"players"`
}

func (o *Output) printGames(games []*model.GameRecord) {
	if len(games) == 0 {
		o.printf("No games\n")
		return
	}
	for _, g := range games {
		o.printf("%-20s %-10s %-12s %s\n", g.GameID, g.CurrentVersion, g.Owner, g.Name)
	}
}

func (o *Output) printGame(g *model.GameRecord) {
	o.printf("Game: %s (%s)\n", g.Name, g.GameID)
	o.printf("Owner: %s\n", g.Owner)
	o.printf("Version: %s\n", g.CurrentVersion)
	if len(g.VersionHistory) > 1 {
		o.printf("History: %s\n", strings.Join(g.VersionHistory, ", "))
	}
	if g.Description != "" {
		o.printf("Description: %s\n", g.Description)
	}
	if len(g.Reviews) == 0 {
		o.printf("Reviews: none\n")
		return
	}
	o.printf("Reviews (%d, average %.1f):\n", len(g.Reviews), g.AverageRating())
	for _, r := range g.Reviews {
		o.printf("  - %s: %d/5 %s\n", r.Reviewer, r.Rating, r.Comment)
	}
}

func (o *Output) printRooms(rooms []model.RoomSummary) {
	if len(rooms) == 0 {
		o.printf("No rooms\n")
		return
	}
	for _, r := range rooms {
		o.printf("%-6s %-20s %-12s %d players  %s\n", r.ID, r.GameID, r.Host, r.Players, r.Status)
	}
}

func (o *Output) printPlayers(p PlayerList) {
	o.printf("Players online (%d):\n", len(p.Players))
	for _, name := range p.Players {
		o.printf("  - %s\n", name)
	}
}
