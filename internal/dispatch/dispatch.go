package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/protocol"
	"github.com/mcoot/gamelobby/internal/services/catalog"
	"github.com/mcoot/gamelobby/internal/services/packages"
	"github.com/mcoot/gamelobby/internal/services/rooms"
	"github.com/mcoot/gamelobby/internal/services/session"
)

// Peer is the connection a request arrived on
type Peer interface {
	session.Handle

	// ReadRaw reads exactly n out-of-band bytes following the current frame
	ReadRaw(n int64) ([]byte, error)

	// Identity returns the username this connection logged in as for class, or ""
	Identity(class model.AccountClass) string
	SetIdentity(class model.AccountClass, username string)
	ClearIdentity(class model.AccountClass)
}

// Response is what the connection loop writes back: one reply frame,
// then Stream as raw bytes when it is non-empty
type Response struct {
	Reply  *protocol.Reply
	Stream []byte
}

// Handler processes one request frame. A non-nil error is a protocol error
// and the connection must be closed.
type Handler interface {
	Handle(ctx context.Context, peer Peer, frame []byte) (Response, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, peer Peer, frame []byte) (Response, error)

// Handle implements Handler
func (f HandlerFunc) Handle(ctx context.Context, peer Peer, frame []byte) (Response, error) {
	return f(ctx, peer, frame)
}

type commandFunc func(ctx context.Context, peer Peer, payload json.RawMessage) (Response, error)

// Config holds the dispatcher's collaborators
type Config struct {
	Logger   *slog.Logger
	Catalog  *catalog.Service
	Sessions *session.Registry
	Rooms    *rooms.Manager
	Packages *packages.Store
	// MaxUploadBytes rejects larger uploads as a protocol error; 0 means unlimited
	MaxUploadBytes int64
}

// Dispatcher routes request frames to command handlers.
// It is the only component that mutates catalog, session or room state.
type Dispatcher struct {
	logger   *slog.Logger
	catalog  *catalog.Service
	sessions *session.Registry
	rooms    *rooms.Manager
	packages *packages.Store

	maxUploadBytes int64

	// uploadMu serializes the ownership check, install and catalog update of uploads
	uploadMu sync.Mutex

	commands map[string]commandFunc
}

// New creates a dispatcher with the full command table
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		logger:         cfg.Logger.With(slog.String("component", "dispatch")),
		catalog:        cfg.Catalog,
		sessions:       cfg.Sessions,
		rooms:          cfg.Rooms,
		packages:       cfg.Packages,
		maxUploadBytes: cfg.MaxUploadBytes,
	}

	d.commands = map[string]commandFunc{
		// Publisher commands
		protocol.CmdDevRegister:  d.register(model.ClassPublisher),
		protocol.CmdDevLogin:     d.login(model.ClassPublisher),
		protocol.CmdGameUpload:   d.gameUpload,
		protocol.CmdGameListMine: d.gameListMine,
		protocol.CmdGameDelete:   d.gameDelete,

		// Player commands
		protocol.CmdPlayerRegister: d.register(model.ClassPlayer),
		protocol.CmdPlayerLogin:    d.login(model.ClassPlayer),
		protocol.CmdLogout:         d.logout,
		protocol.CmdStoreList:      d.storeList,
		protocol.CmdGameDetail:     d.gameDetail,
		protocol.CmdGameDownload:   d.gameDownload,
		protocol.CmdPlayerList:     d.playerList,
		protocol.CmdGameRating:     d.gameRating,

		// Room commands
		protocol.CmdRoomCreate: d.roomCreate,
		protocol.CmdRoomList:   d.roomList,
		protocol.CmdRoomJoin:   d.roomJoin,
		protocol.CmdRoomStart:  d.roomStart,
		protocol.CmdRoomEnd:    d.roomEnd,
	}
	return d
}

// Ensure Dispatcher implements Handler
var _ Handler = (*Dispatcher)(nil)

// Handle decodes one request and runs its command.
// Domain failures become ERROR replies; only protocol errors are returned.
func (d *Dispatcher) Handle(ctx context.Context, peer Peer, frame []byte) (Response, error) {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		return Response{}, err
	}

	cmd, ok := d.commands[req.Command]
	if !ok {
		d.logger.Warn("unknown command", slog.String("conn", peer.ID()), slog.String("command", req.Command))
		return reply(protocol.ErrorReply("Unknown command: " + req.Command)), nil
	}

	resp, err := cmd(ctx, peer, req.Payload)
	if err != nil {
		if isFatal(err) {
			return Response{}, err
		}
		d.logFailure(peer, req.Command, err)
		return reply(toReply(err)), nil
	}
	return resp, nil
}

// OnClose is the cleanup coordinator, run exactly once when a connection ends.
// The player session is released only if it still belongs to this connection,
// so an evicted connection closing does not disturb its replacement.
func (d *Dispatcher) OnClose(peer Peer) {
	username := peer.Identity(model.ClassPlayer)
	if username == "" {
		return
	}
	peer.ClearIdentity(model.ClassPlayer)

	if !d.sessions.UnbindIf(username, peer) {
		return
	}
	ended := d.rooms.HandleDisconnect(username)
	d.logger.Info("player disconnected",
		slog.String("conn", peer.ID()),
		slog.String("username", username),
		slog.Int("rooms_ended", len(ended)),
	)
}

func (d *Dispatcher) logFailure(peer Peer, command string, err error) {
	level := slog.LevelInfo
	if isInternal(err) {
		level = slog.LevelError
	}
	d.logger.Log(context.Background(), level, "command failed",
		slog.String("conn", peer.ID()),
		slog.String("command", command),
		slog.String("error", err.Error()),
	)
}

func reply(r *protocol.Reply) Response {
	return Response{Reply: r}
}

// decode unmarshals a command payload; an absent payload decodes as {}
func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return invalidRequest("Invalid payload: " + err.Error())
	}
	return nil
}

// authorize returns the identity this connection holds for class, after
// checking it matches the identity asserted in the payload (when one is given)
func (d *Dispatcher) authorize(peer Peer, class model.AccountClass, auth protocol.Auth) (string, error) {
	current := peer.Identity(class)
	if current == "" {
		return "", model.ErrNotLoggedIn
	}
	if who := auth.Who(); who != "" && who != current {
		return "", permissionDenied("Not logged in as " + who)
	}
	return current, nil
}

// authorizeAny is authorize for commands open to more than one account class.
// The first class this connection is logged in as and that matches the payload wins.
func (d *Dispatcher) authorizeAny(peer Peer, auth protocol.Auth, classes ...model.AccountClass) (string, error) {
	err := model.ErrNotLoggedIn
	for _, class := range classes {
		who, cerr := d.authorize(peer, class, auth)
		if cerr == nil {
			return who, nil
		}
		if !errors.Is(cerr, model.ErrNotLoggedIn) {
			err = cerr
		}
	}
	return "", err
}
