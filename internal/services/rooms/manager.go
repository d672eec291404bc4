package rooms

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/mcoot/gamelobby/internal/dependencies/clock"
	"github.com/mcoot/gamelobby/internal/model"
)

// GameResolver locates installed games
type GameResolver interface {
	Dir(id model.GameID) string
	Manifest(id model.GameID) (model.Manifest, error)
}

// Config holds configuration for the room manager
type Config struct {
	PortLow  int
	PortHigh int // exclusive
	// AdvertiseAddress overrides egress address discovery when set
	AdvertiseAddress string
	// Prober overrides the TCP connect probe used by the port pool
	Prober Prober
	// AddressResolver overrides DiscoverAddress
	AddressResolver func() string
	// OnEvent, when set, observes room lifecycle changes
	OnEvent EventFunc
}

// DefaultConfig returns default room manager configuration
func DefaultConfig() Config {
	return Config{
		PortLow:  9000,
		PortHigh: 9100,
	}
}

// StartResult is what the host and every other participant learn when a game starts
type StartResult struct {
	Port         int
	Address      string
	Participants []string // snapshot at commit time, host first
}

// roomState is a room plus the state only the manager sees
type roomState struct {
	seq      int
	room     model.Room
	starting bool // a launch is in flight outside the lock
	process  Process

	maxPlayers int
}

// Manager owns rooms, the port pool and game server processes.
// Process launches happen outside the lock: a start reserves the room under
// the lock, launches, then re-locks to commit or roll back.
type Manager struct {
	pool     *PortPool
	launcher Launcher
	games    GameResolver
	clock    clock.Clock
	logger   *slog.Logger
	address  func() string
	onEvent  EventFunc

	mu     sync.Mutex
	nextID int
	rooms  map[string]*roomState
}

// NewManager creates a room manager
func NewManager(cfg Config, games GameResolver, launcher Launcher, clk clock.Clock, logger *slog.Logger) *Manager {
	address := cfg.AddressResolver
	switch {
	case cfg.AdvertiseAddress != "":
		fixed := cfg.AdvertiseAddress
		address = func() string { return fixed }
	case address == nil:
		address = DiscoverAddress
	}

	return &Manager{
		pool:     NewPortPool(cfg.PortLow, cfg.PortHigh, cfg.Prober),
		launcher: launcher,
		games:    games,
		clock:    clk,
		logger:   logger.With(slog.String("component", "rooms")),
		address:  address,
		onEvent:  cfg.OnEvent,
		nextID:   1,
		rooms:    make(map[string]*roomState),
	}
}

// Pool exposes the port pool
func (m *Manager) Pool() *PortPool {
	return m.pool
}

// CreateRoom opens a WAITING room with host as its only participant
func (m *Manager) CreateRoom(host string, gameID model.GameID) (*model.Room, error) {
	manifest, err := m.games.Manifest(gameID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seq := m.nextID
	m.nextID++
	st := &roomState{
		seq: seq,
		room: model.Room{
			ID:           strconv.Itoa(seq),
			Host:         host,
			GameID:       gameID,
			Participants: []string{host},
			Status:       model.RoomStatusWaiting,
			CreatedAt:    m.clock.Now(),
		},
		maxPlayers: manifest.MaxPlayers,
	}
	m.rooms[st.room.ID] = st

	m.logger.Info("room created",
		slog.String("room_id", st.room.ID),
		slog.String("host", host),
		slog.String("game_id", string(gameID)),
	)
	m.emit(Event{Type: EventCreated, RoomID: st.room.ID, GameID: gameID, Player: host})
	return cloneRoom(&st.room), nil
}

// GetRoom returns a copy of a room
func (m *Manager) GetRoom(roomID string) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.rooms[roomID]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	return cloneRoom(&st.room), nil
}

// ListRooms returns every room in creation order
func (m *Manager) ListRooms() []model.RoomSummary {
	m.mu.Lock()
	states := make([]*roomState, 0, len(m.rooms))
	for _, st := range m.rooms {
		states = append(states, st)
	}
	slices.SortFunc(states, func(a, b *roomState) int { return cmp.Compare(a.seq, b.seq) })

	out := make([]model.RoomSummary, len(states))
	for i, st := range states {
		out[i] = st.room.Summary()
	}
	m.mu.Unlock()
	return out
}

// JoinRoom adds player to a WAITING room. Joining a room twice is a no-op.
func (m *Manager) JoinRoom(roomID, player string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.rooms[roomID]
	if !ok {
		return model.ErrRoomNotFound
	}
	if st.room.Status != model.RoomStatusWaiting {
		return model.ErrAlreadyStarted
	}
	if st.room.HasParticipant(player) {
		return nil
	}
	if st.maxPlayers > 0 && len(st.room.Participants) >= st.maxPlayers {
		return model.ErrRoomFull
	}

	st.room.Participants = append(st.room.Participants, player)
	m.logger.Info("room joined", slog.String("room_id", roomID), slog.String("player", player))
	m.emit(Event{Type: EventJoined, RoomID: roomID, GameID: st.room.GameID, Player: player})
	return nil
}

// StartGame leases a port and launches the game server for a room.
// Only the host may start, and only once.
func (m *Manager) StartGame(ctx context.Context, roomID, caller string) (*StartResult, error) {
	m.mu.Lock()
	st, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return nil, model.ErrRoomNotFound
	}
	if st.room.Host != caller {
		m.mu.Unlock()
		return nil, model.ErrNotHost
	}
	if st.room.Status == model.RoomStatusPlaying {
		m.mu.Unlock()
		return nil, model.ErrAlreadyStarted
	}
	if st.starting {
		m.mu.Unlock()
		return nil, model.ErrStartInProgress
	}
	st.starting = true
	gameID := st.room.GameID
	m.mu.Unlock()

	log := m.logger.With(slog.String("room_id", roomID), slog.String("game_id", string(gameID)))

	proc, port, err := m.launch(ctx, roomID, gameID)
	if err != nil {
		m.mu.Lock()
		st.starting = false
		m.mu.Unlock()
		log.Warn("game start failed", slog.String("error", err.Error()))
		return nil, err
	}
	address := m.address()

	m.mu.Lock()
	if m.rooms[roomID] != st {
		// Room ended while the process was launching
		m.mu.Unlock()
		m.release(roomID, proc, port)
		return nil, model.ErrRoomNotFound
	}
	st.starting = false
	st.process = proc
	st.room.Status = model.RoomStatusPlaying
	st.room.Port = port
	st.room.Address = address
	st.room.StartedAt = m.clock.Now()
	result := &StartResult{
		Port:         port,
		Address:      address,
		Participants: slices.Clone(st.room.Participants),
	}
	m.mu.Unlock()

	log.Info("game started",
		slog.Int("port", port),
		slog.String("address", address),
		slog.Int("pid", proc.PID()),
		slog.Int("players", len(result.Participants)),
	)
	m.emit(Event{Type: EventStarted, RoomID: roomID, GameID: gameID, Player: caller, Port: port})
	return result, nil
}

// launch runs outside the manager lock
func (m *Manager) launch(ctx context.Context, roomID string, gameID model.GameID) (Process, int, error) {
	manifest, err := m.games.Manifest(gameID)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", model.ErrSpawnFailed, err)
	}

	port, err := m.pool.Lease()
	if err != nil {
		return nil, 0, err
	}

	proc, err := m.launcher.Launch(ctx, LaunchSpec{
		RoomID:     roomID,
		GameID:     gameID,
		Dir:        m.games.Dir(gameID),
		EntryPoint: manifest.EntryPoint,
		Port:       port,
	})
	if err != nil {
		m.pool.Release(port)
		if !errors.Is(err, model.ErrSpawnFailed) {
			err = fmt.Errorf("%w: %w", model.ErrSpawnFailed, err)
		}
		return nil, 0, err
	}
	return proc, port, nil
}

// EndRoom terminates the room's game server, releases its port and removes it.
// It reports whether the room existed; ending an unknown room is a no-op.
func (m *Manager) EndRoom(roomID string) bool {
	m.mu.Lock()
	st, ok := m.rooms[roomID]
	if ok {
		delete(m.rooms, roomID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.stop(roomID, st.process, st.room.Port)
	return true
}

// EndRoomAs ends a room on behalf of caller, who must be its host
func (m *Manager) EndRoomAs(roomID, caller string) error {
	m.mu.Lock()
	st, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return model.ErrRoomNotFound
	}
	if st.room.Host != caller {
		m.mu.Unlock()
		return model.ErrNotHost
	}
	delete(m.rooms, roomID)
	m.mu.Unlock()

	m.stop(roomID, st.process, st.room.Port)
	return nil
}

// HandleDisconnect ends every room hosted by username and removes username
// from the rooms it merely joined. It returns the ids of the ended rooms.
func (m *Manager) HandleDisconnect(username string) []string {
	var ended []*roomState
	var left []string

	m.mu.Lock()
	for id, st := range m.rooms {
		if st.room.Host == username {
			delete(m.rooms, id)
			ended = append(ended, st)
			continue
		}
		if st.room.RemoveParticipant(username) {
			left = append(left, id)
		}
	}
	m.mu.Unlock()

	for _, id := range left {
		m.emit(Event{Type: EventLeft, RoomID: id, Player: username})
	}

	ids := make([]string, 0, len(ended))
	for _, st := range ended {
		m.stop(st.room.ID, st.process, st.room.Port)
		ids = append(ids, st.room.ID)
	}
	if len(ids) > 0 {
		m.logger.Info("host disconnected, rooms ended", slog.String("host", username), slog.Any("room_ids", ids))
	}
	return ids
}

// Close ends every room
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.rooms
	m.rooms = make(map[string]*roomState)
	m.mu.Unlock()

	for id, st := range all {
		m.stop(id, st.process, st.room.Port)
	}
}

// stop releases a removed room's resources and announces its end
func (m *Manager) stop(roomID string, proc Process, port int) {
	m.release(roomID, proc, port)
	m.emit(Event{Type: EventEnded, RoomID: roomID, Port: port})
}

// release terminates a process and releases its port; both may be absent
func (m *Manager) release(roomID string, proc Process, port int) {
	if proc != nil {
		if err := proc.Terminate(); err != nil {
			m.logger.Warn("failed to terminate game server",
				slog.String("room_id", roomID),
				slog.Int("pid", proc.PID()),
				slog.String("error", err.Error()),
			)
		}
	}
	if port != 0 {
		m.pool.Release(port)
	}
	m.logger.Info("room ended", slog.String("room_id", roomID), slog.Int("port", port))
}

func cloneRoom(r *model.Room) *model.Room {
	out := *r
	out.Participants = slices.Clone(r.Participants)
	return &out
}
