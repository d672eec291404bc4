package rooms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamelobby/internal/dependencies/mocks"
	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/testutil"
)

type fakeProcess struct {
	pid int

	mu         sync.Mutex
	terminated int
	done       chan struct{}
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated++
	if p.terminated == 1 {
		close(p.done)
	}
	return nil
}

func (p *fakeProcess) Terminations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

type fakeLauncher struct {
	mu        sync.Mutex
	specs     []LaunchSpec
	processes []*fakeProcess
	err       error
	// gate, when set, blocks Launch until it is closed
	gate    chan struct{}
	entered chan struct{}
}

func (l *fakeLauncher) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	if l.entered != nil {
		l.entered <- struct{}{}
	}
	if l.gate != nil {
		<-l.gate
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	p := &fakeProcess{pid: 1000 + len(l.processes), done: make(chan struct{})}
	l.specs = append(l.specs, spec)
	l.processes = append(l.processes, p)
	return p, nil
}

func (l *fakeLauncher) Process(i int) *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processes[i]
}

type fakeGames struct {
	manifests map[model.GameID]model.Manifest
}

func (g *fakeGames) Dir(id model.GameID) string {
	return "/games/" + string(id)
}

func (g *fakeGames) Manifest(id model.GameID) (model.Manifest, error) {
	m, ok := g.manifests[id]
	if !ok {
		return model.Manifest{}, model.ErrPackageNotInstalled
	}
	return m, nil
}

type ManagerSuite struct {
	suite.Suite
	launcher *fakeLauncher
	games    *fakeGames
	busy     map[int]bool
	busyMu   sync.Mutex
	manager  *Manager
	ctx      context.Context
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.launcher = &fakeLauncher{}
	s.games = &fakeGames{manifests: map[model.GameID]model.Manifest{
		"pong":  {Name: "Pong", Version: "1", EntryPoint: "server.py"},
		"duel":  {Name: "Duel", Version: "1", EntryPoint: "bin/duel", MaxPlayers: 2},
		"chess": {Name: "Chess", Version: "1", EntryPoint: "server.py"},
	}}
	s.busy = map[int]bool{}
	cfg := Config{
		PortLow:  9000,
		PortHigh: 9010,
		Prober: func(port int) bool {
			s.busyMu.Lock()
			defer s.busyMu.Unlock()
			return s.busy[port]
		},
		AddressResolver: func() string { return "10.0.0.5" },
	}
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.manager = NewManager(cfg, s.games, s.launcher, clk, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ManagerSuite) create(host string, game model.GameID) string {
	room, err := s.manager.CreateRoom(host, game)
	s.Require().NoError(err)
	return room.ID
}

func (s *ManagerSuite) TestCreateRoomAssignsSequentialIDs() {
	first := s.create("p1", "pong")
	second := s.create("p2", "pong")
	s.Equal("1", first)
	s.Equal("2", second)

	room, err := s.manager.GetRoom(first)
	s.Require().NoError(err)
	s.Equal([]string{"p1"}, room.Participants)
	s.Equal(model.RoomStatusWaiting, room.Status)
}

func (s *ManagerSuite) TestCreateRoomRequiresInstalledGame() {
	_, err := s.manager.CreateRoom("p1", "missing")
	s.ErrorIs(err, model.ErrPackageNotInstalled)
}

func (s *ManagerSuite) TestListRoomsInCreationOrder() {
	for i := range 12 {
		s.create(fmt.Sprintf("p%d", i), "pong")
	}
	rooms := s.manager.ListRooms()
	s.Require().Len(rooms, 12)
	for i, r := range rooms {
		s.Equal(fmt.Sprint(i+1), r.ID)
		s.Equal(1, r.Players)
	}
}

func (s *ManagerSuite) TestJoinRoom() {
	id := s.create("p1", "pong")

	s.Require().NoError(s.manager.JoinRoom(id, "p2"))
	s.Require().NoError(s.manager.JoinRoom(id, "p2"))

	room, _ := s.manager.GetRoom(id)
	s.Equal([]string{"p1", "p2"}, room.Participants)

	s.ErrorIs(s.manager.JoinRoom("99", "p3"), model.ErrRoomNotFound)
}

func (s *ManagerSuite) TestJoinRoomRespectsMaxPlayers() {
	id := s.create("p1", "duel")
	s.Require().NoError(s.manager.JoinRoom(id, "p2"))
	s.ErrorIs(s.manager.JoinRoom(id, "p3"), model.ErrRoomFull)
}

func (s *ManagerSuite) TestJoinStartedRoomFails() {
	id := s.create("p1", "pong")
	_, err := s.manager.StartGame(s.ctx, id, "p1")
	s.Require().NoError(err)

	s.ErrorIs(s.manager.JoinRoom(id, "p2"), model.ErrAlreadyStarted)
}

func (s *ManagerSuite) TestStartGame() {
	id := s.create("p1", "pong")
	s.Require().NoError(s.manager.JoinRoom(id, "p2"))

	result, err := s.manager.StartGame(s.ctx, id, "p1")
	s.Require().NoError(err)
	s.Equal(9000, result.Port)
	s.Equal("10.0.0.5", result.Address)
	s.Equal([]string{"p1", "p2"}, result.Participants)

	s.Require().Len(s.launcher.specs, 1)
	spec := s.launcher.specs[0]
	s.Equal("/games/pong", spec.Dir)
	s.Equal("server.py", spec.EntryPoint)
	s.Equal(9000, spec.Port)

	room, _ := s.manager.GetRoom(id)
	s.Equal(model.RoomStatusPlaying, room.Status)
	s.Equal(9000, room.Port)
}

func (s *ManagerSuite) TestStartGameErrors() {
	id := s.create("p1", "pong")
	s.Require().NoError(s.manager.JoinRoom(id, "p2"))

	_, err := s.manager.StartGame(s.ctx, "99", "p1")
	s.ErrorIs(err, model.ErrRoomNotFound)

	_, err = s.manager.StartGame(s.ctx, id, "p2")
	s.ErrorIs(err, model.ErrNotHost)

	_, err = s.manager.StartGame(s.ctx, id, "p1")
	s.Require().NoError(err)
	_, err = s.manager.StartGame(s.ctx, id, "p1")
	s.ErrorIs(err, model.ErrAlreadyStarted)
	s.Equal(1, s.manager.Pool().InUse())
}

func (s *ManagerSuite) TestStartSkipsBoundPorts() {
	s.busyMu.Lock()
	s.busy[9000] = true
	s.busy[9001] = true
	s.busyMu.Unlock()

	id := s.create("p1", "pong")
	result, err := s.manager.StartGame(s.ctx, id, "p1")
	s.Require().NoError(err)
	s.Equal(9002, result.Port)
}

func (s *ManagerSuite) TestNoPortAvailableLeavesRoomWaiting() {
	s.busyMu.Lock()
	for p := 9000; p < 9010; p++ {
		s.busy[p] = true
	}
	s.busyMu.Unlock()

	id := s.create("p1", "pong")
	_, err := s.manager.StartGame(s.ctx, id, "p1")
	s.ErrorIs(err, model.ErrNoPortAvailable)

	room, _ := s.manager.GetRoom(id)
	s.Equal(model.RoomStatusWaiting, room.Status)

	// The room can be started once a port frees up
	s.busyMu.Lock()
	s.busy[9004] = false
	s.busyMu.Unlock()
	result, err := s.manager.StartGame(s.ctx, id, "p1")
	s.Require().NoError(err)
	s.Equal(9004, result.Port)
}

func (s *ManagerSuite) TestLaunchFailureRollsBack() {
	s.launcher.err = fmt.Errorf("%w: exec format error", model.ErrSpawnFailed)

	id := s.create("p1", "pong")
	_, err := s.manager.StartGame(s.ctx, id, "p1")
	s.ErrorIs(err, model.ErrSpawnFailed)

	room, _ := s.manager.GetRoom(id)
	s.Equal(model.RoomStatusWaiting, room.Status)
	s.Equal(0, room.Port)
	s.Equal(0, s.manager.Pool().InUse())
}

func (s *ManagerSuite) TestConcurrentStartsGetDistinctPorts() {
	const n = 8
	ids := make([]string, n)
	for i := range n {
		ids[i] = s.create(fmt.Sprintf("host%d", i), "pong")
	}

	var wg sync.WaitGroup
	ports := make(chan int, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.manager.StartGame(s.ctx, ids[i], fmt.Sprintf("host%d", i))
			s.NoError(err)
			if err == nil {
				ports <- result.Port
			}
		}()
	}
	wg.Wait()
	close(ports)

	seen := map[int]bool{}
	for p := range ports {
		s.False(seen[p], "port %d leased twice", p)
		seen[p] = true
		s.GreaterOrEqual(p, 9000)
		s.Less(p, 9010)
	}
	s.Len(seen, n)
}

func (s *ManagerSuite) TestEndRoomFreesPortForReuse() {
	first := s.create("p1", "pong")
	r1, err := s.manager.StartGame(s.ctx, first, "p1")
	s.Require().NoError(err)

	s.True(s.manager.EndRoom(first))
	s.Equal(1, s.launcher.Process(0).Terminations())
	s.Equal(0, s.manager.Pool().InUse())

	second := s.create("p2", "pong")
	r2, err := s.manager.StartGame(s.ctx, second, "p2")
	s.Require().NoError(err)
	s.Equal(r1.Port, r2.Port)
}

func (s *ManagerSuite) TestEndRoomIsIdempotent() {
	id := s.create("p1", "pong")
	_, err := s.manager.StartGame(s.ctx, id, "p1")
	s.Require().NoError(err)

	other := s.create("p2", "pong")
	_, err = s.manager.StartGame(s.ctx, other, "p2")
	s.Require().NoError(err)

	s.True(s.manager.EndRoom(id))
	s.False(s.manager.EndRoom(id))

	s.Equal(1, s.launcher.Process(0).Terminations())
	// The other room's lease survives the repeated end
	s.Equal(1, s.manager.Pool().InUse())
}

func (s *ManagerSuite) TestEndRoomAs() {
	id := s.create("p1", "pong")
	s.Require().NoError(s.manager.JoinRoom(id, "p2"))

	s.ErrorIs(s.manager.EndRoomAs(id, "p2"), model.ErrNotHost)
	s.Require().NoError(s.manager.EndRoomAs(id, "p1"))
	s.ErrorIs(s.manager.EndRoomAs(id, "p1"), model.ErrRoomNotFound)
}

func (s *ManagerSuite) TestHandleDisconnectCascade() {
	r1 := s.create("alice", "pong")
	r2 := s.create("alice", "chess")
	_, err := s.manager.StartGame(s.ctx, r2, "alice")
	s.Require().NoError(err)

	r3 := s.create("bob", "pong")
	s.Require().NoError(s.manager.JoinRoom(r3, "alice"))

	ended := s.manager.HandleDisconnect("alice")
	s.ElementsMatch([]string{r1, r2}, ended)

	_, err = s.manager.GetRoom(r1)
	s.ErrorIs(err, model.ErrRoomNotFound)
	_, err = s.manager.GetRoom(r2)
	s.ErrorIs(err, model.ErrRoomNotFound)
	s.Equal(0, s.manager.Pool().InUse())
	s.Equal(1, s.launcher.Process(0).Terminations())

	room, err := s.manager.GetRoom(r3)
	s.Require().NoError(err)
	s.Equal([]string{"bob"}, room.Participants)
}

func (s *ManagerSuite) TestHandleDisconnectWithNoRooms() {
	s.Empty(s.manager.HandleDisconnect("nobody"))
}

func (s *ManagerSuite) TestLaunchDoesNotHoldLock() {
	s.launcher.gate = make(chan struct{})
	s.launcher.entered = make(chan struct{}, 1)

	id := s.create("p1", "pong")
	other := s.create("p2", "pong")

	done := make(chan error, 1)
	go func() {
		_, err := s.manager.StartGame(s.ctx, id, "p1")
		done <- err
	}()
	<-s.launcher.entered

	// Other room operations proceed while the launch is in flight
	s.Require().NoError(s.manager.JoinRoom(other, "p3"))
	s.Len(s.manager.ListRooms(), 2)

	_, err := s.manager.StartGame(s.ctx, id, "p1")
	s.ErrorIs(err, model.ErrStartInProgress)

	close(s.launcher.gate)
	s.Require().NoError(<-done)
}

func (s *ManagerSuite) TestHostLeavesDuringLaunch() {
	s.launcher.gate = make(chan struct{})
	s.launcher.entered = make(chan struct{}, 1)

	id := s.create("p1", "pong")

	done := make(chan error, 1)
	go func() {
		_, err := s.manager.StartGame(s.ctx, id, "p1")
		done <- err
	}()
	<-s.launcher.entered

	s.Equal([]string{id}, s.manager.HandleDisconnect("p1"))
	close(s.launcher.gate)

	s.ErrorIs(<-done, model.ErrRoomNotFound)
	s.Equal(1, s.launcher.Process(0).Terminations())
	s.Equal(0, s.manager.Pool().InUse())
}

func (s *ManagerSuite) TestCloseEndsAllRooms() {
	for i := range 3 {
		id := s.create(fmt.Sprintf("p%d", i), "pong")
		_, err := s.manager.StartGame(s.ctx, id, fmt.Sprintf("p%d", i))
		s.Require().NoError(err)
	}

	s.manager.Close()
	s.Empty(s.manager.ListRooms())
	s.Equal(0, s.manager.Pool().InUse())
	for i := range 3 {
		s.Equal(1, s.launcher.Process(i).Terminations())
	}
}

func (s *ManagerSuite) TestAdvertiseAddressOverride() {
	m := NewManager(Config{PortLow: 9000, PortHigh: 9001, AdvertiseAddress: "lobby.example", Prober: func(int) bool { return false }},
		s.games, s.launcher, mocks.NewMockClock(time.Now()), testutil.NopLogger())
	room, err := m.CreateRoom("p1", "pong")
	s.Require().NoError(err)

	result, err := m.StartGame(s.ctx, room.ID, "p1")
	s.Require().NoError(err)
	s.Equal("lobby.example", result.Address)
}

func (s *ManagerSuite) TestManifestMissingAtStart() {
	id := s.create("p1", "pong")
	delete(s.games.manifests, "pong")

	_, err := s.manager.StartGame(s.ctx, id, "p1")
	s.ErrorIs(err, model.ErrSpawnFailed)
	s.True(errors.Is(err, model.ErrPackageNotInstalled))
	s.Equal(0, s.manager.Pool().InUse())
}

func (s *ManagerSuite) TestLifecycleEvents() {
	var mu sync.Mutex
	var events []Event
	m := NewManager(Config{
		PortLow:          9000,
		PortHigh:         9005,
		AdvertiseAddress: "127.0.0.1",
		Prober:           func(int) bool { return false },
		OnEvent: func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	}, s.games, s.launcher, mocks.NewMockClock(time.Now()), testutil.NopLogger())

	room, err := m.CreateRoom("host", "pong")
	s.Require().NoError(err)
	s.Require().NoError(m.JoinRoom(room.ID, "guest"))
	result, err := m.StartGame(s.ctx, room.ID, "host")
	s.Require().NoError(err)
	s.Equal([]string{}, m.HandleDisconnect("guest"))
	s.Equal([]string{room.ID}, m.HandleDisconnect("host"))

	mu.Lock()
	defer mu.Unlock()
	types := make([]EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
		s.Equal(room.ID, e.RoomID)
		s.False(e.At.IsZero())
	}
	s.Equal([]EventType{EventCreated, EventJoined, EventStarted, EventLeft, EventEnded}, types)
	s.Equal("guest", events[1].Player)
	s.Equal(result.Port, events[2].Port)
	s.Equal(result.Port, events[4].Port)
}
