package factory

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/gamelobby/internal/client"
	"github.com/mcoot/gamelobby/internal/config"
	"github.com/mcoot/gamelobby/internal/dependencies/mocks"
	"github.com/mcoot/gamelobby/internal/services/rooms"
	"github.com/mcoot/gamelobby/internal/storage/memory"
	"github.com/mcoot/gamelobby/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock    *mocks.MockClock
	MemStorage   *memory.Storage
	GameServers  *ListenLauncher
	t            testing.TB
	serveResults chan error
}

// TestSettings returns settings suited to an in-process server: memory
// storage, an ephemeral listen port, data under dataDir, admin API off
func TestSettings(dataDir string) *config.Config {
	return &config.Config{
		ListenAddr:       "127.0.0.1:0",
		DataDir:          dataDir,
		StorageType:      config.StorageTypeMemory,
		PortLow:          39100,
		PortHigh:         39200,
		AdvertiseAddress: "127.0.0.1",
		FrameTimeout:     time.Minute,
		TransferTimeout:  10 * time.Second,
		BcryptCost:       bcrypt.MinCost,
		LogLevel:         "error",
		PythonInterp:     "python3",
	}
}

// NewTestApp creates an App with mocked dependencies and starts its lobby
// server on an ephemeral port. Everything is shut down when the test ends.
func NewTestApp(t testing.TB) *TestApp {
	t.Helper()
	return NewTestAppWithSettings(t, TestSettings(t.TempDir()))
}

// NewTestAppWithSettings is NewTestApp with caller-supplied settings
func NewTestAppWithSettings(t testing.TB, settings *config.Config) *TestApp {
	t.Helper()

	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	launcher := NewListenLauncher()

	app, err := newWithDependencies(context.Background(), settings, store, mockClock, launcher, nil, testutil.NopLogger())
	require.NoError(t, err)

	ta := &TestApp{
		App:          app,
		MockClock:    mockClock,
		MemStorage:   store,
		GameServers:  launcher,
		t:            t,
		serveResults: make(chan error, 1),
	}

	require.NoError(t, app.Server.Listen(context.Background()))
	go func() { ta.serveResults <- app.Server.Start(context.Background()) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, app.Shutdown(ctx))
		require.NoError(t, <-ta.serveResults)
	})
	return ta
}

// Dial opens a client connection to the lobby server
func (ta *TestApp) Dial() *client.Client {
	ta.t.Helper()
	c, err := client.Dial(context.Background(), ta.Server.Addr(), client.WithTimeout(10*time.Second))
	require.NoError(ta.t, err)
	ta.t.Cleanup(func() { _ = c.Close() })
	return c
}

// ListenLauncher stands in for a game server: it listens on the leased port
// and accepts connections until terminated
type ListenLauncher struct {
	mu       sync.Mutex
	launched []rooms.LaunchSpec
	running  map[int]*listenProcess
}

// NewListenLauncher creates a launcher with no running servers
func NewListenLauncher() *ListenLauncher {
	return &ListenLauncher{running: make(map[int]*listenProcess)}
}

var _ rooms.Launcher = (*ListenLauncher)(nil)

// Launch implements rooms.Launcher
func (l *ListenLauncher) Launch(ctx context.Context, spec rooms.LaunchSpec) (rooms.Process, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(spec.Port)))
	if err != nil {
		return nil, err
	}
	p := &listenProcess{ln: ln, done: make(chan struct{}), owner: l, port: spec.Port}
	go p.serve()

	l.mu.Lock()
	l.launched = append(l.launched, spec)
	l.running[spec.Port] = p
	l.mu.Unlock()
	return p, nil
}

// Launched returns every spec launched so far
func (l *ListenLauncher) Launched() []rooms.LaunchSpec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]rooms.LaunchSpec(nil), l.launched...)
}

// Running returns the number of live game servers
func (l *ListenLauncher) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.running)
}

type listenProcess struct {
	ln    net.Listener
	done  chan struct{}
	once  sync.Once
	owner *ListenLauncher
	port  int
}

func (p *listenProcess) serve() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		_ = conn.Close()
	}
}

func (p *listenProcess) PID() int { return p.port }

func (p *listenProcess) Done() <-chan struct{} { return p.done }

func (p *listenProcess) Terminate() error {
	p.once.Do(func() {
		_ = p.ln.Close()
		p.owner.mu.Lock()
		delete(p.owner.running, p.port)
		p.owner.mu.Unlock()
		close(p.done)
	})
	return nil
}
