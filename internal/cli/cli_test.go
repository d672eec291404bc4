package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamelobby/internal/factory"
	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/protocol"
	"github.com/mcoot/gamelobby/internal/testutil"
)

type CLISuite struct {
	suite.Suite
	app *factory.TestApp
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	s.app = factory.NewTestApp(s.T())
}

// run executes one CLI invocation against the test server with JSON output
func (s *CLISuite) run(stdin io.Reader, args ...string) (string, error) {
	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	if stdin == nil {
		stdin = bytes.NewReader(nil)
	}
	root.SetIn(stdin)
	root.SetArgs(append([]string{"--server", s.app.Server.Addr(), "--output", "json", "--timeout", "10s"}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return stdout.String(), err
}

func (s *CLISuite) mustRun(args ...string) string {
	out, err := s.run(nil, args...)
	s.Require().NoError(err, out)
	return out
}

// packageDir writes a game package to a temp dir
func (s *CLISuite) packageDir(name, version string, extra map[string]string) string {
	dir := s.T().TempDir()
	for rel, body := range testutil.GameFiles(s.T(), name, version, "server.py", extra) {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		s.Require().NoError(os.MkdirAll(filepath.Dir(p), 0o755))
		s.Require().NoError(os.WriteFile(p, []byte(body), 0o644))
	}
	return dir
}

func (s *CLISuite) publish(name, version string) {
	dev := []string{"--user", "dev1", "--pass", "pw"}
	_, _ = s.run(nil, append([]string{"dev", "register"}, dev...)...)
	s.mustRun(append([]string{"dev", "upload", s.packageDir(name, version, nil)}, dev...)...)
}

func decodeJSON[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func (s *CLISuite) TestPublisherFlow() {
	dev := []string{"--user", "dev1", "--pass", "pw"}
	s.mustRun(append([]string{"dev", "register"}, dev...)...)

	login := decodeJSON[LoginResult](s.T(), s.mustRun(append([]string{"dev", "login"}, dev...)...))
	s.Equal("dev1", login.Token)
	s.Equal("publisher", login.Class)

	out := s.mustRun(append([]string{"dev", "upload", s.packageDir("Pong", "1.0.0", nil)}, dev...)...)
	rec := decodeJSON[model.GameRecord](s.T(), out)
	s.Equal(model.GameID("pong"), rec.GameID)
	s.Equal("dev1", rec.Owner)
	s.Equal("Pong test package", rec.Description)

	out = s.mustRun(append([]string{"dev", "upload", s.packageDir("Pong", "1.0.0", nil), "--version", "1.1.0"}, dev...)...)
	rec = decodeJSON[model.GameRecord](s.T(), out)
	s.Equal([]string{"1.0.0", "1.1.0"}, rec.VersionHistory)

	mine := decodeJSON[[]*model.GameRecord](s.T(), s.mustRun(append([]string{"dev", "list"}, dev...)...))
	s.Require().Len(mine, 1)
	s.Equal("1.1.0", mine[0].CurrentVersion)

	listed := decodeJSON[[]*model.GameRecord](s.T(), s.mustRun("store", "list"))
	s.Len(listed, 1)

	detail := decodeJSON[model.GameRecord](s.T(), s.mustRun("store", "detail", "pong"))
	s.Equal("Pong", detail.Name)

	s.mustRun(append([]string{"dev", "delete", "pong"}, dev...)...)
	_, err := s.run(nil, "store", "detail", "pong")
	s.ErrorContains(err, "Game not found")
}

func (s *CLISuite) TestDuplicateRegisterFails() {
	args := []string{"player", "register", "--user", "p1", "--pass", "pw"}
	s.mustRun(args...)
	_, err := s.run(nil, args...)
	s.ErrorContains(err, "Username already exists")
}

func (s *CLISuite) TestCredentialsRequired() {
	_, err := s.run(nil, "dev", "list")
	s.ErrorContains(err, "--user and --pass are required")
}

func (s *CLISuite) TestDownloadExtracts() {
	dev := []string{"--user", "dev1", "--pass", "pw"}
	s.mustRun(append([]string{"dev", "register"}, dev...)...)
	dir := s.packageDir("Pong", "2.0.0", map[string]string{"assets/ball.txt": "o"})
	s.mustRun(append([]string{"dev", "upload", dir}, dev...)...)

	player := []string{"--user", "p1", "--pass", "pw"}
	s.mustRun(append([]string{"player", "register"}, player...)...)

	dest := filepath.Join(s.T().TempDir(), "pong")
	out := s.mustRun(append([]string{"store", "download", "pong", "--dest", dest}, player...)...)
	res := decodeJSON[DownloadResult](s.T(), out)
	s.Equal("2.0.0", res.Version)
	s.Contains(res.Files, "assets/ball.txt")

	ball, err := os.ReadFile(filepath.Join(dest, "assets", "ball.txt"))
	s.Require().NoError(err)
	s.Equal("o", string(ball))
	_, err = os.Stat(filepath.Join(dest, model.ManifestFile))
	s.NoError(err)
}

func (s *CLISuite) TestRate() {
	s.publish("Pong", "1.0.0")
	player := []string{"--user", "p1", "--pass", "pw"}
	s.mustRun(append([]string{"player", "register"}, player...)...)

	_, err := s.run(nil, append([]string{"rate", "pong", "--rating", "9"}, player...)...)
	s.ErrorContains(err, "Rating must be between 1 and 5")

	s.mustRun(append([]string{"rate", "pong", "--rating", "4", "--comment", "fun"}, player...)...)
	detail := decodeJSON[model.GameRecord](s.T(), s.mustRun("store", "detail", "pong"))
	s.Require().Len(detail.Reviews, 1)
	s.Equal("p1", detail.Reviews[0].Reviewer)
	s.Equal(4, detail.Reviews[0].Rating)
}

func (s *CLISuite) TestHostAndJoin() {
	s.publish("Pong", "1.0.0")
	s.mustRun("player", "register", "--user", "host", "--pass", "pw")

	stdin, stdinW := io.Pipe()
	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := s.run(stdin, "room", "create", "pong", "--start-at", "2", "--poll", "20ms", "--user", "host", "--pass", "pw")
		done <- result{out, err}
	}()

	var roomID string
	s.Require().Eventually(func() bool {
		rooms := s.app.Rooms.ListRooms()
		if len(rooms) == 0 {
			return false
		}
		roomID = rooms[0].ID
		return true
	}, 5*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	guest := s.app.Dial()
	s.Require().NoError(guest.Register(ctx, model.ClassPlayer, "guest", "pw"))
	_, err := guest.Login(ctx, model.ClassPlayer, "guest", "pw")
	s.Require().NoError(err)
	s.Require().NoError(guest.JoinRoom(ctx, roomID))

	start, err := guest.WaitGameStart(ctx)
	s.Require().NoError(err)
	s.Equal("127.0.0.1", start.Address)

	online, err := guest.OnlinePlayers(ctx)
	s.Require().NoError(err)
	s.Equal([]string{"guest", "host"}, online)

	_, err = io.WriteString(stdinW, "end\n")
	s.Require().NoError(err)

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		s.FailNow("room create did not exit")
	}
	s.Require().NoError(res.err)
	_ = stdinW.Close()

	dec := json.NewDecoder(bytes.NewReader([]byte(res.out)))
	var created RoomCreated
	s.Require().NoError(dec.Decode(&created))
	s.Equal(roomID, created.RoomID)
	var hostStart protocol.GameStart
	s.Require().NoError(dec.Decode(&hostStart))
	s.Equal(start, hostStart)
	var msg map[string]string
	s.Require().NoError(dec.Decode(&msg))
	s.Equal("Room "+roomID+" ended", msg["message"])

	s.Empty(s.app.Rooms.ListRooms())
}

func (s *CLISuite) TestPlayersOnline() {
	players := decodeJSON[PlayerList](s.T(), s.mustRun("players", "online"))
	s.Empty(players.Players)

	ctx := context.Background()
	c := s.app.Dial()
	s.Require().NoError(c.Register(ctx, model.ClassPlayer, "p1", "pw"))
	_, err := c.Login(ctx, model.ClassPlayer, "p1", "pw")
	s.Require().NoError(err)

	players = decodeJSON[PlayerList](s.T(), s.mustRun("players", "online"))
	s.Equal([]string{"p1"}, players.Players)
}

func (s *CLISuite) TestJoinUnknownRoom() {
	s.mustRun("player", "register", "--user", "p1", "--pass", "pw")
	_, err := s.run(nil, "room", "join", "42", "--user", "p1", "--pass", "pw")
	s.ErrorContains(err, "Room not found")
}

func (s *CLISuite) TestRejectsUnknownOutputFormat() {
	_, err := s.run(nil, "store", "list", "--output", "yaml")
	s.ErrorContains(err, "unknown output format")
}

func TestArchiveRoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "config.json"), []byte(`{"name":"Pong","version":"1","max_players":2}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "lib", "util.py"), []byte("x = 1\n"), 0o644))

	meta, err := readPackageMeta(src)
	require.NoError(t, err)
	assert.Equal(t, "Pong", meta.Name)
	assert.Equal(t, float64(2), meta.Extra["max_players"])

	archive, err := zipDir(src)
	require.NoError(t, err)

	dest := t.TempDir()
	files, err := extractArchive(archive, dest)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"config.json", "lib/util.py"}, files)

	data, err := os.ReadFile(filepath.Join(dest, "lib", "util.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(data))
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	archive := testutil.ZipFiles(t, map[string]string{"../evil.sh": "rm -rf"})
	_, err := extractArchive(archive, t.TempDir())
	assert.ErrorContains(t, err, "escapes")
}
