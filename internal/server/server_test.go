package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamelobby/internal/dispatch"
	"github.com/mcoot/gamelobby/internal/protocol"
	"github.com/mcoot/gamelobby/internal/testutil"
)

// testHandler implements a few toy commands over the real connection loop
func testHandler() dispatch.Handler {
	return dispatch.HandlerFunc(func(ctx context.Context, peer dispatch.Peer, frame []byte) (dispatch.Response, error) {
		req, err := protocol.DecodeRequest(frame)
		if err != nil {
			return dispatch.Response{}, err
		}
		switch req.Command {
		case "ECHO":
			return dispatch.Response{Reply: &protocol.Reply{Status: protocol.StatusOK, Payload: req.Payload}}, nil
		case "STREAM":
			data := []byte("raw archive bytes")
			return dispatch.Response{
				Reply:  &protocol.Reply{Status: protocol.StatusOK, FileSize: int64(len(data))},
				Stream: data,
			}, nil
		case "RAW":
			var n int64
			if err := json.Unmarshal(req.Payload, &n); err != nil {
				return dispatch.Response{}, err
			}
			data, err := peer.ReadRaw(n)
			if err != nil {
				return dispatch.Response{}, err
			}
			return dispatch.Response{Reply: protocol.OKReply(string(data))}, nil
		case "PUSH_ME":
			if err := peer.Push("NOTE", map[string]string{"hello": "world"}); err != nil {
				return dispatch.Response{}, err
			}
			return dispatch.Response{Reply: protocol.OKReply("pushed")}, nil
		default:
			return dispatch.Response{}, errors.New("unknown")
		}
	})
}

type ServerSuite struct {
	suite.Suite
	srv    *Server
	ctx    context.Context
	cancel context.CancelFunc
	served chan error

	closedMu sync.Mutex
	closed   []string
	closedCh chan string
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.start(Config{ListenAddr: "127.0.0.1:0", TransferTimeout: 5 * time.Second})
}

func (s *ServerSuite) start(cfg Config) {
	s.closed = nil
	s.closedCh = make(chan string, 16)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.srv = New(cfg, testHandler(), func(peer dispatch.Peer) {
		s.closedMu.Lock()
		s.closed = append(s.closed, peer.ID())
		s.closedMu.Unlock()
		s.closedCh <- peer.ID()
	}, testutil.NopLogger())
	s.Require().NoError(s.srv.Listen(s.ctx))

	s.served = make(chan error, 1)
	go func() { s.served <- s.srv.Start(s.ctx) }()
}

func (s *ServerSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.srv.Shutdown(ctx))
	s.Require().NoError(<-s.served)
	s.cancel()
}

func (s *ServerSuite) restart(cfg Config) {
	s.TearDownTest()
	s.start(cfg)
}

func (s *ServerSuite) dial() net.Conn {
	nc, err := net.Dial("tcp", s.srv.Addr())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = nc.Close() })
	_ = nc.SetDeadline(time.Now().Add(5 * time.Second))
	return nc
}

func (s *ServerSuite) send(nc net.Conn, command string, payload any) {
	raw, err := json.Marshal(payload)
	s.Require().NoError(err)
	s.Require().NoError(protocol.WriteMessage(nc, protocol.Request{Command: command, Payload: raw}))
}

func (s *ServerSuite) recv(nc net.Conn) *protocol.Inbound {
	body, err := protocol.ReadFrame(nc)
	s.Require().NoError(err)
	in, err := protocol.DecodeInbound(body)
	s.Require().NoError(err)
	return in
}

func (s *ServerSuite) waitClosed() string {
	select {
	case id := <-s.closedCh:
		return id
	case <-time.After(5 * time.Second):
		s.FailNow("connection cleanup did not run")
		return ""
	}
}

func (s *ServerSuite) TestRequestReply() {
	nc := s.dial()
	s.send(nc, "ECHO", map[string]int{"n": 1})
	in := s.recv(nc)
	s.True(in.OK())
	s.JSONEq(`{"n":1}`, string(in.Payload))

	// The loop keeps serving the same connection
	s.send(nc, "ECHO", map[string]int{"n": 2})
	s.JSONEq(`{"n":2}`, string(s.recv(nc).Payload))
}

func (s *ServerSuite) TestStreamFollowsReply() {
	nc := s.dial()
	s.send(nc, "STREAM", nil)
	in := s.recv(nc)
	s.Require().True(in.OK())

	raw, err := protocol.ReadRaw(nc, in.FileSize)
	s.Require().NoError(err)
	s.Equal("raw archive bytes", string(raw))

	s.send(nc, "ECHO", "after")
	s.JSONEq(`"after"`, string(s.recv(nc).Payload))
}

func (s *ServerSuite) TestRawUploadIsRead() {
	nc := s.dial()
	s.send(nc, "RAW", 5)
	s.Require().NoError(protocol.WriteRaw(nc, []byte("hello")))
	s.Equal("hello", s.recv(nc).Message)
}

func (s *ServerSuite) TestPushIsFramed() {
	nc := s.dial()
	s.send(nc, "PUSH_ME", nil)

	push := s.recv(nc)
	s.Require().True(push.IsPush())
	s.Equal("NOTE", push.Command)

	reply := s.recv(nc)
	s.False(reply.IsPush())
	s.Equal("pushed", reply.Message)
}

func (s *ServerSuite) TestProtocolErrorClosesConnection() {
	nc := s.dial()
	s.Require().NoError(protocol.WriteFrame(nc, []byte("{not json")))

	_, err := protocol.ReadFrame(nc)
	s.ErrorIs(err, io.EOF)
	s.waitClosed()
}

func (s *ServerSuite) TestCleanupRunsOncePerConnection() {
	nc := s.dial()
	s.send(nc, "ECHO", 1)
	s.recv(nc)
	s.Require().NoError(nc.Close())

	id := s.waitClosed()
	s.NotEmpty(id)
	s.Eventually(func() bool { return s.srv.ConnCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	s.Equal([]string{id}, s.closed)
}

func (s *ServerSuite) TestTruncatedFrameClosesConnection() {
	nc := s.dial()
	_, err := nc.Write([]byte{0, 0, 0, 10, '{'})
	s.Require().NoError(err)
	s.Require().NoError(nc.(*net.TCPConn).CloseWrite())
	s.waitClosed()
}

func (s *ServerSuite) TestConcurrentPushesDoNotInterleave() {
	nc := s.dial()
	s.send(nc, "ECHO", 0)
	s.recv(nc)

	s.Eventually(func() bool { return s.srv.ConnCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	var peer *conn
	s.srv.mu.Lock()
	for c := range s.srv.conns {
		peer = c
	}
	s.srv.mu.Unlock()

	const pushes = 50
	var wg sync.WaitGroup
	for i := range pushes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = peer.Push("NOTE", map[string]string{"i": strconv.Itoa(i)})
		}()
	}
	for i := range pushes {
		s.send(nc, "ECHO", i)
	}

	var gotPushes, gotReplies int
	for gotPushes+gotReplies < 2*pushes {
		in := s.recv(nc)
		if in.IsPush() {
			gotPushes++
		} else {
			s.True(in.OK())
			gotReplies++
		}
	}
	wg.Wait()
	s.Equal(pushes, gotPushes)
	s.Equal(pushes, gotReplies)
}

func (s *ServerSuite) TestQuietConnectionStaysOpen() {
	s.restart(Config{ListenAddr: "127.0.0.1:0", FrameTimeout: 100 * time.Millisecond})

	nc := s.dial()
	time.Sleep(400 * time.Millisecond)
	s.Equal(1, s.srv.ConnCount())

	s.send(nc, "ECHO", "still here")
	in := s.recv(nc)
	s.True(in.OK())
}

func (s *ServerSuite) TestStalledFrameClosesConnection() {
	s.restart(Config{ListenAddr: "127.0.0.1:0", FrameTimeout: 100 * time.Millisecond})

	nc := s.dial()
	_, err := nc.Write([]byte{0, 0})
	s.Require().NoError(err)

	s.waitClosed()
	_, err = protocol.ReadFrame(nc)
	s.Error(err)
}

func (s *ServerSuite) TestOversizedTransferClaimIsSurvivable() {
	nc := s.dial()
	s.send(nc, "RAW", int64(1)<<45)
	_, err := nc.Write([]byte("x"))
	s.Require().NoError(err)
	s.Require().NoError(nc.Close())
	s.waitClosed()

	other := s.dial()
	s.send(other, "ECHO", "ok")
	s.True(s.recv(other).OK())
}

func (s *ServerSuite) TestMaxFrameBytes() {
	s.restart(Config{ListenAddr: "127.0.0.1:0", MaxFrameBytes: 16})

	nc := s.dial()
	s.send(nc, "ECHO", "this payload is longer than sixteen bytes")
	s.waitClosed()
}

func (s *ServerSuite) TestShutdownClosesLiveConnections() {
	nc := s.dial()
	s.send(nc, "ECHO", 1)
	s.recv(nc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.srv.Shutdown(ctx))
	s.waitClosed()

	_, err := protocol.ReadFrame(nc)
	s.Error(err)
	s.Equal(0, s.srv.ConnCount())
}
