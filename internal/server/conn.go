package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/gamelobby/internal/dispatch"
	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/protocol"
)

// conn is one client connection. Reads happen only on the loop goroutine;
// writes come from the loop and from pushes and share writeMu.
type conn struct {
	srv    *Server
	id     string
	remote string
	nc     net.Conn
	r      *bufio.Reader

	writeMu sync.Mutex

	identMu    sync.Mutex
	identities map[model.AccountClass]string

	closeOnce sync.Once
}

// Ensure conn implements dispatch.Peer
var _ dispatch.Peer = (*conn)(nil)

func newConn(srv *Server, nc net.Conn) *conn {
	return &conn{
		srv:        srv,
		id:         uuid.NewString(),
		remote:     nc.RemoteAddr().String(),
		nc:         nc,
		r:          bufio.NewReader(nc),
		identities: make(map[model.AccountClass]string),
	}
}

// serve is the connection loop: read one frame, dispatch it, write the response
func (c *conn) serve(ctx context.Context) {
	defer c.srv.finish(c)

	logger := c.srv.logger.With(slog.String("conn", c.id))
	logger.Info("connection accepted", slog.String("remote", c.remote))

	for {
		frame, err := c.readFrame()
		if err != nil {
			c.logReadError(logger, err)
			return
		}

		resp, err := c.srv.handler.Handle(ctx, c, frame)
		if err != nil {
			logger.Warn("closing connection after protocol error", slog.String("error", err.Error()))
			return
		}
		if resp.Reply == nil {
			continue
		}
		if err := c.write(resp); err != nil {
			logger.Warn("write failed", slog.String("error", err.Error()))
			return
		}
	}
}

// readFrame waits for the next request without a deadline, since a player in a
// running game may stay silent for hours. Once the first byte arrives the rest of
// the frame must follow within FrameTimeout.
func (c *conn) readFrame() ([]byte, error) {
	c.setReadDeadline(0)
	if _, err := c.r.Peek(1); err != nil {
		return nil, err
	}
	c.setReadDeadline(c.srv.config.FrameTimeout)
	return protocol.ReadFrameLimit(c.r, c.srv.config.MaxFrameBytes)
}

func (c *conn) logReadError(logger *slog.Logger, err error) {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("client closed connection")
	case errors.As(err, &ne) && ne.Timeout():
		logger.Info("connection timed out")
	case errors.Is(err, net.ErrClosed):
		logger.Debug("connection closed locally")
	default:
		logger.Warn("read failed", slog.String("error", err.Error()))
	}
}

// write sends a reply and, for downloads, the raw stream right behind it
func (c *conn) write(resp dispatch.Response) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.setWriteDeadline()
	if err := protocol.WriteMessage(c.nc, resp.Reply); err != nil {
		return err
	}
	if len(resp.Stream) > 0 {
		return protocol.WriteRaw(c.nc, resp.Stream)
	}
	return nil
}

// ID implements session.Handle
func (c *conn) ID() string {
	return c.id
}

// Push implements session.Handle. It is safe to call from any goroutine.
func (c *conn) Push(command string, payload any) error {
	data, err := json.Marshal(protocol.Push{Command: command, Payload: payload})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.setWriteDeadline()
	return protocol.WriteFrame(c.nc, data)
}

// Close implements session.Handle
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.nc.Close()
	})
	return err
}

// ReadRaw implements dispatch.Peer; the read is bounded by the transfer timeout
func (c *conn) ReadRaw(n int64) ([]byte, error) {
	c.setReadDeadline(c.srv.config.TransferTimeout)
	return protocol.ReadRaw(c.r, n)
}

// Identity implements dispatch.Peer
func (c *conn) Identity(class model.AccountClass) string {
	c.identMu.Lock()
	defer c.identMu.Unlock()
	return c.identities[class]
}

// SetIdentity implements dispatch.Peer
func (c *conn) SetIdentity(class model.AccountClass, username string) {
	c.identMu.Lock()
	defer c.identMu.Unlock()
	c.identities[class] = username
}

// ClearIdentity implements dispatch.Peer
func (c *conn) ClearIdentity(class model.AccountClass) {
	c.identMu.Lock()
	defer c.identMu.Unlock()
	delete(c.identities, class)
}

func (c *conn) setReadDeadline(d time.Duration) {
	var deadline time.Time
	if d > 0 {
		deadline = time.Now().Add(d)
	}
	_ = c.nc.SetReadDeadline(deadline)
}

// setWriteDeadline must be called with writeMu held
func (c *conn) setWriteDeadline() {
	var deadline time.Time
	if d := c.srv.config.TransferTimeout; d > 0 {
		deadline = time.Now().Add(d)
	}
	_ = c.nc.SetWriteDeadline(deadline)
}
