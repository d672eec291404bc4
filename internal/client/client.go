// Package client speaks the lobby wire protocol over one TCP connection.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mcoot/gamelobby/internal/protocol"
)

// DefaultTimeout bounds a request when its context carries no deadline
const DefaultTimeout = 30 * time.Second

// ReplyError is an ERROR reply from the server
type ReplyError struct {
	Command string
	Message string
}

// Error implements error interface
func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// IsReplyError reports whether err is an ERROR reply with the given message
func IsReplyError(err error, message string) bool {
	var re *ReplyError
	return errors.As(err, &re) && re.Message == message
}

// Client is a lobby connection. Requests are serialized; pushes that arrive
// while waiting for a reply are queued for WaitPush.
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration

	// mu is held for a whole request/reply exchange
	mu sync.Mutex

	pushMu sync.Mutex
	pushes []*protocol.Inbound

	identMu    sync.Mutex
	identities map[string]string
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the fallback per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Dial connects to a lobby server
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	return newClient(conn, opts...), nil
}

func newClient(conn net.Conn, opts ...Option) *Client {
	c := &Client{
		conn:       conn,
		r:          bufio.NewReader(conn),
		timeout:    DefaultTimeout,
		identities: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends one request and returns its reply, whatever its status
func (c *Client) Do(ctx context.Context, command string, payload any) (*protocol.Inbound, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setDeadline(ctx)
	if err := c.send(command, payload); err != nil {
		return nil, err
	}
	return c.readReply()
}

// Call sends one request, turns an ERROR reply into a *ReplyError and
// decodes the reply payload into out when out is non-nil
func (c *Client) Call(ctx context.Context, command string, payload, out any) (*protocol.Inbound, error) {
	reply, err := c.Do(ctx, command, payload)
	if err != nil {
		return nil, err
	}
	if err := checkReply(command, reply, out); err != nil {
		return reply, err
	}
	return reply, nil
}

// UploadRaw sends a GAME_UPLOAD request followed by the archive bytes
func (c *Client) UploadRaw(ctx context.Context, payload protocol.UploadPayload, archive []byte) (*protocol.Inbound, error) {
	payload.FileSize = int64(len(archive))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.setDeadline(ctx)
	if err := c.send(protocol.CmdGameUpload, payload); err != nil {
		return nil, err
	}
	if err := protocol.WriteRaw(c.conn, archive); err != nil {
		return nil, err
	}
	return c.readReply()
}

// DownloadRaw sends GAME_DOWNLOAD and reads the archive that follows an OK reply
func (c *Client) DownloadRaw(ctx context.Context, payload protocol.GamePayload) (*protocol.Inbound, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setDeadline(ctx)
	if err := c.send(protocol.CmdGameDownload, payload); err != nil {
		return nil, nil, err
	}
	reply, err := c.readReply()
	if err != nil {
		return nil, nil, err
	}
	if !reply.OK() {
		return reply, nil, nil
	}
	archive, err := protocol.ReadRaw(c.r, reply.FileSize)
	if err != nil {
		return reply, nil, err
	}
	return reply, archive, nil
}

// WaitPush returns the next push with the given command, reading from the
// connection if none is queued. Other pushes stay queued.
func (c *Client) WaitPush(ctx context.Context, command string) (*protocol.Inbound, error) {
	if p := c.takePush(command); p != nil {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have read it while we waited for the lock
	if p := c.takePush(command); p != nil {
		return p, nil
	}

	c.setDeadline(ctx)
	// Cancellation unblocks the read by expiring the deadline
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()
	for {
		in, err := c.readInbound()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if !in.IsPush() {
			return nil, fmt.Errorf("%w: unexpected reply while waiting for %s", protocol.ErrMalformed, command)
		}
		if in.Command == command {
			return in, nil
		}
		c.queuePush(in)
	}
}

// Pushes drains and returns every queued push
func (c *Client) Pushes() []*protocol.Inbound {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	out := c.pushes
	c.pushes = nil
	return out
}

func (c *Client) send(command string, payload any) error {
	req := protocol.Request{Command: command}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", command, err)
		}
		req.Payload = raw
	}
	return protocol.WriteMessage(c.conn, req)
}

// readReply skips and queues pushes until the reply arrives
func (c *Client) readReply() (*protocol.Inbound, error) {
	for {
		in, err := c.readInbound()
		if err != nil {
			return nil, err
		}
		if !in.IsPush() {
			return in, nil
		}
		c.queuePush(in)
	}
}

func (c *Client) readInbound() (*protocol.Inbound, error) {
	body, err := protocol.ReadFrame(c.r)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeInbound(body)
}

func (c *Client) queuePush(in *protocol.Inbound) {
	c.pushMu.Lock()
	c.pushes = append(c.pushes, in)
	c.pushMu.Unlock()
}

func (c *Client) takePush(command string) *protocol.Inbound {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	for i, p := range c.pushes {
		if p.Command == command {
			c.pushes = append(c.pushes[:i], c.pushes[i+1:]...)
			return p
		}
	}
	return nil
}

func (c *Client) setDeadline(ctx context.Context) {
	deadline, ok := ctx.Deadline()
	if !ok && c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	_ = c.conn.SetDeadline(deadline)
}

func checkReply(command string, reply *protocol.Inbound, out any) error {
	if !reply.OK() {
		return &ReplyError{Command: command, Message: reply.Message}
	}
	if out != nil && len(reply.Payload) > 0 {
		if err := reply.DecodePayload(out); err != nil {
			return fmt.Errorf("decode %s reply: %w", command, err)
		}
	}
	return nil
}
