package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mcoot/gamelobby/internal/dispatch"
)

// Config holds configuration for the lobby TCP server
type Config struct {
	ListenAddr string
	// FrameTimeout bounds a request frame once its first byte has arrived; 0 disables it
	FrameTimeout time.Duration
	// TransferTimeout bounds raw archive reads and every write; 0 disables it
	TransferTimeout time.Duration
	// MaxFrameBytes rejects larger request frames as a protocol error; 0 means unlimited
	MaxFrameBytes int64
}

// DefaultConfig returns sensible defaults for server configuration
func DefaultConfig() Config {
	return Config{
		ListenAddr:      "0.0.0.0:8888",
		FrameTimeout:    time.Minute,
		TransferTimeout: 2 * time.Minute,
	}
}

// CloseFunc runs once for every connection after its loop ends
type CloseFunc func(peer dispatch.Peer)

// Server accepts lobby connections and runs one connection loop per client
type Server struct {
	config  Config
	handler dispatch.Handler
	onClose CloseFunc
	logger  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[*conn]struct{}
	closing  bool

	wg sync.WaitGroup
}

// New creates a server. onClose may be nil.
func New(config Config, handler dispatch.Handler, onClose CloseFunc, logger *slog.Logger) *Server {
	if onClose == nil {
		onClose = func(dispatch.Peer) {}
	}
	return &Server{
		config:  config,
		handler: handler,
		onClose: onClose,
		logger:  logger.With(slog.String("component", "server")),
		conns:   make(map[*conn]struct{}),
	}
}

// Listen binds the listen address without accepting connections yet
func (s *Server) Listen(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.ListenAddr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		_ = ln.Close()
		return net.ErrClosed
	}
	s.listener = ln
	s.logger.Info("lobby server listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Start listens (unless Listen was already called) and serves until Shutdown
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	listening := s.listener != nil
	s.mu.Unlock()

	if !listening {
		if err := s.Listen(ctx); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
	return s.serve(ctx)
}

func (s *Server) serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isClosing() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, time.Second)
			}
			s.logger.Warn("accept failed", slog.String("error", err.Error()), slog.Duration("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		c := newConn(s, nc)
		if !s.track(c) {
			_ = nc.Close()
			return nil
		}
		go c.serve(ctx)
	}
}

// track registers a live connection; it fails once shutdown has begun
func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

// finish is the single exit point of a connection loop
func (s *Server) finish(c *conn) {
	_ = c.Close()

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()

	s.onClose(c)
	s.logger.Info("connection closed", slog.String("conn", c.id), slog.String("remote", c.remote))
	s.wg.Done()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Shutdown stops accepting, closes live connections and waits for their
// cleanup to finish or ctx to expire
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down lobby server")

	s.mu.Lock()
	s.closing = true
	ln := s.listener
	live := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		live = append(live, c)
	}
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range live {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("lobby server stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown error: %w", ctx.Err())
	}
}

// Addr returns the bound address once listening, else the configured one
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.ListenAddr
}

// ConnCount returns the number of live connections
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
