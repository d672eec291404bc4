package session

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Handle is a live connection a player session is bound to
type Handle interface {
	// ID identifies the connection
	ID() string
	// Push sends an unsolicited notification frame
	Push(command string, payload any) error
	// Close closes the connection
	Close() error
}

// Registry maps usernames to their live connection, at most one per username.
// It has its own lock, separate from the catalog and room locks.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]Handle
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With(slog.String("component", "sessions")),
		sessions: make(map[string]Handle),
	}
}

// Bind associates username with h and returns the handle it replaced, if any
func (r *Registry) Bind(username string, h Handle) Handle {
	r.mu.Lock()
	prev := r.sessions[username]
	r.sessions[username] = h
	r.mu.Unlock()

	if prev != nil && prev.ID() == h.ID() {
		return nil
	}
	r.logger.Debug("session bound",
		slog.String("username", username),
		slog.String("conn", h.ID()),
		slog.Bool("replaced", prev != nil),
	)
	return prev
}

// Unbind removes username unconditionally
func (r *Registry) Unbind(username string) {
	r.mu.Lock()
	delete(r.sessions, username)
	r.mu.Unlock()
}

// UnbindIf removes username only while it is still bound to h.
// It reports whether the binding was removed.
func (r *Registry) UnbindIf(username string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[username]
	if !ok || cur.ID() != h.ID() {
		return false
	}
	delete(r.sessions, username)
	return true
}

// Lookup returns the handle bound to username
func (r *Registry) Lookup(username string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[username]
	return h, ok
}

// ListOnline returns the bound usernames in sorted order
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.sessions))
}

// Count returns the number of bound sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
