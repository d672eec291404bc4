package rooms

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/mcoot/gamelobby/internal/model"
)

// DefaultProbeTimeout bounds the connect attempt used to detect a bound port
const DefaultProbeTimeout = 200 * time.Millisecond

// Prober reports whether something on this host is already listening on port
type Prober func(port int) bool

// DialProber probes by attempting a TCP connect to localhost:port
func DialProber(timeout time.Duration) Prober {
	return func(port int) bool {
		conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)), timeout)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}

// PortPool leases ports from [low, high) to at most one room at a time
type PortPool struct {
	low, high int
	probe     Prober

	mu     sync.Mutex
	leased map[int]bool
}

// NewPortPool creates a pool over [low, high)
func NewPortPool(low, high int, probe Prober) *PortPool {
	if probe == nil {
		probe = DialProber(DefaultProbeTimeout)
	}
	return &PortPool{
		low:    low,
		high:   high,
		probe:  probe,
		leased: make(map[int]bool),
	}
}

// Lease returns the lowest port that is neither leased nor bound on the host
func (p *PortPool) Lease() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for port := p.low; port < p.high; port++ {
		if p.leased[port] {
			continue
		}
		if p.probe(port) {
			continue
		}
		p.leased[port] = true
		return port, nil
	}
	return 0, model.ErrNoPortAvailable
}

// Release returns port to the pool, reporting whether it was leased
func (p *PortPool) Release(port int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.leased[port] {
		return false
	}
	delete(p.leased, port)
	return true
}

// InUse returns the number of leased ports
func (p *PortPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leased)
}

// Range returns the pool bounds, high exclusive
func (p *PortPool) Range() (low, high int) {
	return p.low, p.high
}
