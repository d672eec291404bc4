package clock

import "time"

// Clock provides the current time; swapped for a mock in tests so
// timestamps on accounts, games, reviews and rooms are deterministic
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock
type RealClock struct{}

// New creates a new RealClock
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current time in UTC
func (c *RealClock) Now() time.Time {
	return time.Now().UTC()
}
