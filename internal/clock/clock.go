// Package clock is the time source for operation reports and audit
// timestamps. Production code uses Real; tests use a Manual clock.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// MockClock only moves when told to.
type MockClock struct {
	mu      sync.RWMutex
	current time.Time
}

// NewMockClock creates a mock clock set to t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{current: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Set moves the clock to t.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

var (
	defaultMu    sync.RWMutex
	defaultClock Clock = RealClock{}
)

// SetDefault replaces the package clock and returns a function restoring the
// previous one.
func SetDefault(c Clock) (restore func()) {
	defaultMu.Lock()
	prev := defaultClock
	defaultClock = c
	defaultMu.Unlock()
	return func() {
		defaultMu.Lock()
		defaultClock = prev
		defaultMu.Unlock()
	}
}

// Now returns the package clock's time.
func Now() time.Time {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultClock.Now()
}
