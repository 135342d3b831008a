package types

import (
	"sync"
	"time"
)

// SessionClock bounds a discussion session. The clock is created idle
// and armed by Start once the facilitator's first valid utterance has
// been fully processed, so a long initial silence does not eat into
// discussion time. Remaining is always computed on demand, never cached.
type SessionClock struct {
	mu    sync.Mutex
	start time.Time
	limit time.Duration
	now   func() time.Time
}

// NewSessionClock creates an idle clock with the given time limit.
func NewSessionClock(limit time.Duration) *SessionClock {
	return &SessionClock{limit: limit, now: time.Now}
}

// NewSessionClockAt creates a clock with an injected time source, for tests.
func NewSessionClockAt(limit time.Duration, now func() time.Time) *SessionClock {
	return &SessionClock{limit: limit, now: now}
}

// Start arms the clock. Calling Start on a running clock is a no-op.
func (c *SessionClock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.start.IsZero() {
		c.start = c.now()
	}
}

// Started reports whether the session window has opened.
func (c *SessionClock) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.start.IsZero()
}

// Remaining returns the time left in the session window. An idle clock
// reports the full limit.
func (c *SessionClock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.start.IsZero() {
		return c.limit
	}
	left := c.limit - c.now().Sub(c.start)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether the session window has closed. An idle clock
// never expires.
func (c *SessionClock) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.start.IsZero() {
		return false
	}
	return c.limit-c.now().Sub(c.start) <= 0
}

// Limit returns the configured session length.
func (c *SessionClock) Limit() time.Duration { return c.limit }
