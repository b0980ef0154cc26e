package timectrl

import (
	"time"
)

// ManualClock only moves when told to. It is the clock used by tests that
// need exact entity ages.
type ManualClock struct {
	tc *TimeController
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{tc: NewTimeController(start, 0, Accelerated)}
}

func (c *ManualClock) Now() time.Time { return c.tc.Now() }

func (c *ManualClock) After(d time.Duration) <-chan time.Time { return c.tc.After(d) }

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) { c.tc.SetTime(t) }

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.tc.mu.Lock()
	t := c.tc.currentTime.Add(d)
	c.tc.mu.Unlock()
	c.tc.SetTime(t)
	return t
}

// Waiters returns the number of pending After channels.
func (c *ManualClock) Waiters() int {
	c.tc.mu.RLock()
	defer c.tc.mu.RUnlock()
	return len(c.tc.waiters)
}
