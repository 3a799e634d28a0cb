package adapter

import (
	"sync"
	"time"
)

// secondClock coalesces wall-clock reads to one instant per second.
// All measurements recorded within the same wall-clock second carry the
// identical timestamp, giving the backend second-granularity alignment
// without materializing a new instant on every call.
type secondClock struct {
	now func() time.Time

	mu          sync.Mutex
	lastSecond  int64
	lastInstant time.Time
}

func newSecondClock(now func() time.Time) *secondClock {
	if now == nil {
		now = time.Now
	}

	return &secondClock{now: now}
}

// Instant returns the cached instant for the current second, refreshing it
// only when the second has rolled over.
func (c *secondClock) Instant() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Read the clock under the lock. Reading it first would let a caller
	// preempted across a second boundary overwrite a fresher cached
	// instant with a stale one.
	t := c.now()
	sec := t.Unix()

	if c.lastSecond != sec || c.lastInstant.IsZero() {
		c.lastInstant = t
		c.lastSecond = sec
	}

	return c.lastInstant
}
