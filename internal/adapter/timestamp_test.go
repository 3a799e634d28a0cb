package adapter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecondClock_CoalescesWithinSecond(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 100_000_000, time.UTC)
	now := base

	c := newSecondClock(func() time.Time { return now })

	first := c.Instant()

	// Later in the same wall-clock second: same cached instant, not a
	// fresh read.
	now = base.Add(700 * time.Millisecond)
	second := c.Instant()

	assert.True(t, first.Equal(second))
	assert.Equal(t, first, second)
}

func TestSecondClock_RefreshesOnSecondRollover(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 900_000_000, time.UTC)
	now := base

	c := newSecondClock(func() time.Time { return now })

	first := c.Instant()

	now = base.Add(200 * time.Millisecond) // crosses into the next second
	second := c.Instant()

	assert.False(t, first.Equal(second))
	assert.Equal(t, now, second)
}

func TestSecondClock_ConcurrentCallersAgreeWithinSecond(t *testing.T) {
	// A monotonic clock advancing 100ms per read, hammered from several
	// goroutines. Every instant observed for a given wall-clock second
	// must be identical; a stale caller racing across a second boundary
	// must never overwrite the cached instant for the new second.
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var ticks int64
	c := newSecondClock(func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * 100 * time.Millisecond)
	})

	const (
		goroutines = 8
		perG       = 200
	)

	results := make(chan time.Time, goroutines*perG)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				results <- c.Instant()
			}
		}()
	}
	wg.Wait()
	close(results)

	bySecond := make(map[int64]time.Time)
	for got := range results {
		sec := got.Unix()
		if prev, ok := bySecond[sec]; ok {
			require.True(t, prev.Equal(got),
				"second %d yielded two instants: %v and %v", sec, prev, got)
			continue
		}
		bySecond[sec] = got
	}
	assert.Greater(t, len(bySecond), 1)
}

func TestSecondClock_DefaultsToWallClock(t *testing.T) {
	c := newSecondClock(nil)

	got := c.Instant()
	assert.WithinDuration(t, time.Now(), got, time.Second)
}
