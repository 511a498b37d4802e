// Package gticktest provides a manually driven [gtick.Clock] for tests.
package gticktest

import (
	"sync/atomic"
	"time"

	"github.com/gordian-engine/gsanity/gtick"
)

// ManualClock is a [gtick.Clock] whose reading only changes
// when the test calls Set or Advance.
// It is safe for concurrent use.
type ManualClock struct {
	now  atomic.Uint32
	tick time.Duration
}

// NewManualClock returns a clock reading start,
// where one tick corresponds to one second.
func NewManualClock(start gtick.Ticks) *ManualClock {
	c := &ManualClock{tick: time.Second}
	c.now.Store(uint32(start))
	return c
}

func (c *ManualClock) Now() gtick.Ticks {
	return gtick.Ticks(c.now.Load())
}

func (c *ManualClock) TickDuration() time.Duration {
	return c.tick
}

// Set moves the clock to t.
// Moving backwards is allowed; it looks the same as a very long wrap.
func (c *ManualClock) Set(t gtick.Ticks) {
	c.now.Store(uint32(t))
}

// Advance moves the clock forward by d ticks, wrapping as needed,
// and returns the new reading.
func (c *ManualClock) Advance(d gtick.Ticks) gtick.Ticks {
	return gtick.Ticks(c.now.Add(uint32(d)))
}
