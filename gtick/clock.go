package gtick

import (
	"fmt"
	"time"
)

// Clock is the source of tick readings.
type Clock interface {
	// Now returns the current tick count.
	Now() Ticks

	// TickDuration is the fixed wall duration of a single tick.
	// It is only used to convert configured durations into ticks.
	TickDuration() time.Duration
}

// WallClock is a [Clock] derived from the monotonic reading of [time.Now].
// The counter starts at zero when the clock is created.
type WallClock struct {
	start time.Time
	tick  time.Duration
}

// NewWallClock returns a WallClock advancing one tick per tick duration.
// It panics if tick is not positive.
func NewWallClock(tick time.Duration) *WallClock {
	if tick <= 0 {
		panic(fmt.Errorf("BUG: NewWallClock: tick duration must be positive; got %s", tick))
	}
	return &WallClock{
		start: time.Now(),
		tick:  tick,
	}
}

func (c *WallClock) Now() Ticks {
	// Truncation to 32 bits is the wraparound.
	return Ticks(uint64(time.Since(c.start) / c.tick))
}

func (c *WallClock) TickDuration() time.Duration {
	return c.tick
}

// ToTicks converts d into whole ticks of c, rounding down.
func ToTicks(c Clock, d time.Duration) Ticks {
	return Ticks(uint64(d / c.TickDuration()))
}

// ToDuration converts t into a wall duration on c.
func ToDuration(c Clock, t Ticks) time.Duration {
	return time.Duration(t) * c.TickDuration()
}
