package gsanity

import (
	"context"
	"time"

	"github.com/gordian-engine/gsanity/gtick"
)

// Scheduler wakes the supervisor once per period.
type Scheduler interface {
	// Periodic returns a channel that receives a value at every period boundary,
	// until ctx is cancelled.
	// Wakes that the supervisor is too busy to receive may be coalesced.
	Periodic(ctx context.Context, period gtick.Ticks) <-chan struct{}
}

// TickerScheduler is a [Scheduler] backed by a [time.Ticker].
// The tick period is converted to wall time using Clock's tick duration.
type TickerScheduler struct {
	Clock gtick.Clock
}

func (s TickerScheduler) Periodic(ctx context.Context, period gtick.Ticks) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go s.run(ctx, gtick.ToDuration(s.Clock, period), ch)
	return ch
}

func (s TickerScheduler) run(ctx context.Context, d time.Duration, ch chan<- struct{}) {
	t := time.NewTicker(d)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			select {
			case ch <- struct{}{}:
			default:
				// Previous wake still pending.
			}
		}
	}
}
