package gsdemo

import (
	"context"
	"log/slog"
	"time"

	"github.com/gordian-engine/gsanity/gsanity"
)

// runTask simulates a task loop that checks in every checkinEvery.
// If hangAfter is positive, the loop stops checking in after that long
// but keeps running until ctx is cancelled, like a task stuck on a lock.
func runTask(
	ctx context.Context,
	log *slog.Logger,
	rec *gsanity.Record,
	checkinEvery, hangAfter time.Duration,
) {
	t := time.NewTicker(checkinEvery)
	defer t.Stop()

	var hang <-chan time.Time
	if hangAfter > 0 {
		ht := time.NewTimer(hangAfter)
		defer ht.Stop()
		hang = ht.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hang:
			log.Warn("Task is hanging; it will stop checking in")
			<-ctx.Done()
			return
		case <-t.C:
			rec.Checkin()
		}
	}
}

// runSignalSubsystem answers every signal from e promptly,
// standing in for a subsystem with its own select loop.
func runSignalSubsystem(ctx context.Context, e *gsanity.SignalEvaluator) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-e.Signals():
			close(sig.Alive)
		}
	}
}
