package gsanitytest

import (
	"context"
	"testing"
	"time"

	"github.com/gordian-engine/gsanity/gsanity"
	"github.com/gordian-engine/gsanity/gtick"
	"github.com/gordian-engine/gsanity/gtick/gticktest"
	"github.com/gordian-engine/gsanity/internal/gtest"
)

// Fixture wires a supervisor to a manual clock and a manual scheduler,
// so a test decides exactly when each cycle runs and what time it observes.
type Fixture struct {
	Clock     *gticktest.ManualClock
	Scheduler *ManualScheduler

	Reports chan gsanity.CycleReport

	// Every cause passed to the fatal action.
	// Buffered so that an erroneous second call is observable.
	FatalCauses chan error

	Cfg gsanity.SupervisorConfig
}

// NewFixture returns a Fixture whose supervisor period is period ticks,
// with the clock reading zero.
func NewFixture(period gtick.Ticks) *Fixture {
	clock := gticktest.NewManualClock(0)
	sched := NewManualScheduler()
	reports := make(chan gsanity.CycleReport)
	causes := make(chan error, 4)

	return &Fixture{
		Clock:     clock,
		Scheduler: sched,

		Reports:     reports,
		FatalCauses: causes,

		Cfg: gsanity.SupervisorConfig{
			Period:    time.Duration(period) * clock.TickDuration(),
			Clock:     clock,
			Scheduler: sched,
			FatalAction: gsanity.FatalActionFunc(func(cause error) {
				causes <- cause
			}),
			Reports: reports,
		},
	}
}

// NewSupervisor starts a supervisor from f.Cfg.
// The supervisor is waited on during test cleanup,
// after its context has been cancelled.
func (f *Fixture) NewSupervisor(t *testing.T, ctx context.Context) (*gsanity.Supervisor, context.Context) {
	t.Helper()

	ctx, cancel := context.WithCancel(ctx)

	s, sCtx, err := gsanity.NewSupervisor(ctx, gtest.NewLogger(t), f.Cfg)
	if err != nil {
		cancel()
		t.Fatalf("failed to create supervisor: %v", err)
	}

	t.Cleanup(func() {
		cancel()
		s.Wait()
	})

	return s, sCtx
}

// Init initializes rec against the fixture clock.
func (f *Fixture) Init(rec *gsanity.Record, name string, interval gtick.Ticks) {
	rec.Init(name, f.Clock, interval)
}

// CycleAt moves the clock to now, wakes the supervisor,
// and returns the report of the resulting cycle.
func (f *Fixture) CycleAt(t *testing.T, now gtick.Ticks) gsanity.CycleReport {
	t.Helper()

	f.Clock.Set(now)
	gtest.SendSoon(t, f.Scheduler.Wakes(), struct{}{})
	return gtest.ReceiveSoon(t, f.Reports)
}
