package gsanity_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/gordian-engine/gsanity/gsanity"
	"github.com/gordian-engine/gsanity/gsanity/gsanitytest"
	"github.com/gordian-engine/gsanity/gtick"
	"github.com/gordian-engine/gsanity/gtick/gticktest"
	"github.com/gordian-engine/gsanity/internal/gtest"
	"github.com/stretchr/testify/require"
)

func TestNewSupervisor_invalidConfig(t *testing.T) {
	t.Parallel()

	valid := func() gsanity.SupervisorConfig {
		return gsanitytest.NewFixture(5).Cfg
	}

	for _, tc := range []struct {
		name   string
		modify func(*gsanity.SupervisorConfig)
	}{
		{
			name:   "zero period",
			modify: func(c *gsanity.SupervisorConfig) { c.Period = 0 },
		},
		{
			name:   "negative period",
			modify: func(c *gsanity.SupervisorConfig) { c.Period = -time.Second },
		},
		{
			name:   "period shorter than a tick",
			modify: func(c *gsanity.SupervisorConfig) { c.Period = 500 * time.Millisecond },
		},
		{
			name:   "nil clock",
			modify: func(c *gsanity.SupervisorConfig) { c.Clock = nil },
		},
		{
			name:   "nil scheduler",
			modify: func(c *gsanity.SupervisorConfig) { c.Scheduler = nil },
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tc.modify(&cfg)

			s, sCtx, err := gsanity.NewSupervisor(context.Background(), gtest.NewLogger(t), cfg)
			require.Error(t, err)
			require.Nil(t, s)
			require.Nil(t, sCtx)

			var ce gsanity.ConfigurationError
			require.ErrorAs(t, err, &ce)
		})
	}
}

func TestNewSupervisor_periodInTicks(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, _ := f.NewSupervisor(t, context.Background())

	require.Equal(t, gtick.Ticks(5), s.Period())
	require.Equal(t, gtick.Ticks(5), f.Scheduler.Period())
}

func TestSupervisor_overdueDirectRecordFiresOnce(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())

	var a gsanity.Record
	f.Init(&a, "a", 10)
	require.NoError(t, s.Register(context.Background(), &a))

	a.Checkin()

	// Still within the interval.
	r := f.CycleAt(t, 10)
	require.Empty(t, r.Overdue)
	require.NoError(t, sCtx.Err())
	gtest.NotSending(t, f.FatalCauses)

	r = f.CycleAt(t, 12)
	want := gsanity.OverdueError{
		Records: []gsanity.OverdueRecord{
			{Name: "a", Elapsed: 12, Interval: 10},
		},
	}
	require.Equal(t, want.Records, r.Overdue)

	require.Error(t, sCtx.Err())
	require.True(t, gsanity.IsFatal(sCtx))
	require.Equal(t, want, context.Cause(sCtx))

	cause := gtest.ReceiveSoon(t, f.FatalCauses)
	require.Equal(t, want, cause)
	gtest.NotSending(t, f.FatalCauses)
}

func TestSupervisor_noCyclesAfterFatal(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())

	var a gsanity.Record
	f.Init(&a, "a", 10)
	require.NoError(t, s.Register(context.Background(), &a))

	r := f.CycleAt(t, 15)
	require.Len(t, r.Overdue, 1)
	_ = gtest.ReceiveSoon(t, f.FatalCauses)
	require.True(t, gsanity.IsFatal(sCtx))

	// A wake may or may not be accepted,
	// depending on whether the kernel has observed the cancellation yet,
	// but it must never produce another cycle.
	f.Clock.Set(100)
	select {
	case f.Scheduler.Wakes() <- struct{}{}:
	case <-time.After(time.Duration(gtest.ScaleMs(20))):
	}
	gtest.NotSendingSoon(t, f.Reports)
	gtest.NotSending(t, f.FatalCauses)

	// Registration is rejected too.
	var b gsanity.Record
	f.Init(&b, "b", 10)
	err := s.Register(context.Background(), &b)
	require.ErrorIs(t, err, gsanity.ErrHalted)
	require.False(t, b.Registered())
}

func TestSupervisor_regularCheckinsNeverOverdue(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())

	var a gsanity.Record
	f.Init(&a, "a", 10)
	require.NoError(t, s.Register(context.Background(), &a))

	for now := gtick.Ticks(1); now <= 500; now++ {
		f.Clock.Set(now)
		if now%10 == 0 {
			// Checking in exactly once per interval is enough.
			a.Checkin()
		}
		if now%5 == 0 {
			r := f.CycleAt(t, now)
			require.Empty(t, r.Overdue, "overdue at tick %d", now)
		}
	}

	require.NoError(t, sCtx.Err())
}

func TestSupervisor_evaluatorAlwaysSucceeding(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())

	var a gsanity.Record
	f.Init(&a, "a", 0)
	a.SetEvaluator(gsanity.EvaluatorFunc(func(context.Context, *gsanity.Record) bool {
		return true
	}), 1)
	require.NoError(t, s.Register(context.Background(), &a))

	// Gaps far longer than the interval between cycles do not matter,
	// because the evaluation happens before the overdue test.
	for _, now := range []gtick.Ticks{5, 1_000, 1_000_000, 1_000_000_000} {
		r := f.CycleAt(t, now)
		require.Equal(t, 1, r.Evaluated)
		require.Empty(t, r.Overdue)
		require.Equal(t, now, a.LastCheckin())
	}

	require.NoError(t, sCtx.Err())
}

func TestSupervisor_evaluatorSuccessKeepsLaterCheckin(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())

	var a gsanity.Record
	f.Init(&a, "a", 0)
	a.SetEvaluator(gsanity.EvaluatorFunc(func(_ context.Context, rec *gsanity.Record) bool {
		// The owner checks in after the cycle has read the clock.
		f.Clock.Advance(2)
		rec.Checkin()
		return true
	}), 2)
	require.NoError(t, s.Register(context.Background(), &a))

	r := f.CycleAt(t, 10)
	require.Equal(t, gtick.Ticks(10), r.Now)
	require.Empty(t, r.Overdue)

	// The successful evaluation at 10 does not move the check-in back.
	require.Equal(t, gtick.Ticks(12), a.LastCheckin())
	require.NoError(t, sCtx.Err())
}

func TestSupervisor_evaluatorToleratesTransientFailures(t *testing.T) {
	t.Parallel()

	const n = 3

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())

	// Fails n-1 times in a row, then succeeds once, repeatedly.
	calls := 0
	var a gsanity.Record
	f.Init(&a, "a", 0)
	a.SetEvaluator(gsanity.EvaluatorFunc(func(context.Context, *gsanity.Record) bool {
		calls++
		return calls%n == 0
	}), n)
	require.NoError(t, s.Register(context.Background(), &a))

	st, err := s.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, st, 1)
	require.Equal(t, gtick.Ticks(n*5), st[0].Interval)

	for now := gtick.Ticks(5); now <= 300; now += 5 {
		r := f.CycleAt(t, now)
		require.Empty(t, r.Overdue, "overdue at tick %d", now)
	}

	require.NoError(t, sCtx.Err())
	gtest.NotSending(t, f.FatalCauses)
}

func TestSupervisor_evaluatorPersistentFailureFiresWhenIntervalExceeded(t *testing.T) {
	t.Parallel()

	const n = 3

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())

	var a gsanity.Record
	f.Init(&a, "a", 0)
	a.SetEvaluator(gsanity.EvaluatorFunc(func(context.Context, *gsanity.Record) bool {
		return false
	}), n)
	require.NoError(t, s.Register(context.Background(), &a))

	// Elapsed reaches the interval at 15 but does not exceed it.
	for _, now := range []gtick.Ticks{5, 10, 15} {
		r := f.CycleAt(t, now)
		require.Empty(t, r.Overdue, "overdue at tick %d", now)
	}
	require.NoError(t, sCtx.Err())

	r := f.CycleAt(t, 20)
	require.Equal(t, []gsanity.OverdueRecord{
		{Name: "a", Elapsed: 20, Interval: 15},
	}, r.Overdue)
	require.True(t, gsanity.IsFatal(sCtx))
	_ = gtest.ReceiveSoon(t, f.FatalCauses)
}

func TestSupervisor_wraparound(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())

	f.Clock.Set(math.MaxUint32)

	var a gsanity.Record
	f.Init(&a, "a", 10)
	require.NoError(t, s.Register(context.Background(), &a))
	require.Equal(t, gtick.Ticks(math.MaxUint32), a.LastCheckin())

	r := f.CycleAt(t, 1)
	require.Empty(t, r.Overdue)

	f.Clock.Set(1)
	st, err := s.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, st, 1)
	require.Equal(t, gtick.Ticks(2), st[0].Elapsed)

	// Exactly the interval is still live.
	r = f.CycleAt(t, 9)
	require.Empty(t, r.Overdue)

	// Past the interval on the far side of the wrap.
	r = f.CycleAt(t, 10)
	require.Equal(t, []gsanity.OverdueRecord{
		{Name: "a", Elapsed: 11, Interval: 10},
	}, r.Overdue)
	require.True(t, gsanity.IsFatal(sCtx))
}

func TestSupervisor_checkinAfterSnapshotIsNotOverdue(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())

	var a gsanity.Record
	f.Init(&a, "a", 10)

	// The evaluator stands in for the owning task checking in
	// after the cycle has already read the clock.
	a.SetEvaluator(gsanity.EvaluatorFunc(func(_ context.Context, rec *gsanity.Record) bool {
		f.Clock.Advance(1)
		rec.Checkin()
		return false
	}), 0)
	require.NoError(t, s.Register(context.Background(), &a))

	r := f.CycleAt(t, 10)
	require.Empty(t, r.Overdue)
	require.Equal(t, gtick.Ticks(11), a.LastCheckin())
	require.NoError(t, sCtx.Err())
}

func TestSupervisor_inertRecordIsNeverEvaluated(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())

	var inert gsanity.Record
	f.Init(&inert, "inert", 0)
	inert.SetEvaluator(gsanity.EvaluatorFunc(func(context.Context, *gsanity.Record) bool {
		panic("inert record must not be evaluated")
	}), 0)
	require.NoError(t, s.Register(context.Background(), &inert))

	r := f.CycleAt(t, 1_000_000)
	require.Zero(t, r.Evaluated)
	require.Empty(t, r.Overdue)
	require.NoError(t, sCtx.Err())
}

func TestSupervisor_mixedRecordsScenario(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())

	var a, b gsanity.Record
	f.Init(&a, "a", 10)
	f.Init(&b, "b", 0)
	b.SetEvaluator(gsanity.EvaluatorFunc(func(context.Context, *gsanity.Record) bool {
		return false
	}), 10)

	ctx := context.Background()
	require.NoError(t, s.Register(ctx, &a))
	require.NoError(t, s.Register(ctx, &b))

	firedAt := gtick.Ticks(0)
	for now := gtick.Ticks(1); now <= 200; now++ {
		f.Clock.Set(now)
		if now%8 == 0 {
			a.Checkin()
		}
		if now%5 != 0 {
			continue
		}

		r := f.CycleAt(t, now)
		require.Equal(t, 2, r.Evaluated)
		if len(r.Overdue) > 0 {
			require.Equal(t, []gsanity.OverdueRecord{
				{Name: "b", Elapsed: 55, Interval: 50},
			}, r.Overdue)
			firedAt = now
			break
		}
	}

	require.Equal(t, gtick.Ticks(55), firedAt)
	require.True(t, gsanity.IsFatal(sCtx))

	cause := gtest.ReceiveSoon(t, f.FatalCauses)
	var od gsanity.OverdueError
	require.ErrorAs(t, cause, &od)
	require.Len(t, od.Records, 1)
	require.Equal(t, "b", od.Records[0].Name)
	gtest.NotSending(t, f.FatalCauses)
}

func TestSupervisor_multipleOverdueRecordsFireOnce(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())

	recs := make([]gsanity.Record, 3)
	for i, name := range []string{"x", "y", "z"} {
		f.Init(&recs[i], name, 10)
		require.NoError(t, s.Register(context.Background(), &recs[i]))
	}

	r := f.CycleAt(t, 30)
	require.Len(t, r.Overdue, 3)

	cause := gtest.ReceiveSoon(t, f.FatalCauses)
	var od gsanity.OverdueError
	require.ErrorAs(t, cause, &od)
	require.ElementsMatch(t, []string{"x", "y", "z"}, []string{
		od.Records[0].Name, od.Records[1].Name, od.Records[2].Name,
	})
	gtest.NotSending(t, f.FatalCauses)
	require.True(t, gsanity.IsFatal(sCtx))
}

func TestSupervisor_Register_errors(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, _ := f.NewSupervisor(t, context.Background())
	ctx := context.Background()

	t.Run("nil record", func(t *testing.T) {
		require.ErrorIs(t, s.Register(ctx, nil), gsanity.ErrDuplicateOrInvalid)
	})

	t.Run("uninitialized record", func(t *testing.T) {
		var r gsanity.Record
		require.ErrorIs(t, s.Register(ctx, &r), gsanity.ErrDuplicateOrInvalid)
	})

	t.Run("interval shorter than period", func(t *testing.T) {
		var r gsanity.Record
		f.Init(&r, "short", 4)
		require.ErrorIs(t, s.Register(ctx, &r), gsanity.ErrDuplicateOrInvalid)
		require.False(t, r.Registered())
	})

	t.Run("record on another clock", func(t *testing.T) {
		var r gsanity.Record
		r.Init("elsewhere", gticktest.NewManualClock(1_000_000), 10)
		require.ErrorIs(t, s.Register(ctx, &r), gsanity.ErrDuplicateOrInvalid)
		require.False(t, r.Registered())
	})

	t.Run("duplicate", func(t *testing.T) {
		var r gsanity.Record
		f.Init(&r, "dup", 10)
		require.NoError(t, s.Register(ctx, &r))
		require.ErrorIs(t, s.Register(ctx, &r), gsanity.ErrDuplicateOrInvalid)

		require.NoError(t, s.Unregister(ctx, &r))
		require.ErrorIs(t, s.Unregister(ctx, &r), gsanity.ErrNotFound)

		// Free to register again once removed.
		require.NoError(t, s.Register(ctx, &r))
		require.NoError(t, s.Unregister(ctx, &r))
	})

	t.Run("registered with another supervisor", func(t *testing.T) {
		other := gsanitytest.NewFixture(5)
		other.Cfg.Clock = f.Clock
		s2, _ := other.NewSupervisor(t, context.Background())

		var r gsanity.Record
		f.Init(&r, "shared", 10)
		require.NoError(t, s.Register(ctx, &r))
		require.ErrorIs(t, s2.Register(ctx, &r), gsanity.ErrDuplicateOrInvalid)
		require.NoError(t, s.Unregister(ctx, &r))
	})
}

func TestSupervisor_unregisterWaitsForCycle(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})

	var slow, other gsanity.Record
	f.Init(&slow, "slow", 10)
	slow.SetEvaluator(gsanity.EvaluatorFunc(func(context.Context, *gsanity.Record) bool {
		close(entered)
		<-release
		return true
	}), 0)
	f.Init(&other, "other", 10)

	require.NoError(t, s.Register(ctx, &slow))
	require.NoError(t, s.Register(ctx, &other))

	f.Clock.Set(5)
	gtest.SendSoon(t, f.Scheduler.Wakes(), struct{}{})
	_ = gtest.ReceiveSoon(t, entered)

	// The cycle is in progress, so the unregistration must wait for it.
	unregistered := make(chan error, 1)
	go func() {
		unregistered <- s.Unregister(ctx, &other)
	}()
	gtest.NotSendingSoon(t, unregistered)
	require.True(t, other.Registered())

	close(release)
	r := gtest.ReceiveSoon(t, f.Reports)
	require.Equal(t, 2, r.Evaluated)

	require.NoError(t, gtest.ReceiveSoon(t, unregistered))
	require.False(t, other.Registered())

	st, err := s.Status(ctx)
	require.NoError(t, err)
	require.Len(t, st, 1)
	require.Equal(t, "slow", st[0].Name)
	require.NoError(t, sCtx.Err())
}

func TestSupervisor_concurrentRegistrationAndCycles(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())
	ctx := context.Background()

	const nWorkers = 4
	errs := make(chan error, nWorkers)
	for range nWorkers {
		go func() {
			var rec gsanity.Record
			for range 50 {
				// Re-initialized each time, so the check-in tracks the current clock.
				f.Init(&rec, "worker", 1000)
				if err := s.Register(ctx, &rec); err != nil {
					errs <- err
					return
				}
				rec.Checkin()
				if err := s.Unregister(ctx, &rec); err != nil {
					errs <- err
					return
				}
			}
			errs <- nil
		}()
	}

	for now := gtick.Ticks(5); now <= 100; now += 5 {
		r := f.CycleAt(t, now)
		require.Empty(t, r.Overdue)
	}

	for range nWorkers {
		require.NoError(t, gtest.ReceiveSoon(t, errs))
	}
	require.NoError(t, sCtx.Err())
}

func TestSupervisor_Status(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, _ := f.NewSupervisor(t, context.Background())
	ctx := context.Background()

	var a, b gsanity.Record
	f.Init(&a, "a", 10)
	f.Init(&b, "b", 0)
	b.SetEvaluator(gsanity.NewSignalEvaluator(), 4)
	require.NoError(t, s.Register(ctx, &a))
	require.NoError(t, s.Register(ctx, &b))

	f.Clock.Set(12)
	st, err := s.Status(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []gsanity.RecordStatus{
		{Name: "a", Interval: 10, LastCheckin: 0, Elapsed: 12},
		{Name: "b", Interval: 20, LastCheckin: 0, Elapsed: 12, HasEvaluator: true},
	}, st)

	for _, rs := range st {
		require.Equal(t, rs.Name == "a", rs.Overdue())
	}
}

func TestSupervisor_Terminate_normal(t *testing.T) {
	t.Parallel()

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, context.Background())

	require.NoError(t, sCtx.Err())
	require.False(t, gsanity.IsFatal(sCtx))

	s.Terminate("testing purposes")
	require.Error(t, sCtx.Err())
	require.True(t, gsanity.IsFatal(sCtx))
	require.Equal(t, gsanity.ForcedTerminationError{
		Reason: "testing purposes",
	}, context.Cause(sCtx))
	require.Equal(t, gsanity.ForcedTerminationError{
		Reason: "testing purposes",
	}, gtest.ReceiveSoon(t, f.FatalCauses))

	// Calling a second time changes neither the cause nor the fatal action count.
	s.Terminate("again")
	require.Equal(t, gsanity.ForcedTerminationError{
		Reason: "testing purposes",
	}, context.Cause(sCtx))
	gtest.NotSending(t, f.FatalCauses)
}

func TestSupervisor_Terminate_afterParentCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := gsanitytest.NewFixture(5)
	s, sCtx := f.NewSupervisor(t, ctx)

	// If the parent is canceled first, and then terminate is called...
	cancel()
	s.Terminate("late")

	// The supervisor context is cancelled but it was not a fatal action.
	require.Error(t, sCtx.Err())
	require.False(t, gsanity.IsFatal(sCtx))
	gtest.NotSending(t, f.FatalCauses)

	// The kernel stops on parent cancellation.
	s.Wait()
	require.ErrorIs(t, s.Register(context.Background(), new(gsanity.Record)), gsanity.ErrHalted)
}

func TestSupervisor_stopReleasesRecords(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := gsanitytest.NewFixture(5)
	s, _ := f.NewSupervisor(t, ctx)

	recs := make([]gsanity.Record, 3)
	for i := range recs {
		f.Init(&recs[i], "r", 10)
		require.NoError(t, s.Register(context.Background(), &recs[i]))
	}

	cancel()
	s.Wait()

	for i := range recs {
		require.False(t, recs[i].Registered())
	}

	// The records can be initialized again and handed to another supervisor.
	other := gsanitytest.NewFixture(5)
	other.Cfg.Clock = f.Clock
	s2, _ := other.NewSupervisor(t, context.Background())
	for i := range recs {
		require.NotPanics(t, func() {
			f.Init(&recs[i], "r", 10)
		})
		require.NoError(t, s2.Register(context.Background(), &recs[i]))
	}
}

func TestSupervisor_tickerScheduler(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := gtick.NewWallClock(time.Millisecond)
	s, sCtx, err := gsanity.NewSupervisor(ctx, gtest.NewLogger(t), gsanity.SupervisorConfig{
		Period:    2 * time.Millisecond,
		Clock:     clock,
		Scheduler: gsanity.TickerScheduler{Clock: clock},
	})
	require.NoError(t, err)
	defer s.Wait()
	defer cancel()

	// Nothing checks in, so the record eventually goes overdue.
	var a gsanity.Record
	a.Init("abandoned", clock, 4)
	require.NoError(t, s.Register(ctx, &a))

	select {
	case <-sCtx.Done():
	case <-time.After(time.Duration(gtest.ScaleMs(500))):
		t.Fatal("supervisor did not fire for an abandoned record")
	}
	require.True(t, gsanity.IsFatal(sCtx))

	var od gsanity.OverdueError
	require.ErrorAs(t, context.Cause(sCtx), &od)
	require.Equal(t, "abandoned", od.Records[0].Name)
}

func TestIsFatal_plainCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	require.False(t, gsanity.IsFatal(ctx))
	cancel()
	require.False(t, gsanity.IsFatal(ctx))

	ctx, cancelCause := context.WithCancelCause(context.Background())
	cancelCause(gsanity.OverdueError{})
	require.True(t, gsanity.IsFatal(ctx))
}
