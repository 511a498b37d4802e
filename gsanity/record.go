package gsanity

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gordian-engine/gsanity/gtick"
)

// Record is the liveness state of one monitored task or subsystem.
//
// The monitored task owns the Record's storage;
// a [Registry] only holds a reference to it while registered.
// The zero value is not usable; call [*Record.Init] first.
type Record struct {
	name  string
	clock gtick.Clock

	// Zero means the record is inert:
	// it may be registered, but it is never evaluated.
	interval gtick.Ticks

	// Written by the owning task on Checkin and by the supervisor on a successful evaluation.
	// A word-sized atomic keeps the concurrent read during a cycle well defined.
	lastCheckin atomic.Uint32

	evaluator        Evaluator
	intervalMultiple uint32

	// Non-nil while the record is linked into a registry.
	owner atomic.Pointer[Registry]
}

// Init prepares r for registration.
// The last check-in is set to the current reading of clock,
// and any previously attached evaluator is cleared.
//
// Init panics if r is currently registered or if clock is nil.
func (r *Record) Init(name string, clock gtick.Clock, interval gtick.Ticks) {
	if r.owner.Load() != nil {
		panic(fmt.Errorf("BUG: (*Record).Init called on registered record %q", r.name))
	}
	if clock == nil {
		panic(errors.New("BUG: (*Record).Init requires a non-nil clock"))
	}

	r.name = name
	r.clock = clock
	r.interval = interval
	r.evaluator = nil
	r.intervalMultiple = 0
	r.lastCheckin.Store(uint32(clock.Now()))
}

// Checkin marks r as alive at the current tick.
// It is a single atomic store and is safe to call concurrently with a supervisor cycle.
// Only the owning task should call Checkin.
func (r *Record) Checkin() {
	r.lastCheckin.Store(uint32(r.clock.Now()))
}

// advanceCheckin moves the last check-in forward to t,
// unless a later check-in has already been stored.
func (r *Record) advanceCheckin(t gtick.Ticks) {
	for {
		old := r.lastCheckin.Load()
		if gtick.Ticks(old) == t || gtick.Before(t, gtick.Ticks(old)) {
			return
		}
		if r.lastCheckin.CompareAndSwap(old, uint32(t)) {
			return
		}
	}
}

// SetEvaluator attaches e, to be called on every supervisor cycle.
//
// The record's interval becomes intervalMultiple times the supervisor period
// when the record is registered.
// Choose N to tolerate N consecutive failed evaluations.
// An intervalMultiple of zero keeps the interval passed to Init.
//
// SetEvaluator must be called after Init and before registration;
// it panics if r is currently registered.
func (r *Record) SetEvaluator(e Evaluator, intervalMultiple uint32) {
	if r.owner.Load() != nil {
		panic(fmt.Errorf("BUG: (*Record).SetEvaluator called on registered record %q", r.name))
	}

	r.evaluator = e
	r.intervalMultiple = intervalMultiple
}

func (r *Record) Name() string {
	return r.name
}

// Interval returns the interval given to Init.
// Registered records with an evaluator may use a different effective interval;
// see [*Supervisor.Status].
func (r *Record) Interval() gtick.Ticks {
	return r.interval
}

// LastCheckin returns the tick of the most recent check-in or successful evaluation.
func (r *Record) LastCheckin() gtick.Ticks {
	return gtick.Ticks(r.lastCheckin.Load())
}

// Registered reports whether r is currently linked into a registry.
func (r *Record) Registered() bool {
	return r.owner.Load() != nil
}

func (r *Record) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", r.name),
		slog.Uint64("interval", uint64(r.interval)),
		slog.Uint64("last_checkin", uint64(r.LastCheckin())),
		slog.Bool("evaluator", r.evaluator != nil),
	)
}
