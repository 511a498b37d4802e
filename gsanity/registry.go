package gsanity

import (
	"errors"
	"fmt"
	"iter"

	"github.com/gordian-engine/gsanity/gtick"
)

// Registry is an unordered collection of registered records.
//
// Records are held in a dense slice with an identity index,
// so registration and removal are constant time
// and no link state lives inside the Record beyond its owner marker.
//
// Registry is not safe for concurrent use.
// The [Supervisor] confines its registry to its own goroutine,
// which is what makes its Register and Unregister methods
// mutually exclusive with evaluation cycles.
type Registry struct {
	clock  gtick.Clock
	period gtick.Ticks

	entries []registryEntry
	index   map[*Record]int
}

type registryEntry struct {
	Rec *Record

	// The effective interval, after resolving any evaluator interval multiple.
	Interval gtick.Ticks
}

// NewRegistry returns an empty registry for a supervisor
// reading clock and running every period ticks.
// Only records initialized with the same clock may be registered.
// The period is used to resolve evaluator interval multiples
// and to reject intervals shorter than one period.
// NewRegistry panics if clock is nil or period is zero.
func NewRegistry(clock gtick.Clock, period gtick.Ticks) *Registry {
	if clock == nil {
		panic(errors.New("BUG: NewRegistry: clock must not be nil"))
	}
	if period == 0 {
		panic(errors.New("BUG: NewRegistry: period must be positive"))
	}
	return &Registry{
		clock:  clock,
		period: period,
		index:  make(map[*Record]int),
	}
}

// Register adds rec to r.
//
// It returns an error wrapping [ErrDuplicateOrInvalid] if rec is nil,
// was not initialized, was initialized with a clock other than the registry's,
// is already registered here or in another registry,
// or has a non-zero interval shorter than the period.
// A record with an interval shorter than the period would be reported overdue
// on cycles where it could not have checked in yet.
func (r *Registry) Register(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrDuplicateOrInvalid)
	}
	if rec.clock == nil {
		return fmt.Errorf("%w: record %q was not initialized", ErrDuplicateOrInvalid, rec.name)
	}
	if rec.clock != r.clock {
		return fmt.Errorf(
			"%w: malformed record %q: initialized with a different clock than the supervisor's",
			ErrDuplicateOrInvalid, rec.name,
		)
	}

	interval, err := r.effectiveInterval(rec)
	if err != nil {
		return err
	}

	if !rec.owner.CompareAndSwap(nil, r) {
		if rec.owner.Load() == r {
			return fmt.Errorf("%w: record %q is already registered", ErrDuplicateOrInvalid, rec.name)
		}
		return fmt.Errorf("%w: record %q belongs to another registry", ErrDuplicateOrInvalid, rec.name)
	}

	r.index[rec] = len(r.entries)
	r.entries = append(r.entries, registryEntry{Rec: rec, Interval: interval})
	return nil
}

func (r *Registry) effectiveInterval(rec *Record) (gtick.Ticks, error) {
	interval := rec.interval
	if rec.evaluator != nil && rec.intervalMultiple > 0 {
		m := uint64(rec.intervalMultiple) * uint64(r.period)
		if m >= uint64(gtick.HalfRange) {
			return 0, fmt.Errorf(
				"%w: record %q interval of %d periods overflows the tick range",
				ErrDuplicateOrInvalid, rec.name, rec.intervalMultiple,
			)
		}
		interval = gtick.Ticks(m)
	}

	if interval == 0 {
		// Inert records are allowed.
		return 0, nil
	}

	if interval < r.period {
		return 0, fmt.Errorf(
			"%w: record %q interval %d is shorter than the supervisor period %d",
			ErrDuplicateOrInvalid, rec.name, interval, r.period,
		)
	}

	if interval >= gtick.HalfRange {
		return 0, fmt.Errorf(
			"%w: record %q interval %d exceeds half the tick range",
			ErrDuplicateOrInvalid, rec.name, interval,
		)
	}

	return interval, nil
}

// Unregister removes rec from r,
// after which rec may be initialized and registered again.
// It returns [ErrNotFound] if rec is not registered in r.
func (r *Registry) Unregister(rec *Record) error {
	i, ok := r.index[rec]
	if !ok {
		return ErrNotFound
	}

	last := len(r.entries) - 1
	if i != last {
		r.entries[i] = r.entries[last]
		r.index[r.entries[i].Rec] = i
	}
	r.entries[last] = registryEntry{}
	r.entries = r.entries[:last]
	delete(r.index, rec)

	rec.owner.Store(nil)
	return nil
}

// unlinkAll removes every record from r,
// so that each may be initialized and registered again.
func (r *Registry) unlinkAll() {
	for _, e := range r.entries {
		e.Rec.owner.Store(nil)
	}
	clear(r.entries)
	r.entries = r.entries[:0]
	clear(r.index)
}

// Len returns the number of registered records.
func (r *Registry) Len() int {
	return len(r.entries)
}

// All iterates every registered record with its effective interval.
// The order is unspecified.
// The registry must not be modified during iteration.
func (r *Registry) All() iter.Seq2[*Record, gtick.Ticks] {
	return func(yield func(*Record, gtick.Ticks) bool) {
		for _, e := range r.entries {
			if !yield(e.Rec, e.Interval) {
				return
			}
		}
	}
}
