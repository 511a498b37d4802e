package gtick

import "math"

// Ticks is a reading of a monotonic, wrapping tick counter,
// or a duration measured in ticks.
type Ticks uint32

// HalfRange is the largest elapsed duration that [Since] can distinguish
// from a reading that lies in the future.
const HalfRange Ticks = math.MaxUint32/2 + 1

// Elapsed returns now - then in the counter's modulus.
//
// A counter that wrapped between then and now still produces the true distance,
// e.g. Elapsed(1, math.MaxUint32) == 2.
func Elapsed(now, then Ticks) Ticks {
	return now - then
}

// Since behaves like [Elapsed], except that a then value which is ahead of now
// (within [HalfRange]) is reported as zero elapsed ticks.
//
// This happens when a check-in lands after a supervisor took its snapshot of now;
// without the clamp, the modular difference would look like an enormous delay.
func Since(now, then Ticks) Ticks {
	d := now - then
	if d >= HalfRange {
		return 0
	}
	return d
}

// Before reports whether a precedes b, in the counter's modulus.
func Before(a, b Ticks) bool {
	return a != b && b-a < HalfRange
}
