// Package gtick contains the monotonic tick counter used by the sanity supervisor.
//
// A [Ticks] value is a wrapping, unsigned 32-bit counter advancing at a fixed rate.
// Only differences between two Ticks values are meaningful.
// Differences are computed in the counter's modulus,
// so they remain correct across wraparound as long as the true elapsed time
// is less than half of the representable range (see [HalfRange]).
// That bound is a precondition of every caller, not something gtick can enforce.
package gtick
