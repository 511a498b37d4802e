package gsanity

import "context"

// Signal is delivered by a [SignalEvaluator] to the subsystem it watches.
// The subsystem must close Alive as soon as it can,
// to show that its main loop is still making progress.
type Signal struct {
	// Every signal has a non-nil, non-closed Alive channel.
	Alive chan<- struct{}
}

// SignalEvaluator is an [Evaluator] for subsystems built around a select loop.
// Rather than calling [*Record.Checkin], the subsystem receives from
// [*SignalEvaluator.Signals] in its loop and closes each [Signal.Alive].
//
// Each evaluation passes if the previous signal was answered,
// and then offers a new signal.
// An unanswered signal fails every evaluation until it is answered.
// Nothing in Evaluate blocks.
type SignalEvaluator struct {
	signals chan Signal

	// Alive channel of the outstanding signal, if any.
	pending chan struct{}
}

// NewSignalEvaluator returns a SignalEvaluator.
// It must be attached to exactly one record.
func NewSignalEvaluator() *SignalEvaluator {
	return &SignalEvaluator{
		// One slot, so the offer never depends on the subsystem
		// being parked in its select at the moment of the cycle.
		signals: make(chan Signal, 1),
	}
}

// Signals returns the channel the monitored subsystem must receive from.
func (e *SignalEvaluator) Signals() <-chan Signal {
	return e.signals
}

func (e *SignalEvaluator) Evaluate(_ context.Context, _ *Record) bool {
	if e.pending != nil {
		select {
		case <-e.pending:
			e.pending = nil
		default:
			return false
		}
	}

	alive := make(chan struct{})
	select {
	case e.signals <- Signal{Alive: alive}:
		e.pending = alive
		return true
	default:
		// The slot is only occupied by an unreceived signal,
		// which means pending was still set above.
		return false
	}
}
