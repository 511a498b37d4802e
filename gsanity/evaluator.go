package gsanity

import "context"

// Evaluator is an indirect liveness check attached to a [Record]
// with [*Record.SetEvaluator].
//
// Evaluate is called once per supervisor cycle, on the supervisor's goroutine.
// Reporting true counts as a check-in for rec.
// Reporting false leaves the last check-in untouched,
// so repeated failures only become fatal once the record's interval elapses.
//
// Evaluate must return quickly and must not block:
// the supervisor has no timeout around it,
// and a slow evaluator delays every record evaluated after it.
// Evaluate must not call methods on the Supervisor.
type Evaluator interface {
	Evaluate(ctx context.Context, rec *Record) bool
}

// EvaluatorFunc adapts a function to the [Evaluator] interface.
type EvaluatorFunc func(ctx context.Context, rec *Record) bool

func (f EvaluatorFunc) Evaluate(ctx context.Context, rec *Record) bool {
	return f(ctx, rec)
}
