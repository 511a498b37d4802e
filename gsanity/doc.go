// Package gsanity provides a Supervisor that periodically walks a registry
// of liveness records and escalates to a fatal action when any record is overdue.
//
// A monitored task owns a [Record], initializes it with [*Record.Init],
// registers it with [*Supervisor.Register], and then calls [*Record.Checkin]
// at least once per record interval, typically once per iteration of its main loop.
//
// A record may instead carry an [Evaluator], which the supervisor calls on every cycle.
// A successful evaluation counts as a check-in.
// A failed evaluation is not an error by itself;
// the record only becomes overdue once the time since the last success
// exceeds its interval, so an interval of N supervisor periods
// tolerates N consecutive failed evaluations.
//
// When a record is overdue, the supervisor cancels its context with an [OverdueError],
// calls the configured [FatalAction] once, and never runs another cycle.
package gsanity
