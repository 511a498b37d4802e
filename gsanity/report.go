package gsanity

import "github.com/gordian-engine/gsanity/gtick"

// CycleReport summarizes one evaluation cycle.
// Reports are only produced when [SupervisorConfig.Reports] is set.
type CycleReport struct {
	// The clock reading shared by every record in the cycle.
	Now gtick.Ticks

	// Number of records with a non-zero interval that were evaluated.
	Evaluated int

	// Records found overdue. When non-empty, this was the final cycle.
	Overdue []OverdueRecord
}

// RecordStatus is a point-in-time view of a registered record,
// returned by [*Supervisor.Status].
type RecordStatus struct {
	Name string

	// Effective interval; zero for inert records.
	Interval gtick.Ticks

	LastCheckin gtick.Ticks
	Elapsed     gtick.Ticks

	HasEvaluator bool
}

// Overdue reports whether s would be overdue at the moment it was captured.
func (s RecordStatus) Overdue() bool {
	return s.Interval > 0 && s.Elapsed > s.Interval
}
