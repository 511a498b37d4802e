package gsanity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gordian-engine/gsanity/gtick"
)

var (
	// ErrDuplicateOrInvalid is returned when registering a record
	// that is already registered, was never initialized,
	// or has an interval the registry cannot honor.
	ErrDuplicateOrInvalid = errors.New("duplicate or invalid record")

	// ErrNotFound is returned when unregistering a record that is not registered.
	ErrNotFound = errors.New("record not registered")

	// ErrHalted is returned by Supervisor methods after its fatal action has fired.
	ErrHalted = errors.New("supervisor halted")
)

// IsFatal reports whether the context was cancelled by the supervisor's fatal action.
func IsFatal(ctx context.Context) bool {
	e := context.Cause(ctx)
	if e == nil {
		return false
	}

	var od OverdueError
	if errors.As(e, &od) {
		return true
	}

	var ft ForcedTerminationError
	return errors.As(e, &ft)
}

// ConfigurationError indicates an invalid [SupervisorConfig].
type ConfigurationError struct {
	Err error
}

func (e ConfigurationError) Error() string {
	return "invalid supervisor configuration: " + e.Err.Error()
}

func (e ConfigurationError) Unwrap() error {
	return e.Err
}

// OverdueRecord describes a single record that missed its deadline.
type OverdueRecord struct {
	Name string

	Elapsed, Interval gtick.Ticks
}

// OverdueError is the cause of the supervisor context's cancellation
// when one or more records were overdue during a single cycle.
type OverdueError struct {
	// Every record that was overdue on the failing cycle,
	// in registry iteration order.
	Records []OverdueRecord
}

func (e OverdueError) Error() string {
	var sb strings.Builder
	sb.WriteString("liveness check overdue: ")
	for i, r := range e.Records {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s (elapsed %d > interval %d ticks)", r.Name, r.Elapsed, r.Interval)
	}
	return sb.String()
}

// ForcedTerminationError indicates that [*Supervisor.Terminate] was called.
type ForcedTerminationError struct {
	Reason string
}

func (e ForcedTerminationError) Error() string {
	return "supervisor forced termination: " + e.Reason
}
