// Package gsanitytest contains helpers for driving a [gsanity.Supervisor]
// deterministically in tests.
package gsanitytest

import (
	"context"
	"sync"

	"github.com/gordian-engine/gsanity/gtick"
)

// ManualScheduler is a [gsanity.Scheduler] that only wakes the supervisor
// when the test sends on [*ManualScheduler.Wakes].
type ManualScheduler struct {
	mu     sync.Mutex
	period gtick.Ticks

	// Unbuffered, so a completed send means the supervisor took the wake.
	wakes chan struct{}
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{
		wakes: make(chan struct{}),
	}
}

func (s *ManualScheduler) Periodic(_ context.Context, period gtick.Ticks) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.period = period
	return s.wakes
}

// Wakes is the channel the test sends on to start a cycle.
func (s *ManualScheduler) Wakes() chan<- struct{} {
	return s.wakes
}

// Period returns the period most recently passed to Periodic.
func (s *ManualScheduler) Period() gtick.Ticks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}
