package gsanity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordian-engine/gsanity/gtick"
	"github.com/gordian-engine/gsanity/internal/gchan"
)

// FatalAction is the system-level response to an overdue record.
// It is called at most once per Supervisor, with the same cause
// that cancels the supervisor's context.
// In production it is expected to halt or reset the process.
type FatalAction interface {
	Fatal(cause error)
}

// FatalActionFunc adapts a function to the [FatalAction] interface.
type FatalActionFunc func(cause error)

func (f FatalActionFunc) Fatal(cause error) {
	f(cause)
}

// SupervisorConfig is the configuration for [NewSupervisor].
type SupervisorConfig struct {
	// How often every registered record is evaluated.
	// Converted to whole ticks of Clock; must be at least one tick.
	Period time.Duration

	Clock     gtick.Clock
	Scheduler Scheduler

	// Optional hook invoked once when the supervisor fires.
	// The supervisor context is always cancelled regardless.
	FatalAction FatalAction

	// Optional.
	Metrics *Metrics

	// If set, a report is sent after every cycle.
	// Sends block, so the channel must be drained.
	Reports chan<- CycleReport
}

func (c SupervisorConfig) validate() error {
	var err error
	if c.Period <= 0 {
		err = errors.Join(err, errors.New("SupervisorConfig.Period must be positive"))
	}

	if c.Clock == nil {
		err = errors.Join(err, errors.New("SupervisorConfig.Clock must not be nil"))
	} else if c.Period > 0 {
		if c.Period < c.Clock.TickDuration() {
			err = errors.Join(err, fmt.Errorf(
				"SupervisorConfig.Period (%s) must be at least one clock tick (%s)",
				c.Period, c.Clock.TickDuration(),
			))
		} else if c.Period/c.Clock.TickDuration() >= time.Duration(gtick.HalfRange) {
			err = errors.Join(err, errors.New("SupervisorConfig.Period must be less than half the tick range"))
		}
	}

	if c.Scheduler == nil {
		err = errors.Join(err, errors.New("SupervisorConfig.Scheduler must not be nil"))
	}

	return err
}

// Supervisor periodically evaluates every registered [Record]
// and fires its fatal action when any record is overdue.
//
// All registry access and every evaluation happen on a single kernel goroutine.
// Register, Unregister, and Status are requests to that goroutine,
// so they never interleave with a cycle.
type Supervisor struct {
	log *slog.Logger

	clock   gtick.Clock
	period  gtick.Ticks
	fatal   FatalAction
	metrics *Metrics
	reports chan<- CycleReport

	sCtx      context.Context
	cancel    context.CancelCauseFunc
	fatalOnce sync.Once

	registerRequests   chan registerRequest
	unregisterRequests chan registerRequest
	statusRequests     chan chan []RecordStatus

	done chan struct{}
}

// NewSupervisor validates cfg and starts a Supervisor.
// The returned context is derived from ctx
// and is cancelled when the fatal action fires;
// use [IsFatal] to distinguish that from cancellation of ctx.
//
// The supervisor keeps serving requests until ctx is cancelled,
// but it never runs another cycle after its fatal action fires.
//
// An invalid configuration is reported as a [ConfigurationError].
func NewSupervisor(ctx context.Context, log *slog.Logger, cfg SupervisorConfig) (*Supervisor, context.Context, error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, ConfigurationError{Err: err}
	}

	sCtx, cancel := context.WithCancelCause(ctx)
	s := &Supervisor{
		log: log,

		clock:   cfg.Clock,
		period:  gtick.ToTicks(cfg.Clock, cfg.Period),
		fatal:   cfg.FatalAction,
		metrics: cfg.Metrics,
		reports: cfg.Reports,

		sCtx:   sCtx,
		cancel: cancel,

		// Unbuffered since requests are synchronous.
		registerRequests:   make(chan registerRequest),
		unregisterRequests: make(chan registerRequest),
		statusRequests:     make(chan chan []RecordStatus),

		done: make(chan struct{}),
	}

	// The scheduler runs off the supervisor context,
	// so wakes stop as soon as the fatal action fires.
	wakes := cfg.Scheduler.Periodic(sCtx, s.period)

	go s.kernel(ctx, wakes)
	return s, sCtx, nil
}

// Period returns the supervisor period in ticks.
func (s *Supervisor) Period() gtick.Ticks {
	return s.period
}

// Wait blocks until the kernel goroutine exits,
// which happens when the context passed to [NewSupervisor] is cancelled.
// Firing the fatal action alone does not unblock Wait.
// Once Wait returns, every record that was still registered has been released.
func (s *Supervisor) Wait() {
	<-s.done
}

// Terminate fires the fatal action with a [ForcedTerminationError] cause.
// It has no effect if the fatal action already fired
// or the parent context was already cancelled.
func (s *Supervisor) Terminate(reason string) {
	s.fire(ForcedTerminationError{Reason: reason})
}

func (s *Supervisor) fire(cause error) {
	s.fatalOnce.Do(func() {
		if s.sCtx.Err() != nil {
			// Parent already cancelled; nothing left to escalate.
			return
		}

		s.cancel(cause)
		if s.fatal != nil {
			s.fatal.Fatal(cause)
		}
	})
}

// registerRequest is sent from a goroutine calling Register or Unregister
// to the supervisor's kernel goroutine.
type registerRequest struct {
	Rec  *Record
	Resp chan error
}

// Register adds rec to the supervisor's registry.
// Interval multiples set through [*Record.SetEvaluator] are resolved against the supervisor period.
//
// Registration errors wrap [ErrDuplicateOrInvalid].
// After the fatal action fires, Register returns an error wrapping [ErrHalted].
// If ctx is cancelled before the kernel accepts the request,
// the context's cause is returned.
func (s *Supervisor) Register(ctx context.Context, rec *Record) error {
	return s.registryRequest(ctx, s.registerRequests, rec, "registering record")
}

// Unregister removes rec from the supervisor's registry.
// It returns [ErrNotFound] if rec was not registered.
// Unregister is safe to call while cycles are running;
// it takes effect between two cycles.
func (s *Supervisor) Unregister(ctx context.Context, rec *Record) error {
	return s.registryRequest(ctx, s.unregisterRequests, rec, "unregistering record")
}

func (s *Supervisor) registryRequest(
	ctx context.Context, reqs chan<- registerRequest, rec *Record, during string,
) error {
	req := registerRequest{
		Rec:  rec,
		Resp: make(chan error, 1),
	}

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-s.done:
		return fmt.Errorf("%w: kernel stopped", ErrHalted)
	case reqs <- req:
		// Okay.
	}

	err, ok := gchan.RecvC(ctx, s.log, req.Resp, during)
	if !ok {
		return context.Cause(ctx)
	}
	return err
}

// Status returns a snapshot of every registered record,
// with elapsed times measured against a single clock reading.
func (s *Supervisor) Status(ctx context.Context) ([]RecordStatus, error) {
	resp := make(chan []RecordStatus, 1)

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-s.done:
		return nil, fmt.Errorf("%w: kernel stopped", ErrHalted)
	case s.statusRequests <- resp:
		// Okay.
	}

	st, ok := gchan.RecvC(ctx, s.log, resp, "receiving status")
	if !ok {
		return nil, context.Cause(ctx)
	}
	return st, nil
}

func (s *Supervisor) kernel(rootCtx context.Context, wakes <-chan struct{}) {
	defer close(s.done)

	reg := NewRegistry(s.clock, s.period)

	// Runs before done is closed, so a caller returning from Wait
	// may reuse every record that was still registered.
	defer reg.unlinkAll()

	// Set to nil once the supervisor context is done,
	// so that neither case is selected again.
	sDone := s.sCtx.Done()

	for {
		select {
		case <-rootCtx.Done():
			s.log.Info("Stopping due to root context cancellation", "cause", context.Cause(rootCtx))
			return

		case <-sDone:
			if rootCtx.Err() == nil {
				s.log.Info("Supervisor halted; no further cycles will run", "cause", context.Cause(s.sCtx))
			}
			sDone = nil
			wakes = nil

		case <-wakes:
			if s.sCtx.Err() != nil {
				// Lost a race with cancellation; the sDone case will clean up.
				continue
			}
			s.cycle(rootCtx, reg)

		case req := <-s.registerRequests:
			req.Resp <- s.handleRegister(reg, req.Rec)

		case req := <-s.unregisterRequests:
			err := reg.Unregister(req.Rec)
			if err == nil {
				s.log.Debug("Unregistered record", "record", req.Rec.name)
				s.metrics.setRegistered(reg.Len())
			}
			req.Resp <- err

		case resp := <-s.statusRequests:
			resp <- s.status(reg)
		}
	}
}

func (s *Supervisor) handleRegister(reg *Registry, rec *Record) error {
	if s.sCtx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrHalted, context.Cause(s.sCtx))
	}

	if err := reg.Register(rec); err != nil {
		s.log.Info("Rejected record registration", "err", err)
		return err
	}

	s.log.Debug("Registered record", "record", rec)
	s.metrics.setRegistered(reg.Len())
	return nil
}

// cycle evaluates every record in reg against a single clock reading.
// If any record is overdue, cycle fires the fatal action.
func (s *Supervisor) cycle(rootCtx context.Context, reg *Registry) {
	start := time.Now()
	now := s.clock.Now()

	var overdue []OverdueRecord
	evaluated := 0
	for rec, interval := range reg.All() {
		if interval == 0 {
			continue
		}
		evaluated++

		if rec.evaluator != nil {
			if rec.evaluator.Evaluate(s.sCtx, rec) {
				rec.advanceCheckin(now)
			} else {
				s.metrics.observeEvaluatorFailure()
				s.log.Debug(
					"Evaluator reported failure",
					"record", rec.name,
					"elapsed", gtick.Since(now, rec.LastCheckin()),
					"interval", interval,
				)
			}
		}

		// A check-in that landed after now was read counts as no time elapsed.
		elapsed := gtick.Since(now, rec.LastCheckin())
		if elapsed > interval {
			overdue = append(overdue, OverdueRecord{
				Name:     rec.name,
				Elapsed:  elapsed,
				Interval: interval,
			})
		}
	}

	s.metrics.observeCycle(start, len(overdue))

	if len(overdue) > 0 {
		err := OverdueError{Records: overdue}
		s.log.Error("Liveness check overdue; invoking fatal action", "now", now, "err", err)
		s.fire(err)
	}

	if s.reports != nil {
		_ = gchan.SendC(rootCtx, s.log, s.reports, CycleReport{
			Now:       now,
			Evaluated: evaluated,
			Overdue:   overdue,
		}, "sending cycle report")
	}
}

func (s *Supervisor) status(reg *Registry) []RecordStatus {
	now := s.clock.Now()
	out := make([]RecordStatus, 0, reg.Len())
	for rec, interval := range reg.All() {
		last := rec.LastCheckin()
		out = append(out, RecordStatus{
			Name:         rec.name,
			Interval:     interval,
			LastCheckin:  last,
			Elapsed:      gtick.Since(now, last),
			HasEvaluator: rec.evaluator != nil,
		})
	}
	return out
}
