package gsdemo

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Config controls a demo run.
type Config struct {
	// Tick duration of the wall clock.
	Tick time.Duration

	// Supervisor period.
	Period time.Duration

	// Number of simulated tasks checking in directly.
	Tasks int

	// Each task's liveness interval, and how often it checks in.
	TaskInterval time.Duration
	CheckinEvery time.Duration

	// If HangAfter is positive, the task named HangTask stops checking in
	// after that long.
	HangTask  string
	HangAfter time.Duration

	// If positive, a select-loop subsystem is watched through a SignalEvaluator
	// that tolerates this many consecutive missed signals.
	SignalTolerance uint32

	// Listen address for /status and /metrics. Empty disables the server.
	HTTPAddr string
}

// DefaultConfig returns a configuration in which nothing hangs.
func DefaultConfig() Config {
	return Config{
		Tick:         time.Millisecond,
		Period:       250 * time.Millisecond,
		Tasks:        3,
		TaskInterval: time.Second,
		CheckinEvery: 200 * time.Millisecond,

		HangTask: "task-0",

		SignalTolerance: 4,
	}
}

// BindFlags registers flags on fs that write into c.
// Call it on a value already holding the defaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&c.Tick, "tick", c.Tick, "duration of a single clock tick")
	fs.DurationVar(&c.Period, "period", c.Period, "supervisor evaluation period")
	fs.IntVar(&c.Tasks, "tasks", c.Tasks, "number of simulated tasks")
	fs.DurationVar(&c.TaskInterval, "task-interval", c.TaskInterval, "liveness interval of each task")
	fs.DurationVar(&c.CheckinEvery, "checkin-every", c.CheckinEvery, "how often each healthy task checks in")
	fs.StringVar(&c.HangTask, "hang-task", c.HangTask, "name of the task that hangs when --hang-after is set")
	fs.DurationVar(&c.HangAfter, "hang-after", c.HangAfter, "stop checking in from --hang-task after this long (0 = never)")
	fs.Uint32Var(&c.SignalTolerance, "signal-tolerance", c.SignalTolerance, "periods a signal-driven subsystem may miss (0 = no such subsystem)")
	fs.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "address to serve /status and /metrics on (empty = disabled)")
}

// Validate reports every problem with c.
func (c Config) Validate() error {
	var err error
	if c.Tick <= 0 {
		err = errors.Join(err, errors.New("tick must be positive"))
	}
	if c.Period < c.Tick {
		err = errors.Join(err, fmt.Errorf("period (%s) must be at least one tick (%s)", c.Period, c.Tick))
	}
	if c.Tasks < 0 {
		err = errors.Join(err, errors.New("tasks must not be negative"))
	}
	if c.Tasks > 0 {
		if c.TaskInterval < c.Period {
			err = errors.Join(err, fmt.Errorf(
				"task interval (%s) must not be shorter than the period (%s)", c.TaskInterval, c.Period,
			))
		}
		if c.CheckinEvery <= 0 || c.CheckinEvery > c.TaskInterval {
			err = errors.Join(err, errors.New("checkin-every must be positive and no longer than the task interval"))
		}
	}
	if c.HangAfter < 0 {
		err = errors.Join(err, errors.New("hang-after must not be negative"))
	}
	return err
}
