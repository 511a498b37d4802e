// Package gsdemo runs simulated tasks under a sanity supervisor,
// for the gsanity-demo command.
package gsdemo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gordian-engine/gsanity/gsanity"
	"github.com/gordian-engine/gsanity/gtick"
	"github.com/prometheus/client_golang/prometheus"
)

// Run starts a supervisor watching the simulated tasks described by cfg.
// It blocks until ctx is cancelled, returning nil,
// or until the supervisor's fatal action fires, returning the fatal cause.
func Run(ctx context.Context, log *slog.Logger, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid demo configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clock := gtick.NewWallClock(cfg.Tick)
	promReg := prometheus.NewRegistry()

	sup, sCtx, err := gsanity.NewSupervisor(ctx, log.With("sys", "supervisor"), gsanity.SupervisorConfig{
		Period:    cfg.Period,
		Clock:     clock,
		Scheduler: gsanity.TickerScheduler{Clock: clock},
		Metrics:   gsanity.NewMetrics(promReg),
		FatalAction: gsanity.FatalActionFunc(func(cause error) {
			// A real system would reset here.
			// The demo returns the cause from Run instead.
			log.Error("Fatal action invoked", "cause", cause)
		}),
	})
	if err != nil {
		return err
	}

	// Deferred calls run in reverse:
	// cancel the tasks, wait for them, then wait for the supervisor.
	var wg sync.WaitGroup
	defer sup.Wait()
	defer wg.Wait()
	defer cancel()

	interval := gtick.ToTicks(clock, cfg.TaskInterval)
	recs := make([]gsanity.Record, cfg.Tasks)
	for i := range recs {
		name := fmt.Sprintf("task-%d", i)
		recs[i].Init(name, clock, interval)
		if err := sup.Register(ctx, &recs[i]); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}

		var hangAfter time.Duration
		if name == cfg.HangTask {
			hangAfter = cfg.HangAfter
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			runTask(ctx, log.With("task", name), &recs[i], cfg.CheckinEvery, hangAfter)
		}()
	}

	if cfg.SignalTolerance > 0 {
		e := gsanity.NewSignalEvaluator()
		var rec gsanity.Record
		rec.Init("signal-subsystem", clock, 0)
		rec.SetEvaluator(e, cfg.SignalTolerance)
		if err := sup.Register(ctx, &rec); err != nil {
			return fmt.Errorf("failed to register signal subsystem: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			runSignalSubsystem(ctx, e)
		}()
	}

	if cfg.HTTPAddr != "" {
		ln, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.HTTPAddr, err)
		}
		log.Info("Serving status and metrics", "addr", ln.Addr().String())

		srv := &http.Server{
			Handler:           NewHandler(log.With("sys", "http"), sup, promReg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("HTTP server stopped", "err", err)
			}
		}()
		defer func() {
			sdCtx, sdCancel := context.WithTimeout(context.Background(), time.Second)
			defer sdCancel()
			_ = srv.Shutdown(sdCtx)
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("Stopping due to context cancellation", "cause", context.Cause(ctx))
		return nil
	case <-sCtx.Done():
		if gsanity.IsFatal(sCtx) {
			return context.Cause(sCtx)
		}
		return nil
	}
}
