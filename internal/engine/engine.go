// Package engine composes the per-target scheduling loops and fans their
// output to the configured reporters.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rust-practice/conn-mon/internal/health"
	"github.com/rust-practice/conn-mon/internal/probe"
	"github.com/rust-practice/conn-mon/internal/report"
	"github.com/rust-practice/conn-mon/internal/scheduler"
)

const (
	defaultShutdownGrace = 5 * time.Second
	eventBuffer          = 64
	statsBuffer          = 256
)

// ErrShutdownTimeout reports that one or more target loops did not drain
// before the shutdown deadline and were abandoned.
var ErrShutdownTimeout = errors.New("engine: shutdown deadline exceeded, loops abandoned")

// Options tune the supervisor.
type Options struct {
	// Clock defaults to the real clock.
	Clock clock.Clock
	// ShutdownGrace bounds how long Run waits for loops to drain after
	// cancellation.
	ShutdownGrace time.Duration
}

// Engine supervises one scheduling loop per target and forwards their
// events and statistics to the reporter.
type Engine struct {
	targets  []scheduler.Target
	prober   probe.Prober
	reporter report.Reporter
	clk      clock.Clock
	grace    time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New builds an engine. The target list is treated as immutable.
func New(targets []scheduler.Target, prober probe.Prober, reporter report.Reporter,
	log *zap.Logger, opts Options) *Engine {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	grace := opts.ShutdownGrace
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	return &Engine{
		targets:  targets,
		prober:   prober,
		reporter: reporter,
		clk:      clk,
		grace:    grace,
		log:      log.Named("engine"),
	}
}

// Run starts every target loop and blocks until ctx is cancelled or Stop is
// called, then drains the loops within the shutdown grace. A loop whose
// in-flight probe outlives the deadline is abandoned rather than blocking
// exit.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
	}()

	events := make(chan health.Event, eventBuffer)
	stats := make(chan scheduler.TargetStats, statsBuffer)

	var wg sync.WaitGroup
	for _, target := range e.targets {
		loop := scheduler.NewLoop(target, e.prober, e.clk, events, stats, e.log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop.Run(runCtx)
		}()
	}
	e.log.Info("engine started", zap.Int("targets", len(e.targets)))

	stopForward := make(chan struct{})
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		e.forward(events, stats, stopForward)
	}()

	<-runCtx.Done()

	loopsDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(loopsDone)
	}()

	var drainErr error
	deadline := e.clk.Timer(e.grace)
	select {
	case <-loopsDone:
		deadline.Stop()
	case <-deadline.C:
		e.log.Warn("shutdown deadline exceeded, abandoning in-flight probes",
			zap.Duration("grace", e.grace))
		drainErr = ErrShutdownTimeout
	}

	// Stop forwarding after the loops are done or abandoned. The channels
	// are never closed: an abandoned loop may still attempt a send, and
	// its per-send select on ctx.Done keeps that from blocking forever.
	close(stopForward)
	<-forwardDone

	e.log.Info("engine stopped")
	return multierr.Append(runCtx.Err(), drainErr)
}

// Stop cancels a running engine. It is safe to call at any time.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// forward multiplexes loop output into the reporter until stopped, then
// drains whatever is already buffered.
func (e *Engine) forward(events <-chan health.Event, stats <-chan scheduler.TargetStats, stop <-chan struct{}) {
	for {
		select {
		case ev := <-events:
			e.reporter.PublishEvent(ev)
		case ts := <-stats:
			e.reporter.PublishStats(ts)
		case <-stop:
			for {
				select {
				case ev := <-events:
					e.reporter.PublishEvent(ev)
				case ts := <-stats:
					e.reporter.PublishStats(ts)
				default:
					return
				}
			}
		}
	}
}
