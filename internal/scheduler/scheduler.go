// Package scheduler drives periodic probe execution, one independent loop
// per target.
package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/rust-practice/conn-mon/internal/health"
	"github.com/rust-practice/conn-mon/internal/probe"
	"github.com/rust-practice/conn-mon/internal/window"
)

// tickJitterFraction spreads each tick by up to ±10% of the interval so
// many targets never fire in lockstep.
const tickJitterFraction = 0.1

// RetryPolicy describes the immediate retries applied after a failed probe
// attempt within one tick. It is a pure value: Delay exposes the backoff
// sequence so the scheduler can wait on its own clock.
type RetryPolicy struct {
	// Attempts is the number of retries after the initial attempt.
	Attempts int
	// Backoff is the delay before the first retry; each further retry
	// doubles it.
	Backoff time.Duration
	// MaxBackoff caps the doubling. Zero means uncapped.
	MaxBackoff time.Duration
}

// Delay returns the wait before the given retry, 1-based.
func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry < 1 || p.Backoff <= 0 {
		return 0
	}
	delay := p.Backoff
	for i := 1; i < retry; i++ {
		delay *= 2
		if p.MaxBackoff > 0 && delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// Target is one monitored endpoint with its probe policy and thresholds.
// Immutable after construction; only the owning loop touches its runtime
// state.
type Target struct {
	Name       string
	Address    string
	Interval   time.Duration
	Timeout    time.Duration
	Retry      RetryPolicy
	Thresholds health.Thresholds
	WindowSize int
	MinSamples int
}

// TargetStats is the periodic per-target push toward reporters, combining
// the latest sample with the current window statistics and health state.
type TargetStats struct {
	Target     string
	Address    string
	State      health.State
	Stats      window.Stats
	Sufficient bool
	LastSample probe.Sample
}

// Loop owns one target's schedule, window, and health machine. Exactly one
// probe (including its retries) is in flight at a time; because the next
// tick is armed only after the previous probe completes, overlapping ticks
// are skipped rather than queued.
type Loop struct {
	target  Target
	prober  probe.Prober
	clk     clock.Clock
	rng     *rand.Rand
	win     *window.Window
	machine *health.Machine
	events  chan<- health.Event
	stats   chan<- TargetStats
	log     *zap.Logger
}

// NewLoop builds a loop for target. The events and stats channels flow to
// the supervisor; sends never block shutdown.
func NewLoop(target Target, prober probe.Prober, clk clock.Clock,
	events chan<- health.Event, stats chan<- TargetStats, log *zap.Logger) *Loop {
	return &Loop{
		target:  target,
		prober:  prober,
		clk:     clk,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(len(target.Name)))),
		win:     window.New(target.WindowSize, target.MinSamples),
		machine: health.NewMachine(target.Name, target.Address, target.Thresholds),
		events:  events,
		stats:   stats,
		log:     log.With(zap.String("target", target.Name)),
	}
}

// State returns the loop's current health state.
func (l *Loop) State() health.State {
	return l.machine.State()
}

// Run executes the schedule until ctx is cancelled. An in-flight probe is
// drained before returning; the probe's own timeout bounds that wait.
func (l *Loop) Run(ctx context.Context) {
	for {
		timer := l.clk.Timer(l.jitteredInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		sample := l.probeWithRetry(ctx)
		l.ingest(ctx, sample)

		if ctx.Err() != nil {
			return
		}
	}
}

// probeWithRetry performs the tick's probe, retrying failures per policy
// with exponential backoff. When retries exhaust, the final attempt's
// failure stands as the tick's sample.
func (l *Loop) probeWithRetry(ctx context.Context) probe.Sample {
	sample := l.prober.Probe(ctx, l.target.Address, l.target.Timeout)
	for retry := 1; sample.Outcome.Failed() && retry <= l.target.Retry.Attempts; retry++ {
		if ctx.Err() != nil {
			break
		}
		l.log.Debug("probe attempt failed, retrying",
			zap.Int("retry", retry),
			zap.String("outcome", sample.Outcome.String()),
			zap.Error(sample.Err))

		if delay := l.target.Retry.Delay(retry); delay > 0 {
			timer := l.clk.Timer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return sample
			case <-timer.C:
			}
		}
		sample = l.prober.Probe(ctx, l.target.Address, l.target.Timeout)
	}
	return sample
}

// ingest records the sample, re-evaluates health, and pushes the results
// outward.
func (l *Loop) ingest(ctx context.Context, sample probe.Sample) {
	if sample.Outcome == probe.OutcomeError {
		l.log.Warn("probe error", zap.Error(sample.Err))
	}

	l.win.Ingest(sample)
	stats, err := l.win.Snapshot(l.clk.Now())

	if ev, changed := l.machine.Evaluate(stats, err); changed {
		l.log.Info("health transition",
			zap.Stringer("from", ev.From),
			zap.Stringer("to", ev.To),
			zap.Float64("loss", ev.Stats.LossRatio),
			zap.Duration("p95", ev.Stats.P95))
		select {
		case l.events <- ev:
		case <-ctx.Done():
			return
		}
	}

	push := TargetStats{
		Target:     l.target.Name,
		Address:    l.target.Address,
		State:      l.machine.State(),
		Stats:      stats,
		Sufficient: err == nil,
		LastSample: sample,
	}
	select {
	case l.stats <- push:
	case <-ctx.Done():
	}
}

func (l *Loop) jitteredInterval() time.Duration {
	interval := l.target.Interval
	if interval <= 0 {
		interval = time.Second
	}
	jitter := (l.rng.Float64()*2 - 1) * tickJitterFraction * float64(interval)
	return interval + time.Duration(jitter)
}
