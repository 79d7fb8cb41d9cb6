package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rust-practice/conn-mon/internal/health"
	"github.com/rust-practice/conn-mon/internal/probe"
)

// recordingProber returns a fixed outcome and records call times.
type recordingProber struct {
	mu      sync.Mutex
	outcome probe.Outcome
	rtt     time.Duration
	calls   []time.Time
}

func (p *recordingProber) Probe(ctx context.Context, addr string, timeout time.Duration) probe.Sample {
	p.mu.Lock()
	p.calls = append(p.calls, time.Now())
	p.mu.Unlock()
	if p.outcome == probe.OutcomeSuccess {
		return probe.Sample{At: time.Now(), RTT: p.rtt, Outcome: probe.OutcomeSuccess}
	}
	return probe.Sample{At: time.Now(), Outcome: p.outcome, Err: context.DeadlineExceeded}
}

func (p *recordingProber) callTimes() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]time.Time, len(p.calls))
	copy(out, p.calls)
	return out
}

// blockingProber blocks until its context is cancelled.
type blockingProber struct {
	started chan struct{}
	once    sync.Once
}

func (p *blockingProber) Probe(ctx context.Context, addr string, timeout time.Duration) probe.Sample {
	p.once.Do(func() { close(p.started) })
	<-ctx.Done()
	return probe.Sample{At: time.Now(), Outcome: probe.OutcomeTimeout, Err: ctx.Err()}
}

func testTarget() Target {
	return Target{
		Name:     "test",
		Address:  "192.0.2.1",
		Interval: 5 * time.Millisecond,
		Timeout:  5 * time.Millisecond,
		Thresholds: health.Thresholds{
			DegradedLoss:    0.2,
			UnreachableLoss: 0.8,
			RecoveryStreak:  3,
		},
		WindowSize: 10,
		MinSamples: 3,
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{Attempts: 4, Backoff: 100 * time.Millisecond, MaxBackoff: 500 * time.Millisecond}

	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, 500*time.Millisecond, p.Delay(4), "doubling is capped")
	assert.Equal(t, 500*time.Millisecond, p.Delay(10))
}

func TestRetryPolicyDelayUncapped(t *testing.T) {
	p := RetryPolicy{Attempts: 3, Backoff: 10 * time.Millisecond}
	assert.Equal(t, 40*time.Millisecond, p.Delay(3))
}

func TestRetryPolicyDelayZeroBackoff(t *testing.T) {
	p := RetryPolicy{Attempts: 3}
	assert.Equal(t, time.Duration(0), p.Delay(1))
}

func TestLoopRetriesThenRecordsOneSample(t *testing.T) {
	prober := &recordingProber{outcome: probe.OutcomeTimeout}
	events := make(chan health.Event, 8)
	stats := make(chan TargetStats, 8)

	target := testTarget()
	target.Retry = RetryPolicy{Attempts: 2, Backoff: time.Millisecond}
	loop := NewLoop(target, prober, clock.New(), events, stats, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	// One tick yields exactly one stats push despite three attempts.
	push := <-stats
	cancel()

	assert.Equal(t, 1, push.Stats.Count)
	assert.Equal(t, probe.OutcomeTimeout, push.LastSample.Outcome)
	assert.GreaterOrEqual(t, len(prober.callTimes()), 3)
}

func TestLoopBackoffDelaysIncrease(t *testing.T) {
	prober := &recordingProber{outcome: probe.OutcomeTimeout}
	events := make(chan health.Event, 8)
	stats := make(chan TargetStats, 8)

	target := testTarget()
	target.Interval = time.Millisecond
	target.Retry = RetryPolicy{Attempts: 2, Backoff: 20 * time.Millisecond}
	loop := NewLoop(target, prober, clock.New(), events, stats, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	<-stats
	cancel()

	calls := prober.callTimes()
	require.GreaterOrEqual(t, len(calls), 3)
	firstGap := calls[1].Sub(calls[0])
	secondGap := calls[2].Sub(calls[1])
	assert.GreaterOrEqual(t, firstGap, 15*time.Millisecond)
	assert.GreaterOrEqual(t, secondGap, 30*time.Millisecond)
	assert.Greater(t, secondGap, firstGap)
}

func TestLoopBoundedRetryDuration(t *testing.T) {
	prober := &recordingProber{outcome: probe.OutcomeTimeout}
	events := make(chan health.Event, 8)
	stats := make(chan TargetStats, 8)

	target := testTarget()
	target.Interval = time.Millisecond
	target.Retry = RetryPolicy{Attempts: 3, Backoff: 2 * time.Millisecond}
	loop := NewLoop(target, prober, clock.New(), events, stats, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	start := time.Now()
	<-stats
	elapsed := time.Since(start)

	// timeout*attempts + cumulative backoff + margin:
	// 4 probes return immediately, backoffs 2+4+8=14ms, interval ~1ms.
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestLoopStopsDuringInFlightProbe(t *testing.T) {
	prober := &blockingProber{started: make(chan struct{})}
	events := make(chan health.Event, 8)
	stats := make(chan TargetStats, 8)

	target := testTarget()
	target.Interval = time.Millisecond
	loop := NewLoop(target, prober, clock.New(), events, stats, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	<-prober.started
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not terminate after cancellation")
	}
}

func TestLoopEmitsTransitionEvents(t *testing.T) {
	prober := &recordingProber{outcome: probe.OutcomeSuccess, rtt: time.Millisecond}
	events := make(chan health.Event, 8)
	stats := make(chan TargetStats, 64)

	target := testTarget()
	target.Interval = time.Millisecond
	loop := NewLoop(target, prober, clock.New(), events, stats, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	select {
	case ev := <-events:
		assert.Equal(t, health.StateUnknown, ev.From)
		assert.Equal(t, health.StateHealthy, ev.To)
		assert.Equal(t, "test", ev.Target)
	case <-time.After(time.Second):
		t.Fatal("no transition event received")
	}

	// Continued success produces no further events.
	select {
	case ev := <-events:
		t.Fatalf("unexpected event: %s -> %s", ev.From, ev.To)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJitteredIntervalStaysWithinBounds(t *testing.T) {
	target := testTarget()
	target.Interval = 100 * time.Millisecond
	loop := NewLoop(target, &recordingProber{}, clock.New(),
		make(chan health.Event, 1), make(chan TargetStats, 1), zap.NewNop())

	for i := 0; i < 1000; i++ {
		interval := loop.jitteredInterval()
		assert.GreaterOrEqual(t, interval, 90*time.Millisecond)
		assert.LessOrEqual(t, interval, 110*time.Millisecond)
	}
}
