package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rust-practice/conn-mon/internal/window"
)

func testThresholds() Thresholds {
	return Thresholds{
		DegradedLoss:    0.2,
		UnreachableLoss: 0.8,
		DegradedLatency: 300 * time.Millisecond,
		RecoveryStreak:  3,
	}
}

func stats(loss float64, p95 time.Duration) window.Stats {
	successes := 10
	if loss >= 1 {
		successes = 0
	}
	return window.Stats{
		Taken:     time.Now(),
		Count:     10,
		Successes: successes,
		LossRatio: loss,
		P95:       p95,
	}
}

func TestInsufficientDataHoldsState(t *testing.T) {
	m := NewMachine("t", "192.0.2.1", testThresholds())

	_, changed := m.Evaluate(window.Stats{}, window.ErrInsufficientData)
	assert.False(t, changed)
	assert.Equal(t, StateUnknown, m.State())

	// Also from a non-initial state.
	m.Evaluate(stats(0, 10*time.Millisecond), nil)
	require.Equal(t, StateHealthy, m.State())
	_, changed = m.Evaluate(window.Stats{}, window.ErrInsufficientData)
	assert.False(t, changed)
	assert.Equal(t, StateHealthy, m.State())
}

func TestUnknownToHealthy(t *testing.T) {
	m := NewMachine("t", "192.0.2.1", testThresholds())

	ev, changed := m.Evaluate(stats(0.1, 50*time.Millisecond), nil)
	require.True(t, changed)
	assert.Equal(t, StateUnknown, ev.From)
	assert.Equal(t, StateHealthy, ev.To)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "t", ev.Target)
}

func TestHealthyToDegradedOnLoss(t *testing.T) {
	m := NewMachine("t", "192.0.2.1", testThresholds())
	m.Evaluate(stats(0, 10*time.Millisecond), nil)

	// 3 timeouts in a window of 10.
	ev, changed := m.Evaluate(stats(0.3, 10*time.Millisecond), nil)
	require.True(t, changed)
	assert.Equal(t, StateHealthy, ev.From)
	assert.Equal(t, StateDegraded, ev.To)
}

func TestHealthyToDegradedOnLatency(t *testing.T) {
	m := NewMachine("t", "192.0.2.1", testThresholds())
	m.Evaluate(stats(0, 10*time.Millisecond), nil)

	_, changed := m.Evaluate(stats(0, 500*time.Millisecond), nil)
	require.True(t, changed)
	assert.Equal(t, StateDegraded, m.State())
}

func TestThresholdBoundaryIsInclusive(t *testing.T) {
	m := NewMachine("t", "192.0.2.1", testThresholds())
	m.Evaluate(stats(0, 10*time.Millisecond), nil)

	// Exactly at the degraded loss threshold counts as breaching.
	_, changed := m.Evaluate(stats(0.2, 10*time.Millisecond), nil)
	require.True(t, changed)
	assert.Equal(t, StateDegraded, m.State())

	// Exactly at the unreachable loss threshold.
	_, changed = m.Evaluate(stats(0.8, 10*time.Millisecond), nil)
	require.True(t, changed)
	assert.Equal(t, StateUnreachable, m.State())
}

func TestDegradedToUnreachable(t *testing.T) {
	m := NewMachine("t", "192.0.2.1", testThresholds())
	m.Evaluate(stats(0, 10*time.Millisecond), nil)
	m.Evaluate(stats(0.3, 10*time.Millisecond), nil)
	require.Equal(t, StateDegraded, m.State())

	ev, changed := m.Evaluate(stats(1.0, 0), nil)
	require.True(t, changed)
	assert.Equal(t, StateDegraded, ev.From)
	assert.Equal(t, StateUnreachable, ev.To)
}

func TestRecoveryRequiresStreak(t *testing.T) {
	m := NewMachine("t", "192.0.2.1", testThresholds())
	m.Evaluate(stats(0, 10*time.Millisecond), nil)
	m.Evaluate(stats(0.3, 10*time.Millisecond), nil)
	require.Equal(t, StateDegraded, m.State())

	clean := stats(0, 10*time.Millisecond)
	events := 0
	for i := 0; i < 3; i++ {
		if _, changed := m.Evaluate(clean, nil); changed {
			events++
		}
	}
	assert.Equal(t, StateHealthy, m.State())
	assert.Equal(t, 1, events, "recovery must emit exactly one event")
}

func TestBreachResetsRecoveryStreak(t *testing.T) {
	m := NewMachine("t", "192.0.2.1", testThresholds())
	m.Evaluate(stats(0, 10*time.Millisecond), nil)
	m.Evaluate(stats(0.3, 10*time.Millisecond), nil)

	clean := stats(0, 10*time.Millisecond)
	m.Evaluate(clean, nil)
	m.Evaluate(clean, nil)
	m.Evaluate(stats(0.3, 10*time.Millisecond), nil) // streak broken
	m.Evaluate(clean, nil)
	m.Evaluate(clean, nil)
	assert.Equal(t, StateDegraded, m.State())

	_, changed := m.Evaluate(clean, nil)
	require.True(t, changed)
	assert.Equal(t, StateHealthy, m.State())
}

func TestUnreachableRecovery(t *testing.T) {
	m := NewMachine("t", "192.0.2.1", testThresholds())
	m.Evaluate(stats(0, 10*time.Millisecond), nil)
	m.Evaluate(stats(1.0, 0), nil)
	require.Equal(t, StateUnreachable, m.State())

	// Partial recovery: loss back under the unreachable bound but still lossy.
	_, changed := m.Evaluate(stats(0.5, 10*time.Millisecond), nil)
	require.True(t, changed)
	assert.Equal(t, StateDegraded, m.State())
}

func TestNoEventWithoutChange(t *testing.T) {
	m := NewMachine("t", "192.0.2.1", testThresholds())
	m.Evaluate(stats(0, 10*time.Millisecond), nil)

	for i := 0; i < 5; i++ {
		_, changed := m.Evaluate(stats(0, 10*time.Millisecond), nil)
		assert.False(t, changed)
	}

	m.Evaluate(stats(0.3, 10*time.Millisecond), nil)
	for i := 0; i < 5; i++ {
		_, changed := m.Evaluate(stats(0.3, 10*time.Millisecond), nil)
		assert.False(t, changed)
	}
}

func TestJitterTriggerWhenConfigured(t *testing.T) {
	th := testThresholds()
	th.MaxJitter = 100 * time.Millisecond
	m := NewMachine("t", "192.0.2.1", th)
	m.Evaluate(stats(0, 10*time.Millisecond), nil)

	jittery := stats(0, 10*time.Millisecond)
	jittery.Jitter = 150 * time.Millisecond
	_, changed := m.Evaluate(jittery, nil)
	require.True(t, changed)
	assert.Equal(t, StateDegraded, m.State())
}

func TestJitterIgnoredWhenZero(t *testing.T) {
	m := NewMachine("t", "192.0.2.1", testThresholds())
	m.Evaluate(stats(0, 10*time.Millisecond), nil)

	jittery := stats(0, 10*time.Millisecond)
	jittery.Jitter = time.Second
	_, changed := m.Evaluate(jittery, nil)
	assert.False(t, changed)
	assert.Equal(t, StateHealthy, m.State())
}

func TestAllLossWindowSkipsLatencyCheck(t *testing.T) {
	// A window with zero successes has no percentile data; only loss should
	// drive the decision.
	m := NewMachine("t", "192.0.2.1", testThresholds())
	s := window.Stats{Taken: time.Now(), Count: 10, Successes: 0, LossRatio: 1.0}
	_, changed := m.Evaluate(s, nil)
	require.True(t, changed)
	assert.Equal(t, StateUnreachable, m.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "healthy", StateHealthy.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "unreachable", StateUnreachable.String())
}
