// Package health turns window statistics into a qualitative connection state
// and emits events on transitions.
package health

import (
	"time"

	"github.com/google/uuid"

	"github.com/rust-practice/conn-mon/internal/window"
)

// State is the qualitative health of one target.
type State int

const (
	// StateUnknown holds until the window reaches its minimum sample count.
	StateUnknown State = iota
	StateHealthy
	StateDegraded
	StateUnreachable
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Thresholds are the per-target alerting limits. Values exactly at a
// threshold count as breaching.
type Thresholds struct {
	// DegradedLoss is the loss ratio at which a target degrades.
	DegradedLoss float64
	// UnreachableLoss is the loss ratio at which a target is unreachable.
	UnreachableLoss float64
	// DegradedLatency is the p95 latency at which a target degrades.
	DegradedLatency time.Duration
	// MaxJitter degrades a target when breached. Zero disables the check.
	MaxJitter time.Duration
	// RecoveryStreak is the number of consecutive clean snapshots required
	// before a degraded or unreachable target is declared healthy again.
	RecoveryStreak int
}

// Event records a single state transition. Ownership passes to the reporting
// side once emitted.
type Event struct {
	ID      string
	Target  string
	Address string
	From    State
	To      State
	At      time.Time
	Stats   window.Stats
}

// Machine evaluates snapshots against thresholds for one target. It is owned
// by that target's scheduling loop and must not be shared.
type Machine struct {
	target      string
	address     string
	thresholds  Thresholds
	state       State
	cleanStreak int
}

// NewMachine returns a machine in StateUnknown.
func NewMachine(target, address string, thresholds Thresholds) *Machine {
	if thresholds.RecoveryStreak < 1 {
		thresholds.RecoveryStreak = 1
	}
	return &Machine{target: target, address: address, thresholds: thresholds}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Evaluate applies one snapshot. snapshotErr carries
// window.ErrInsufficientData for young windows, which holds the current
// state. The returned bool is true only when the state actually changed;
// repeated evaluations yielding the same state emit nothing.
func (m *Machine) Evaluate(stats window.Stats, snapshotErr error) (Event, bool) {
	if snapshotErr != nil {
		return Event{}, false
	}

	unreachable := stats.LossRatio >= m.thresholds.UnreachableLoss
	degraded := m.breachesDegraded(stats)
	clean := !unreachable && !degraded

	if clean {
		m.cleanStreak++
	} else {
		m.cleanStreak = 0
	}

	next := m.next(unreachable, degraded, clean)
	if next == m.state {
		return Event{}, false
	}

	ev := Event{
		ID:      uuid.NewString(),
		Target:  m.target,
		Address: m.address,
		From:    m.state,
		To:      next,
		At:      stats.Taken,
		Stats:   stats,
	}
	m.state = next
	return ev, true
}

func (m *Machine) breachesDegraded(stats window.Stats) bool {
	if stats.LossRatio >= m.thresholds.DegradedLoss {
		return true
	}
	if m.thresholds.DegradedLatency > 0 && stats.Successes > 0 && stats.P95 >= m.thresholds.DegradedLatency {
		return true
	}
	if m.thresholds.MaxJitter > 0 && stats.Jitter >= m.thresholds.MaxJitter {
		return true
	}
	return false
}

// next encodes the transition table. Worsening transitions take effect on
// the first breaching snapshot; recovery to healthy is gated by the
// configured streak so single clean snapshots cannot cause flapping.
func (m *Machine) next(unreachable, degraded, clean bool) State {
	switch m.state {
	case StateUnknown:
		switch {
		case unreachable:
			return StateUnreachable
		case degraded:
			return StateDegraded
		default:
			return StateHealthy
		}
	case StateHealthy:
		switch {
		case unreachable:
			return StateUnreachable
		case degraded:
			return StateDegraded
		}
	case StateDegraded:
		switch {
		case unreachable:
			return StateUnreachable
		case clean && m.cleanStreak >= m.thresholds.RecoveryStreak:
			return StateHealthy
		}
	case StateUnreachable:
		switch {
		case clean && m.cleanStreak >= m.thresholds.RecoveryStreak:
			return StateHealthy
		case !unreachable && degraded:
			return StateDegraded
		}
	}
	return m.state
}
