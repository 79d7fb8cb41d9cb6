// Package report receives events and statistics flowing out of the engine
// and delivers them to log, disk, notification, metrics, and UI consumers.
package report

import (
	"fmt"

	"github.com/rust-practice/conn-mon/internal/health"
	"github.com/rust-practice/conn-mon/internal/scheduler"
)

// Reporter consumes engine output. Implementations must not block for long;
// the engine calls them from its forwarding goroutine.
type Reporter interface {
	// PublishEvent delivers a health state transition. Ownership of the
	// event passes to the reporter.
	PublishEvent(ev health.Event)
	// PublishStats delivers a periodic per-target statistics push.
	PublishStats(ts scheduler.TargetStats)
}

// Multi fans engine output to several reporters in order.
type Multi []Reporter

func (m Multi) PublishEvent(ev health.Event) {
	for _, r := range m {
		r.PublishEvent(ev)
	}
}

func (m Multi) PublishStats(ts scheduler.TargetStats) {
	for _, r := range m {
		r.PublishStats(ts)
	}
}

// FormatEvent renders a transition for human-facing notification channels.
func FormatEvent(ev health.Event) string {
	return fmt.Sprintf("%s - %s (%s) %s -> %s (loss %.0f%%, p95 %s)",
		ev.At.Format("2006-01-02 15:04:05"),
		ev.Target, ev.Address, ev.From, ev.To,
		ev.Stats.LossRatio*100, ev.Stats.P95)
}
