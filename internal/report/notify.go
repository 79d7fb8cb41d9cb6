package report

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rust-practice/conn-mon/internal/health"
	"github.com/rust-practice/conn-mon/internal/scheduler"
)

const notifyTimeout = 30 * time.Second

// Notifier delivers one human-readable message to an external channel.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// NotifyReporter forwards transition events to notification channels. A
// message counts as delivered when any channel accepts it; total failure is
// logged, never escalated.
type NotifyReporter struct {
	notifiers []Notifier
	log       *zap.Logger
}

// NewNotifyReporter returns a reporter fanning out to notifiers.
func NewNotifyReporter(log *zap.Logger, notifiers ...Notifier) *NotifyReporter {
	return &NotifyReporter{notifiers: notifiers, log: log.Named("notify")}
}

func (r *NotifyReporter) PublishEvent(ev health.Event) {
	r.Send(FormatEvent(ev))
}

func (r *NotifyReporter) PublishStats(scheduler.TargetStats) {}

// Send pushes msg through every channel, logging per-channel failures.
func (r *NotifyReporter) Send(msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	delivered := false
	for _, n := range r.notifiers {
		if err := n.Notify(ctx, msg); err != nil {
			r.log.Error("notification channel failed", zap.Error(err))
			continue
		}
		delivered = true
	}
	if !delivered && len(r.notifiers) > 0 {
		r.log.Error("all notification channels failed", zap.String("message", msg))
	}
}

// SendStartup announces startup, exercising every channel once so broken
// configuration surfaces immediately.
func (r *NotifyReporter) SendStartup() {
	if len(r.notifiers) == 0 {
		return
	}
	r.Send(time.Now().Format("2006-01-02 15:04:05") + " - conn-mon started")
}
