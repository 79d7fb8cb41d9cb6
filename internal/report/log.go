package report

import (
	"go.uber.org/zap"

	"github.com/rust-practice/conn-mon/internal/health"
	"github.com/rust-practice/conn-mon/internal/scheduler"
)

// LogReporter writes transitions and statistics as structured log lines.
type LogReporter struct {
	log *zap.Logger
}

// NewLogReporter returns a reporter backed by log.
func NewLogReporter(log *zap.Logger) *LogReporter {
	return &LogReporter{log: log.Named("report")}
}

func (r *LogReporter) PublishEvent(ev health.Event) {
	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("target", ev.Target),
		zap.String("address", ev.Address),
		zap.Stringer("from", ev.From),
		zap.Stringer("to", ev.To),
		zap.Float64("loss_ratio", ev.Stats.LossRatio),
		zap.Duration("p95", ev.Stats.P95),
		zap.Duration("jitter", ev.Stats.Jitter),
	}
	switch ev.To {
	case health.StateHealthy:
		r.log.Info("target recovered", fields...)
	case health.StateUnreachable:
		r.log.Error("target unreachable", fields...)
	default:
		r.log.Warn("target degraded", fields...)
	}
}

func (r *LogReporter) PublishStats(ts scheduler.TargetStats) {
	if !ts.Sufficient {
		return
	}
	r.log.Debug("target stats",
		zap.String("target", ts.Target),
		zap.Stringer("state", ts.State),
		zap.Int("samples", ts.Stats.Count),
		zap.Float64("loss_ratio", ts.Stats.LossRatio),
		zap.Duration("p50", ts.Stats.P50),
		zap.Duration("p95", ts.Stats.P95),
		zap.Duration("p99", ts.Stats.P99),
		zap.Duration("jitter", ts.Stats.Jitter))
}
