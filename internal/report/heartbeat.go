package report

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Heartbeat periodically announces that the monitor itself is alive, so a
// silent notification channel can be told apart from a healthy network.
type Heartbeat struct {
	cron     *cron.Cron
	start    time.Time
	reporter *NotifyReporter
	log      *zap.Logger
}

// NewHeartbeat schedules an alive message on the given cron spec (for
// example "0 9 * * *" for 09:00 daily).
func NewHeartbeat(spec string, reporter *NotifyReporter, log *zap.Logger) (*Heartbeat, error) {
	h := &Heartbeat{
		cron:     cron.New(),
		start:    time.Now(),
		reporter: reporter,
		log:      log.Named("heartbeat"),
	}
	if _, err := h.cron.AddFunc(spec, h.beat); err != nil {
		return nil, fmt.Errorf("heartbeat schedule %q: %w", spec, err)
	}
	return h, nil
}

// Start begins the schedule.
func (h *Heartbeat) Start() {
	h.cron.Start()
}

// Stop halts the schedule, waiting for a running beat to finish.
func (h *Heartbeat) Stop() {
	<-h.cron.Stop().Done()
}

func (h *Heartbeat) beat() {
	uptime := time.Since(h.start).Round(time.Second)
	h.log.Info("heartbeat", zap.Duration("uptime", uptime))
	h.reporter.Send(fmt.Sprintf("conn-mon alive, uptime %s", uptime))
}
