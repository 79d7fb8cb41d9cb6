// Package metrics exposes probe and health data in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rust-practice/conn-mon/internal/health"
	"github.com/rust-practice/conn-mon/internal/scheduler"
)

// Collector is a report.Reporter that maintains Prometheus metrics from
// pushed events and statistics.
type Collector struct {
	registry *prometheus.Registry

	up          *prometheus.GaugeVec
	state       *prometheus.GaugeVec
	lossRatio   *prometheus.GaugeVec
	rttSeconds  *prometheus.GaugeVec
	jitter      *prometheus.GaugeVec
	samples     *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewCollector registers the conn-mon metric set on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conn_mon_target_up",
			Help: "1 when the target's last probe succeeded.",
		}, []string{"target", "address"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conn_mon_target_state",
			Help: "Health state: 0 unknown, 1 healthy, 2 degraded, 3 unreachable.",
		}, []string{"target", "address"}),
		lossRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conn_mon_loss_ratio",
			Help: "Loss ratio over the current sample window.",
		}, []string{"target", "address"}),
		rttSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conn_mon_rtt_seconds",
			Help: "Round-trip latency percentiles over the current window.",
		}, []string{"target", "address", "quantile"}),
		jitter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conn_mon_jitter_seconds",
			Help: "Mean absolute successive latency deviation over the current window.",
		}, []string{"target", "address"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conn_mon_samples_total",
			Help: "Probe samples recorded, by outcome.",
		}, []string{"target", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conn_mon_transitions_total",
			Help: "Health state transitions, by resulting state.",
		}, []string{"target", "to"}),
	}
	c.registry.MustRegister(c.up, c.state, c.lossRatio, c.rttSeconds, c.jitter,
		c.samples, c.transitions)
	return c
}

// Registry exposes the collector's registry for serving.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) PublishEvent(ev health.Event) {
	c.transitions.WithLabelValues(ev.Target, ev.To.String()).Inc()
}

func (c *Collector) PublishStats(ts scheduler.TargetStats) {
	labels := []string{ts.Target, ts.Address}

	up := 0.0
	if !ts.LastSample.Outcome.Failed() {
		up = 1.0
	}
	c.up.WithLabelValues(labels...).Set(up)
	c.state.WithLabelValues(labels...).Set(float64(ts.State))
	c.samples.WithLabelValues(ts.Target, ts.LastSample.Outcome.String()).Inc()

	if !ts.Sufficient {
		return
	}
	c.lossRatio.WithLabelValues(labels...).Set(ts.Stats.LossRatio)
	c.jitter.WithLabelValues(labels...).Set(ts.Stats.Jitter.Seconds())
	c.rttSeconds.WithLabelValues(ts.Target, ts.Address, "0.5").Set(ts.Stats.P50.Seconds())
	c.rttSeconds.WithLabelValues(ts.Target, ts.Address, "0.95").Set(ts.Stats.P95.Seconds())
	c.rttSeconds.WithLabelValues(ts.Target, ts.Address, "0.99").Set(ts.Stats.P99.Seconds())
}

// Serve exposes /metrics on addr and blocks until ctx cancellation.
func Serve(ctx context.Context, addr string, collector *Collector) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = server.Shutdown(context.Background())
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return context.Canceled
		}
		return err
	}
}
