// Command conn-mon monitors connection quality to a set of targets and
// reports health transitions to logs, disk, notification channels, Prometheus,
// and an optional terminal dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rust-practice/conn-mon/internal/config"
	"github.com/rust-practice/conn-mon/internal/engine"
	"github.com/rust-practice/conn-mon/internal/metrics"
	"github.com/rust-practice/conn-mon/internal/probe"
	"github.com/rust-practice/conn-mon/internal/report"
	"github.com/rust-practice/conn-mon/internal/ui"
)

const (
	version = "0.1.0"

	defaultFlushInterval = 5 * time.Second
)

type options struct {
	logLevel      string
	logFile       string
	metricsListen string
	noUI          bool
}

func main() {
	opts := &options{}

	cmd := &cobra.Command{
		Use:     "conn-mon <config-file>",
		Short:   "Connection quality monitor",
		Version: version,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "write logs to file instead of stderr")
	cmd.Flags().StringVar(&opts.metricsListen, "metrics-listen", "", "metrics listen address (override config, e.g. :9100)")
	cmd.Flags().BoolVar(&opts.noUI, "no-ui", false, "disable the terminal dashboard (log only)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(parent context.Context, configPath string, opts *options) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// The dashboard owns the terminal, so interactive runs log to a file.
	logFile := opts.logFile
	if logFile == "" && !opts.noUI {
		logFile = "conn-mon.log"
	}
	logger, err := buildLogger(opts.logLevel, logFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	prober := probe.NewFallbackProber(probe.NewICMPProber(), probe.NewExternalProber())
	board := report.NewBoard()
	reporters := report.Multi{report.NewLogReporter(logger), board}

	if cfg.Reporting.EventDir != "" {
		flushEvery := cfg.Reporting.FlushInterval.Std()
		if flushEvery <= 0 {
			flushEvery = defaultFlushInterval
		}
		recorder, err := report.NewRecorder(cfg.Reporting.EventDir, flushEvery, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Error("close recorder", zap.Error(err))
			}
		}()
		reporters = append(reporters, recorder)
	}

	var notifiers []report.Notifier
	if cfg.Reporting.WebhookURL != "" {
		notifiers = append(notifiers, report.NewWebhookNotifier(cfg.Reporting.WebhookURL))
	}
	if cfg.Reporting.Email != nil {
		e := cfg.Reporting.Email
		notifiers = append(notifiers, report.NewEmailNotifier(report.EmailSettings{
			Host:     e.Host,
			Port:     e.Port,
			Username: e.Username,
			Password: e.Password,
			From:     e.From,
			To:       e.To,
		}))
	}
	if len(notifiers) > 0 {
		notify := report.NewNotifyReporter(logger, notifiers...)
		reporters = append(reporters, notify)
		notify.SendStartup()

		if cfg.Reporting.Heartbeat != "" {
			heartbeat, err := report.NewHeartbeat(cfg.Reporting.Heartbeat, notify, logger)
			if err != nil {
				return err
			}
			heartbeat.Start()
			defer heartbeat.Stop()
		}
	}

	metricsListen := cfg.Reporting.MetricsListen
	if opts.metricsListen != "" {
		metricsListen = opts.metricsListen
	}
	if metricsListen != "" {
		collector := metrics.NewCollector()
		reporters = append(reporters, collector)
		go func() {
			if err := metrics.Serve(ctx, metricsListen, collector); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	eng := engine.New(cfg.BuildTargets(), prober, reporters, logger, engine.Options{})

	if !opts.noUI {
		dashboard := ui.New(board)
		go func() {
			if err := dashboard.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("dashboard failed", zap.Error(err))
			}
			// Quitting the dashboard shuts the whole monitor down.
			stop()
		}()
	}

	err = eng.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildLogger creates the process logger, writing to path when given.
func buildLogger(level, path string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if path != "" {
		zcfg.OutputPaths = []string{path}
		zcfg.ErrorOutputPaths = []string{path}
	}
	return zcfg.Build()
}
