package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "500ms" or "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Defaults holds the probe policy and thresholds applied to every target
// unless overridden per target.
type Defaults struct {
	Interval        Duration `yaml:"interval"`
	Timeout         Duration `yaml:"timeout"`
	Retries         int      `yaml:"retries"`
	Backoff         Duration `yaml:"backoff"`
	MaxBackoff      Duration `yaml:"max_backoff"`
	WindowSize      int      `yaml:"window_size"`
	MinSamples      int      `yaml:"min_samples"`
	DegradedLoss    float64  `yaml:"degraded_loss"`
	UnreachableLoss float64  `yaml:"unreachable_loss"`
	DegradedLatency Duration `yaml:"degraded_latency"`
	MaxJitter       Duration `yaml:"max_jitter"`
	RecoveryStreak  int      `yaml:"recovery_streak"`
}

// Target defines one monitored endpoint. Pointer fields override the
// corresponding default when set.
type Target struct {
	Name        string    `yaml:"name"`
	Address     string    `yaml:"address"`
	DisplayName string    `yaml:"display_name"`
	Disabled    bool      `yaml:"disabled"`
	Interval    *Duration `yaml:"interval"`
	Timeout     *Duration `yaml:"timeout"`
	Retries     *int      `yaml:"retries"`
}

// Email configures the SMTP notification channel.
type Email struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Reporting configures the external-facing collaborators.
type Reporting struct {
	EventDir      string   `yaml:"event_dir"`
	FlushInterval Duration `yaml:"flush_interval"`
	WebhookURL    string   `yaml:"webhook_url"`
	Email         *Email   `yaml:"email"`
	Heartbeat     string   `yaml:"heartbeat"`
	MetricsListen string   `yaml:"metrics_listen"`
}

// Config is the full parsed configuration file.
type Config struct {
	Defaults  Defaults  `yaml:"defaults"`
	Targets   []Target  `yaml:"targets"`
	Reporting Reporting `yaml:"reporting"`
}
