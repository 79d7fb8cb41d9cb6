// Package config loads and validates the conn-mon YAML configuration.
// Configuration is immutable once loaded; there is no runtime reload.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rust-practice/conn-mon/internal/health"
	"github.com/rust-practice/conn-mon/internal/scheduler"
)

// DefaultDefaults returns the baseline policy applied before the file's own
// defaults section.
func DefaultDefaults() Defaults {
	return Defaults{
		Interval:        Duration(1 * time.Second),
		Timeout:         Duration(1 * time.Second),
		Retries:         2,
		Backoff:         Duration(100 * time.Millisecond),
		MaxBackoff:      Duration(2 * time.Second),
		WindowSize:      60,
		MinSamples:      5,
		DegradedLoss:    0.2,
		UnreachableLoss: 0.8,
		DegradedLatency: Duration(300 * time.Millisecond),
		MaxJitter:       0,
		RecoveryStreak:  3,
	}
}

// Load reads, parses, and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{Defaults: DefaultDefaults()}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies. Failing here is
// the only fatal error path in the program.
func (c *Config) Validate() error {
	d := c.Defaults
	if d.Interval <= 0 {
		return fmt.Errorf("defaults.interval must be positive")
	}
	if d.Timeout <= 0 {
		return fmt.Errorf("defaults.timeout must be positive")
	}
	if d.Retries < 0 {
		return fmt.Errorf("defaults.retries must not be negative")
	}
	if d.WindowSize < 1 {
		return fmt.Errorf("defaults.window_size must be at least 1")
	}
	if d.MinSamples < 1 || d.MinSamples > d.WindowSize {
		return fmt.Errorf("defaults.min_samples must be between 1 and window_size")
	}
	if d.DegradedLoss < 0 || d.DegradedLoss > 1 {
		return fmt.Errorf("defaults.degraded_loss must be within [0, 1]")
	}
	if d.UnreachableLoss < d.DegradedLoss || d.UnreachableLoss > 1 {
		return fmt.Errorf("defaults.unreachable_loss must be within [degraded_loss, 1]")
	}
	if d.RecoveryStreak < 1 {
		return fmt.Errorf("defaults.recovery_streak must be at least 1")
	}

	if len(c.EnabledTargets()) == 0 {
		return fmt.Errorf("no enabled targets configured")
	}

	seen := make(map[string]struct{}, len(c.Targets))
	for i, t := range c.Targets {
		if t.Address == "" {
			return fmt.Errorf("targets[%d]: address is required", i)
		}
		name := t.EffectiveName()
		if _, dup := seen[name]; dup {
			return fmt.Errorf("targets[%d]: duplicate target name %q", i, name)
		}
		seen[name] = struct{}{}
		if t.Interval != nil && *t.Interval <= 0 {
			return fmt.Errorf("target %q: interval must be positive", name)
		}
		if t.Timeout != nil && *t.Timeout <= 0 {
			return fmt.Errorf("target %q: timeout must be positive", name)
		}
		if t.Retries != nil && *t.Retries < 0 {
			return fmt.Errorf("target %q: retries must not be negative", name)
		}
	}

	if c.Reporting.Email != nil {
		e := c.Reporting.Email
		if e.Host == "" || e.From == "" || len(e.To) == 0 {
			return fmt.Errorf("reporting.email: host, from, and to are required")
		}
	}
	return nil
}

// EffectiveName prefers the display name, then the name, then the address.
func (t Target) EffectiveName() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	if t.Name != "" {
		return t.Name
	}
	return t.Address
}

// EnabledTargets filters out disabled targets.
func (c *Config) EnabledTargets() []Target {
	out := make([]Target, 0, len(c.Targets))
	for _, t := range c.Targets {
		if !t.Disabled {
			out = append(out, t)
		}
	}
	return out
}

// BuildTargets resolves defaults and per-target overrides into scheduler
// targets.
func (c *Config) BuildTargets() []scheduler.Target {
	d := c.Defaults
	enabled := c.EnabledTargets()
	out := make([]scheduler.Target, 0, len(enabled))
	for _, t := range enabled {
		st := scheduler.Target{
			Name:     t.EffectiveName(),
			Address:  t.Address,
			Interval: d.Interval.Std(),
			Timeout:  d.Timeout.Std(),
			Retry: scheduler.RetryPolicy{
				Attempts:   d.Retries,
				Backoff:    d.Backoff.Std(),
				MaxBackoff: d.MaxBackoff.Std(),
			},
			Thresholds: health.Thresholds{
				DegradedLoss:    d.DegradedLoss,
				UnreachableLoss: d.UnreachableLoss,
				DegradedLatency: d.DegradedLatency.Std(),
				MaxJitter:       d.MaxJitter.Std(),
				RecoveryStreak:  d.RecoveryStreak,
			},
			WindowSize: d.WindowSize,
			MinSamples: d.MinSamples,
		}
		if t.Interval != nil {
			st.Interval = t.Interval.Std()
		}
		if t.Timeout != nil {
			st.Timeout = t.Timeout.Std()
		}
		if t.Retries != nil {
			st.Retry.Attempts = *t.Retries
		}
		out = append(out, st)
	}
	return out
}
