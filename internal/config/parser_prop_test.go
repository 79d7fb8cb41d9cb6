package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/prop"
)

func TestPropertyBuildTargetsResolvesOverrides(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	props.Property("per-target interval override always wins over the default", prop.ForAll(
		func(defaultSec, overrideSec int) bool {
			yaml := fmt.Sprintf(`
defaults:
  interval: %ds
targets:
  - name: plain
    address: 192.0.2.1
  - name: tuned
    address: 192.0.2.2
    interval: %ds
`, defaultSec, overrideSec)
			cfg, err := Parse([]byte(yaml))
			if err != nil {
				return false
			}
			targets := cfg.BuildTargets()
			if len(targets) != 2 {
				return false
			}
			return targets[0].Interval == time.Duration(defaultSec)*time.Second &&
				targets[1].Interval == time.Duration(overrideSec)*time.Second
		},
		gopter.Gen(func(genParams *gopter.GenParameters) *gopter.GenResult {
			value := genParams.Rng.Intn(60) + 1
			return gopter.NewGenResult(value, gopter.NoShrinker)
		}),
		gopter.Gen(func(genParams *gopter.GenParameters) *gopter.GenResult {
			value := genParams.Rng.Intn(60) + 1
			return gopter.NewGenResult(value, gopter.NoShrinker)
		}),
	))

	props.TestingRun(t)
}

func TestPropertyDisabledTargetsNeverScheduled(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	props := gopter.NewProperties(params)

	props.Property("disabled targets are excluded from the schedule", prop.ForAll(
		func(enabled, disabled int) bool {
			yaml := "targets:\n"
			for i := 0; i < enabled; i++ {
				yaml += fmt.Sprintf("  - name: on-%d\n    address: 192.0.2.%d\n", i, i+1)
			}
			for i := 0; i < disabled; i++ {
				yaml += fmt.Sprintf("  - name: off-%d\n    address: 198.51.100.%d\n    disabled: true\n", i, i+1)
			}
			cfg, err := Parse([]byte(yaml))
			if err != nil {
				return false
			}
			return len(cfg.BuildTargets()) == enabled
		},
		gopter.Gen(func(genParams *gopter.GenParameters) *gopter.GenResult {
			value := genParams.Rng.Intn(5) + 1
			return gopter.NewGenResult(value, gopter.NoShrinker)
		}),
		gopter.Gen(func(genParams *gopter.GenParameters) *gopter.GenResult {
			value := genParams.Rng.Intn(5)
			return gopter.NewGenResult(value, gopter.NoShrinker)
		}),
	))

	props.TestingRun(t)
}
