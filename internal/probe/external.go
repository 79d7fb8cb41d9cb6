package probe

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

var (
	rttPattern       = regexp.MustCompile(`time=([0-9.]+)\s*ms`)
	totalLossPattern = regexp.MustCompile(`1 packets transmitted, 0 received`)
)

// ExternalProber shells out to the system ping command for environments
// without raw socket privileges.
type ExternalProber struct{}

// NewExternalProber returns a prober backed by the ping binary.
func NewExternalProber() *ExternalProber {
	return &ExternalProber{}
}

// Probe runs ping once and classifies the result from its output.
//
// ping writes the echo summary to stdout and setup failures (name
// resolution, missing route) to stderr, so the two streams are inspected
// separately.
func (p *ExternalProber) Probe(ctx context.Context, addr string, timeout time.Duration) Sample {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return failure(start, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout+graceMargin)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "ping", pingArgs(addr, timeout)...)
	out, err := cmd.CombinedOutput()
	sample := classifyPingOutput(out, time.Since(start))
	sample.At = start
	if sample.Outcome == OutcomeError && err != nil {
		sample.Err = fmt.Errorf("external ping: %w", err)
	}
	return sample
}

// classifyPingOutput maps ping's textual result onto the probe taxonomy:
// an rtt line is a success, a 0-received summary without an error line is a
// timeout, and an unreachable/filtered line is a negative acknowledgment.
func classifyPingOutput(output []byte, elapsed time.Duration) Sample {
	text := string(output)

	if m := rttPattern.FindStringSubmatch(text); len(m) == 2 {
		rtt := elapsed
		if value, err := strconv.ParseFloat(m[1], 64); err == nil && value > 0 {
			rtt = time.Duration(value * float64(time.Millisecond))
		}
		return Sample{RTT: rtt, Outcome: OutcomeSuccess}
	}

	lower := strings.ToLower(text)
	if strings.Contains(lower, "unreachable") ||
		strings.Contains(lower, "no route to host") ||
		strings.Contains(lower, "communication prohibited") {
		return Sample{Outcome: OutcomeUnreachable,
			Err: fmt.Errorf("ping reported: %s", firstLineContaining(text, "nreachable", "route", "rohibited"))}
	}

	if totalLossPattern.MatchString(text) {
		return Sample{Outcome: OutcomeTimeout, Err: fmt.Errorf("ping: no reply received")}
	}

	return Sample{Outcome: OutcomeError, Err: fmt.Errorf("unrecognized ping output")}
}

func firstLineContaining(text string, needles ...string) string {
	for _, line := range strings.Split(text, "\n") {
		for _, needle := range needles {
			if strings.Contains(line, needle) {
				return strings.TrimSpace(line)
			}
		}
	}
	return strings.TrimSpace(text)
}

func pingArgs(addr string, timeout time.Duration) []string {
	switch runtime.GOOS {
	case "darwin":
		timeoutMs := maxInt(100, int(timeout.Milliseconds()))
		return []string{"-n", "-c", "1", "-W", strconv.Itoa(timeoutMs), addr}
	default:
		timeoutSec := maxInt(1, int(timeout.Seconds()+0.5))
		return []string{"-n", "-c", "1", "-W", strconv.Itoa(timeoutSec), addr}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
