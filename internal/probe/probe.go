package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"
)

// Outcome classifies a single probe attempt.
type Outcome int

const (
	// OutcomeSuccess means an echo reply arrived within the timeout.
	OutcomeSuccess Outcome = iota
	// OutcomeTimeout means no reply arrived before the deadline.
	OutcomeTimeout
	// OutcomeUnreachable means the network answered negatively
	// (host/network unreachable, connection refused).
	OutcomeUnreachable
	// OutcomeError covers unexpected OS or resource failures.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeUnreachable:
		return "unreachable"
	default:
		return "error"
	}
}

// Failed reports whether the attempt counts as a loss.
func (o Outcome) Failed() bool {
	return o != OutcomeSuccess
}

// Sample is the recorded outcome of one probe attempt. Immutable once
// produced.
type Sample struct {
	At      time.Time
	RTT     time.Duration
	Outcome Outcome
	Err     error
}

// Prober performs a single reachability/latency measurement. It must return
// within timeout plus a small grace margin on every path.
type Prober interface {
	Probe(ctx context.Context, addr string, timeout time.Duration) Sample
}

// failure builds a failed Sample with the outcome derived from err.
func failure(at time.Time, err error) Sample {
	return Sample{At: at, Outcome: classify(err), Err: err}
}

// classify maps a transport error onto the failure taxonomy.
func classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return OutcomeUnreachable
	}
	return OutcomeError
}
