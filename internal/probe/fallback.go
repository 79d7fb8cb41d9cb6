package probe

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
)

// FallbackProber delegates to primary, switching to secondary when the
// primary fails with a permission error. Once the switch happens it sticks,
// so sustained unprivileged operation does not retry the raw socket on
// every probe.
type FallbackProber struct {
	primary   Prober
	secondary Prober
	demoted   atomic.Bool
}

// NewFallbackProber wraps primary with a secondary used on permission errors.
func NewFallbackProber(primary, secondary Prober) *FallbackProber {
	return &FallbackProber{primary: primary, secondary: secondary}
}

// Probe measures via the primary prober, falling back when raw sockets are
// not permitted.
func (p *FallbackProber) Probe(ctx context.Context, addr string, timeout time.Duration) Sample {
	if p.demoted.Load() {
		return p.secondary.Probe(ctx, addr, timeout)
	}
	sample := p.primary.Probe(ctx, addr, timeout)
	if sample.Outcome != OutcomeError || !isPermissionError(sample.Err) {
		return sample
	}
	p.demoted.Store(true)
	return p.secondary.Probe(ctx, addr, timeout)
}

func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EPERM) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "operation not permitted") || strings.Contains(msg, "permission denied")
}
