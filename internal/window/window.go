// Package window keeps a bounded rolling history of probe samples for one
// target and derives loss, latency percentile, and jitter statistics from it.
package window

import (
	"errors"
	"sort"
	"time"

	"github.com/rust-practice/conn-mon/internal/probe"
)

// ErrInsufficientData is returned by Snapshot while the window holds fewer
// samples than the configured minimum. It is a transitional condition, not a
// failure.
var ErrInsufficientData = errors.New("window: insufficient samples")

// Stats is an ephemeral view over the current window contents. Percentiles
// and jitter cover successful samples only; the loss ratio covers all.
type Stats struct {
	Taken     time.Time
	Count     int
	Successes int
	LossRatio float64
	P50       time.Duration
	P95       time.Duration
	P99       time.Duration
	Jitter    time.Duration
}

// Window is a fixed-capacity FIFO of samples for a single target. It is not
// safe for concurrent use; each target's scheduling loop owns its window
// exclusively.
type Window struct {
	samples    []probe.Sample
	head       int
	size       int
	minSamples int
}

// New returns a window holding at most capacity samples, requiring
// minSamples before Snapshot produces statistics.
func New(capacity, minSamples int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	if minSamples < 1 {
		minSamples = 1
	}
	return &Window{
		samples:    make([]probe.Sample, capacity),
		minSamples: minSamples,
	}
}

// Ingest appends a sample, evicting the oldest when at capacity.
func (w *Window) Ingest(s probe.Sample) {
	if w.size < len(w.samples) {
		w.samples[(w.head+w.size)%len(w.samples)] = s
		w.size++
		return
	}
	w.samples[w.head] = s
	w.head = (w.head + 1) % len(w.samples)
}

// Len reports the number of samples currently held.
func (w *Window) Len() int {
	return w.size
}

// Cap reports the configured capacity.
func (w *Window) Cap() int {
	return len(w.samples)
}

// at returns the i-th sample in arrival order, oldest first.
func (w *Window) at(i int) probe.Sample {
	return w.samples[(w.head+i)%len(w.samples)]
}

// Snapshot computes statistics over the current contents, stamped with the
// given evaluation time. Below the minimum sample count it returns
// ErrInsufficientData instead of misleading numbers.
func (w *Window) Snapshot(at time.Time) (Stats, error) {
	if w.size < w.minSamples {
		return Stats{Taken: at, Count: w.size}, ErrInsufficientData
	}

	rtts := make([]time.Duration, 0, w.size)
	var jitterSum time.Duration
	var jitterPairs int
	var prev time.Duration
	havePrev := false

	for i := 0; i < w.size; i++ {
		s := w.at(i)
		if s.Outcome.Failed() {
			continue
		}
		rtts = append(rtts, s.RTT)
		if havePrev {
			jitterSum += absDuration(s.RTT - prev)
			jitterPairs++
		}
		prev = s.RTT
		havePrev = true
	}

	stats := Stats{
		Taken:     at,
		Count:     w.size,
		Successes: len(rtts),
		LossRatio: float64(w.size-len(rtts)) / float64(w.size),
	}
	if jitterPairs > 0 {
		stats.Jitter = jitterSum / time.Duration(jitterPairs)
	}
	if len(rtts) > 0 {
		sort.Slice(rtts, func(i, j int) bool { return rtts[i] < rtts[j] })
		stats.P50 = percentile(rtts, 50)
		stats.P95 = percentile(rtts, 95)
		stats.P99 = percentile(rtts, 99)
	}
	return stats, nil
}

// percentile returns the nearest-rank percentile of a sorted slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
