package report

import (
	"sort"
	"sync"
	"time"

	"github.com/rust-practice/conn-mon/internal/health"
	"github.com/rust-practice/conn-mon/internal/scheduler"
	"github.com/rust-practice/conn-mon/internal/window"
)

// TargetView is the board's read-model of one target.
type TargetView struct {
	Name       string
	Address    string
	State      health.State
	Stats      window.Stats
	Sufficient bool
	LastRTT    time.Duration
	LastOK     bool
	LastChange time.Time
}

// Board keeps the latest per-target view for renderers (dashboard, metrics
// exposition). It is the only cross-target aggregation point, fed purely by
// pushed events and statistics so target loops share no state.
type Board struct {
	mu      sync.RWMutex
	targets map[string]*TargetView
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{targets: make(map[string]*TargetView)}
}

func (b *Board) PublishEvent(ev health.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	view := b.view(ev.Target, ev.Address)
	view.State = ev.To
	view.LastChange = ev.At
}

func (b *Board) PublishStats(ts scheduler.TargetStats) {
	b.mu.Lock()
	defer b.mu.Unlock()
	view := b.view(ts.Target, ts.Address)
	view.State = ts.State
	view.Stats = ts.Stats
	view.Sufficient = ts.Sufficient
	view.LastRTT = ts.LastSample.RTT
	view.LastOK = !ts.LastSample.Outcome.Failed()
}

// Snapshot returns a copy of all views sorted by target name.
func (b *Board) Snapshot() []TargetView {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]TargetView, 0, len(b.targets))
	for _, view := range b.targets {
		out = append(out, *view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (b *Board) view(name, address string) *TargetView {
	view, ok := b.targets[name]
	if !ok {
		view = &TargetView{Name: name, Address: address, State: health.StateUnknown}
		b.targets[name] = view
	}
	return view
}
