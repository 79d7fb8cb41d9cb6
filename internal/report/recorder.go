package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rust-practice/conn-mon/internal/health"
	"github.com/rust-practice/conn-mon/internal/scheduler"
)

// record is one JSONL line in a target's event file.
type record struct {
	TS      string  `json:"ts"`
	Type    string  `json:"type"`
	Target  string  `json:"target"`
	From    string  `json:"from,omitempty"`
	To      string  `json:"to,omitempty"`
	Outcome string  `json:"outcome,omitempty"`
	RTTMs   float64 `json:"rtt_ms,omitempty"`
	LossPct float64 `json:"loss_pct,omitempty"`
	P95Ms   float64 `json:"rtt_p95_ms,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// targetFile buffers records for one target and owns its file handle. The
// file name carries the date; the handle rolls over when the day changes.
type targetFile struct {
	name      string
	datePart  string
	handle    *os.File
	pending   []record
	lastFlush time.Time
}

// Recorder persists samples and transitions as per-target JSONL files under
// an output directory. Samples are buffered and flushed at most once per
// flush interval; transitions are written immediately.
type Recorder struct {
	dir        string
	flushEvery time.Duration
	log        *zap.Logger

	mu    sync.Mutex
	files map[string]*targetFile
}

// NewRecorder creates the output directory and returns a recorder.
func NewRecorder(dir string, flushEvery time.Duration, log *zap.Logger) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event dir: %w", err)
	}
	return &Recorder{
		dir:        dir,
		flushEvery: flushEvery,
		log:        log.Named("recorder"),
		files:      make(map[string]*targetFile),
	}, nil
}

func (r *Recorder) PublishEvent(ev health.Event) {
	rec := record{
		TS:      ev.At.Format(time.RFC3339),
		Type:    "transition",
		Target:  ev.Target,
		From:    ev.From.String(),
		To:      ev.To.String(),
		LossPct: ev.Stats.LossRatio * 100,
		P95Ms:   float64(ev.Stats.P95) / float64(time.Millisecond),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	tf, err := r.file(ev.Target, ev.At)
	if err != nil {
		r.log.Error("open event file", zap.String("target", ev.Target), zap.Error(err))
		return
	}
	tf.pending = append(tf.pending, rec)
	if err := r.flushLocked(tf, true); err != nil {
		r.log.Error("write event file", zap.String("target", ev.Target), zap.Error(err))
	}
}

func (r *Recorder) PublishStats(ts scheduler.TargetStats) {
	rec := record{
		TS:      ts.LastSample.At.Format(time.RFC3339),
		Type:    "sample",
		Target:  ts.Target,
		Outcome: ts.LastSample.Outcome.String(),
		RTTMs:   float64(ts.LastSample.RTT) / float64(time.Millisecond),
	}
	if ts.LastSample.Err != nil {
		rec.Error = ts.LastSample.Err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	tf, err := r.file(ts.Target, ts.LastSample.At)
	if err != nil {
		r.log.Error("open event file", zap.String("target", ts.Target), zap.Error(err))
		return
	}
	tf.pending = append(tf.pending, rec)
	if err := r.flushLocked(tf, false); err != nil {
		r.log.Error("write event file", zap.String("target", ts.Target), zap.Error(err))
	}
}

// Close flushes all pending records and releases file handles.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs error
	for _, tf := range r.files {
		errs = multierr.Append(errs, r.flushLocked(tf, true))
		if tf.handle != nil {
			errs = multierr.Append(errs, tf.handle.Close())
			tf.handle = nil
		}
	}
	return errs
}

// file returns the target's file, rolling the handle over when the date
// part of the name changed.
func (r *Recorder) file(target string, at time.Time) (*targetFile, error) {
	datePart := at.Format("2006-01-02")
	tf, ok := r.files[target]
	if ok && tf.datePart == datePart {
		return tf, nil
	}

	if ok && tf.handle != nil {
		// Day rolled over: flush what belongs to the old file first.
		if err := r.flushLocked(tf, true); err != nil {
			return nil, err
		}
		_ = tf.handle.Close()
	}

	path := filepath.Join(r.dir, fmt.Sprintf("%s %s events.log", datePart, target))
	handle, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	if tf == nil {
		tf = &targetFile{name: target}
		r.files[target] = tf
	}
	tf.datePart = datePart
	tf.handle = handle
	return tf, nil
}

// flushLocked writes pending records when forced or when the flush interval
// elapsed. Caller holds r.mu.
func (r *Recorder) flushLocked(tf *targetFile, force bool) error {
	if len(tf.pending) == 0 || tf.handle == nil {
		return nil
	}
	if !force && time.Since(tf.lastFlush) < r.flushEvery {
		return nil
	}
	for _, rec := range tf.pending {
		line, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(tf.handle, "%s\n", line); err != nil {
			return err
		}
	}
	tf.pending = tf.pending[:0]
	tf.lastFlush = time.Now()
	return nil
}
