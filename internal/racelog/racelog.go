// Package racelog persists each on-track stint as a newline-delimited JSON
// file with a sidecar metadata summary.
//
// A recording opens on the first on-track frame, appends one line per frame,
// and closes on the on-track to off-track transition or after an idle period
// with no on-track frames. The next on-track frame opens a fresh pair.
// Recording is best-effort throughout: write failures are logged and counted,
// never propagated into the pipeline.
package racelog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rennlabs/pitwall/internal/observe"
	"github.com/rennlabs/pitwall/pkg/gt7"
)

// Config holds recorder settings.
type Config struct {
	// Dir is where session files are written. Created if absent.
	Dir string

	// IdleTimeout closes an open session after this long without an
	// on-track frame. Default 30s.
	IdleTimeout time.Duration

	// Now is the idle watchdog's clock. Default time.Now.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Meta is the sidecar summary written next to each session file. It is
// written once at open and rewritten with the final numbers at close, so a
// crash mid-session still leaves a diagnosable pair. BestLapMS is -1 until a
// lap time was observed.
type Meta struct {
	StartedAt   time.Time `json:"startedAt"`
	EndedAt     time.Time `json:"endedAt,omitzero"`
	CarCode     int32     `json:"carCode"`
	TotalLaps   int16     `json:"totalLaps"`
	BestLapMS   int32     `json:"bestLapMs"`
	PacketCount int64     `json:"packetCount"`
}

// line is the shape of one NDJSON record.
type line struct {
	Timestamp time.Time  `json:"timestamp"`
	Data      *gt7.Frame `json:"data"`
}

// stint is one open recording.
type stint struct {
	file     *os.File
	w        *bufio.Writer
	path     string
	meta     Meta
	lastSeen time.Time
	warned   bool
}

// Recorder writes race sessions to disk. Record and the watchdog run on
// different goroutines; the mutex covers the open/closed state.
type Recorder struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics

	mu      sync.Mutex
	cur     *stint
	retryAt time.Time
}

// New prepares the session directory. A directory that cannot be created is
// fatal for the caller.
func New(cfg Config, log *slog.Logger, metrics *observe.Metrics) (*Recorder, error) {
	cfg.applyDefaults()
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("racelog: create %s: %w", cfg.Dir, err)
	}
	return &Recorder{
		cfg:     cfg,
		log:     log.With("component", "racelog"),
		metrics: metrics,
	}, nil
}

// Record routes one decoded frame. On-track frames open a session if none is
// live and append one line; the on-track to off-track transition closes the
// session.
func (r *Recorder) Record(now time.Time, f *gt7.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !f.Flags.OnTrack {
		if r.cur != nil {
			r.closeLocked(now, "off track")
		}
		return
	}

	if r.cur == nil {
		// A failed open is retried at idle-timeout pace, not per frame.
		if now.Before(r.retryAt) {
			return
		}
		if !r.openLocked(now, f) {
			r.retryAt = now.Add(r.cfg.IdleTimeout)
			return
		}
	}
	r.writeLocked(now, f)
}

// Active reports whether a session is currently being recorded.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}

// Run drives the idle watchdog until ctx is cancelled, then drains any open
// session. The check interval scales down with short timeouts so tests stay
// fast; production sits at one check per second.
func (r *Recorder) Run(ctx context.Context) error {
	interval := min(time.Second, r.cfg.IdleTimeout/4)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case <-ticker.C:
			now := r.cfg.Now()
			r.mu.Lock()
			if r.cur != nil && now.Sub(r.cur.lastSeen) >= r.cfg.IdleTimeout {
				r.closeLocked(now, "idle timeout")
			}
			r.mu.Unlock()
		}
	}
}

// Close finalizes any open session. Safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != nil {
		r.closeLocked(r.cfg.Now(), "shutdown")
	}
	return nil
}

// openLocked starts a new session pair named by wall time and car code. Two
// stints opening within the same second take ordinal suffixes so neither
// overwrites the other.
func (r *Recorder) openLocked(now time.Time, f *gt7.Frame) bool {
	base := fmt.Sprintf("%s_car-%d", now.Format("2006-01-02T15-04-05"), f.CarCode)
	path := filepath.Join(r.cfg.Dir, base+".ndjson")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	for n := 2; errors.Is(err, fs.ErrExist) && n < 100; n++ {
		path = filepath.Join(r.cfg.Dir, fmt.Sprintf("%s_%d.ndjson", base, n))
		file, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		r.log.Warn("session file open failed, stint will not be recorded",
			"path", path, "error", err)
		return false
	}

	r.cur = &stint{
		file: file,
		w:    bufio.NewWriter(file),
		path: path,
		meta: Meta{
			StartedAt: now,
			CarCode:   f.CarCode,
			BestLapMS: -1,
		},
		lastSeen: now,
	}
	r.writeMeta(r.cur)
	r.log.Info("race session recording started", "file", filepath.Base(path))
	return true
}

// writeLocked appends one frame line and folds it into the metadata.
func (r *Recorder) writeLocked(now time.Time, f *gt7.Frame) {
	s := r.cur
	s.lastSeen = now

	data, err := json.Marshal(line{Timestamp: now, Data: f})
	if err != nil {
		return
	}
	data = append(data, '\n')
	if _, err := s.w.Write(data); err != nil {
		if !s.warned {
			s.warned = true
			r.log.Warn("session write failed, frames are being lost",
				"path", s.path, "error", err)
		}
		r.metrics.RecordFrameDrop(context.Background(), "logger")
		return
	}

	s.meta.PacketCount++
	if f.CurrentLap > s.meta.TotalLaps {
		s.meta.TotalLaps = f.CurrentLap
	}
	if gt7.LapTimeSet(f.BestLapMS) {
		s.meta.BestLapMS = f.BestLapMS
	}
}

// closeLocked finalizes the current session: flush, close, rewrite the
// sidecar with the end timestamp and final numbers.
func (r *Recorder) closeLocked(now time.Time, reason string) {
	s := r.cur
	r.cur = nil

	s.meta.EndedAt = now
	if err := s.w.Flush(); err != nil {
		r.log.Warn("session flush failed", "path", s.path, "error", err)
	}
	if err := s.file.Close(); err != nil {
		r.log.Warn("session close failed", "path", s.path, "error", err)
	}
	r.writeMeta(s)

	r.log.Info("race session recording closed",
		"reason", reason,
		"packets", s.meta.PacketCount,
		"laps", s.meta.TotalLaps,
	)
}

func (r *Recorder) writeMeta(s *stint) {
	data, err := json.MarshalIndent(s.meta, "", "  ")
	if err != nil {
		return
	}
	metaPath := strings.TrimSuffix(s.path, ".ndjson") + ".meta.json"
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		r.log.Warn("session metadata write failed", "path", metaPath, "error", err)
	}
}
