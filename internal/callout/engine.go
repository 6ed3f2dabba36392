package callout

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rennlabs/pitwall/internal/analyzer"
)

// Engine evaluates the rule tables against snapshots and enforces the
// verbosity and cooldown gates. Rule evaluation is single-threaded: OnTick
// and OnLapComplete must be called from one goroutine, which owns the
// cooldown bookkeeping. Verbosity may be read and changed from any
// goroutine.
type Engine struct {
	log       *slog.Logger
	verbosity atomic.Int32
	lastFired map[Type]time.Time
}

// NewEngine returns an engine with no cooldown history.
func NewEngine(log *slog.Logger, verbosity Verbosity) *Engine {
	e := &Engine{
		log:       log.With("component", "callout"),
		lastFired: make(map[Type]time.Time),
	}
	if !verbosity.IsValid() {
		verbosity = VerbosityMedium
	}
	e.verbosity.Store(int32(verbosity))
	return e
}

// Verbosity returns the current verbosity level.
func (e *Engine) Verbosity() Verbosity {
	return Verbosity(e.verbosity.Load())
}

// SetVerbosity adjusts the gate. Invalid levels are ignored.
func (e *Engine) SetVerbosity(v Verbosity) {
	if !v.IsValid() {
		e.log.Warn("ignoring invalid verbosity", "level", int(v))
		return
	}
	e.verbosity.Store(int32(v))
	e.log.Info("verbosity changed", "level", int(v))
}

// OnTick evaluates the periodic rule set.
func (e *Engine) OnTick(now time.Time, s analyzer.Snapshot) []Callout {
	return e.run(periodicRules, now, s)
}

// OnLapComplete evaluates the lap rule set against a post-lap-change
// snapshot.
func (e *Engine) OnLapComplete(now time.Time, s analyzer.Snapshot) []Callout {
	return e.run(lapRules, now, s)
}

func (e *Engine) run(rules []rule, now time.Time, s analyzer.Snapshot) []Callout {
	v := e.Verbosity()
	var out []Callout
	for i := range rules {
		r := &rules[i]
		if v < r.minVerbosity || !v.Admits(r.priority) {
			continue
		}
		if r.cooldown > 0 {
			if last, ok := e.lastFired[r.typ]; ok && now.Sub(last) < r.cooldown {
				continue
			}
		}
		msg, data, fire := r.eval(s)
		if !fire {
			continue
		}
		e.lastFired[r.typ] = now
		out = append(out, Callout{
			Type:     r.typ,
			Priority: r.priority,
			Message:  msg,
			Data:     data,
			At:       now,
		})
		e.log.Debug("callout fired", "type", string(r.typ), "priority", r.priority.String())
	}
	return out
}
