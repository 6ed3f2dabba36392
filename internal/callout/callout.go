// Package callout turns analyzer snapshots into race-engineer messages.
//
// Rules come in two sets: periodic rules run on every scheduler tick,
// lap rules run once per completed lap. Every rule passes a verbosity gate
// and a per-type cooldown before its evaluator may fire.
package callout

import (
	"time"
)

// Type identifies a callout rule on the wire and in the cooldown map.
type Type string

const (
	TypeFuelLow         Type = "fuel_low"
	TypeTyreTempHigh    Type = "tyre_temp_high"
	TypeTyreTrend       Type = "tyre_trend"
	TypeLapDelta        Type = "lap_delta"
	TypeLapSummary      Type = "lap_summary"
	TypeFuelEstimate    Type = "fuel_estimate"
	TypeRevLimiter      Type = "rev_limiter"
	TypeTCSIntervention Type = "tcs_intervention"
	TypeASMIntervention Type = "asm_intervention"
	TypeRaceProgress    Type = "race_progress"
	TypePaceSummary     Type = "pace_summary"
)

// Priority ranks callouts for the verbosity gate.
type Priority int

const (
	PriorityInfo Priority = iota + 1
	PriorityNormal
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityInfo:
		return "info"
	case PriorityNormal:
		return "normal"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Verbosity selects how chatty the engineer is. Level 1 admits critical
// callouts only, level 2 adds normal, level 3 admits everything.
type Verbosity int

const (
	VerbosityLow    Verbosity = 1
	VerbosityMedium Verbosity = 2
	VerbosityHigh   Verbosity = 3
)

func (v Verbosity) IsValid() bool {
	return v >= VerbosityLow && v <= VerbosityHigh
}

// Admits reports whether a callout of priority p passes this verbosity.
func (v Verbosity) Admits(p Priority) bool {
	switch v {
	case VerbosityLow:
		return p == PriorityCritical
	case VerbosityMedium:
		return p >= PriorityNormal
	default:
		return true
	}
}

// Callout is one generated message. Message is the plain-text fallback sent
// to clients when no voice session is live; Data carries the raw numbers for
// the voice model.
type Callout struct {
	Type     Type           `json:"type"`
	Priority Priority       `json:"priority"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
	At       time.Time      `json:"timestamp"`
}
