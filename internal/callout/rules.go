package callout

import (
	"fmt"
	"strings"
	"time"

	"github.com/rennlabs/pitwall/internal/analyzer"
	"github.com/rennlabs/pitwall/pkg/gt7"
)

// Rule thresholds. Comparisons are strict: a tyre at exactly 100 °C or a
// delta of exactly 500 ms does not fire.
const (
	fuelLowLaps         = 3.0
	tyreTempCritical    = float32(100)
	lapDeltaThresholdMS = int32(500)
	revLimiterFraction  = 0.15
	assistFraction      = 0.10
)

// rule couples gating parameters with an evaluator. Evaluators are pure
// functions of the snapshot; they return the fallback message, the data map
// for the voice model, and whether the rule fires.
type rule struct {
	typ          Type
	priority     Priority
	minVerbosity Verbosity
	cooldown     time.Duration
	eval         func(s analyzer.Snapshot) (string, map[string]any, bool)
}

// periodicRules run on every scheduler tick.
var periodicRules = []rule{
	{TypeFuelLow, PriorityCritical, VerbosityLow, 60 * time.Second, evalFuelLow},
	{TypeTyreTempHigh, PriorityCritical, VerbosityLow, 30 * time.Second, evalTyreTempHigh},
	{TypeTyreTrend, PriorityNormal, VerbosityMedium, 60 * time.Second, evalTyreTrend},
}

// lapRules run once per completed lap; the lap itself is the rate limit.
var lapRules = []rule{
	{TypeLapDelta, PriorityNormal, VerbosityMedium, 0, evalLapDelta},
	{TypeLapSummary, PriorityInfo, VerbosityHigh, 0, evalLapSummary},
	{TypeFuelEstimate, PriorityNormal, VerbosityMedium, 0, evalFuelEstimate},
	{TypeRevLimiter, PriorityNormal, VerbosityMedium, 0, evalRevLimiter},
	{TypeTCSIntervention, PriorityNormal, VerbosityMedium, 0, evalTCS},
	{TypeASMIntervention, PriorityNormal, VerbosityMedium, 0, evalASM},
	{TypeRaceProgress, PriorityNormal, VerbosityMedium, 0, evalRaceProgress},
	{TypePaceSummary, PriorityInfo, VerbosityHigh, 0, evalPaceSummary},
}

func evalFuelLow(s analyzer.Snapshot) (string, map[string]any, bool) {
	est := float64(s.EstimatedLapsRemaining)
	if s.FuelUsage != analyzer.FuelOn || s.FuelBurnPerLap <= 0 || est >= fuelLowLaps {
		return "", nil, false
	}
	msg := fmt.Sprintf("Fuel critical: about %.1f laps remaining.", est)
	return msg, map[string]any{
		"estimatedLaps": est,
		"burnPerLap":    s.FuelBurnPerLap,
		"fuelLevel":     s.FuelLevel,
	}, true
}

func evalTyreTempHigh(s analyzer.Snapshot) (string, map[string]any, bool) {
	hottest := s.TyreTemp.Max()
	if hottest <= tyreTempCritical {
		return "", nil, false
	}
	corner := hottestCorner(s.TyreTemp)
	msg := fmt.Sprintf("Tyre temperature critical: %s at %.0f degrees.", corner, hottest)
	return msg, map[string]any{
		"corner":      corner,
		"temperature": hottest,
		"tyreTemp":    s.TyreTemp,
	}, true
}

func evalTyreTrend(s analyzer.Snapshot) (string, map[string]any, bool) {
	rising := risingCorners(s.TyreTrends)
	if len(rising) == 0 {
		return "", nil, false
	}
	msg := fmt.Sprintf("Tyre temperatures rising: %s.", strings.Join(rising, ", "))
	return msg, map[string]any{
		"corners":  rising,
		"tyreTemp": s.TyreTemp,
	}, true
}

func evalLapDelta(s analyzer.Snapshot) (string, map[string]any, bool) {
	if !gt7.LapTimeSet(s.LastLapMS) || !gt7.LapTimeSet(s.BestLapMS) {
		return "", nil, false
	}
	delta := s.LastLapMS - s.BestLapMS
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	if abs <= lapDeltaThresholdMS {
		return "", nil, false
	}
	msg := fmt.Sprintf("Last lap %s, %s to your best.", FormatLapTime(s.LastLapMS), FormatDelta(delta))
	return msg, map[string]any{
		"lastLapMs": s.LastLapMS,
		"bestLapMs": s.BestLapMS,
		"deltaMs":   delta,
	}, true
}

func evalLapSummary(s analyzer.Snapshot) (string, map[string]any, bool) {
	if !gt7.LapTimeSet(s.LastLapMS) {
		return "", nil, false
	}
	completed := s.CurrentLap - 1
	msg := fmt.Sprintf("Lap %d complete: %s.", completed, FormatLapTime(s.LastLapMS))
	if gt7.LapTimeSet(s.BestLapMS) {
		msg = fmt.Sprintf("Lap %d complete: %s, best %s.",
			completed, FormatLapTime(s.LastLapMS), FormatLapTime(s.BestLapMS))
	}
	return msg, map[string]any{
		"lap":       completed,
		"lastLapMs": s.LastLapMS,
		"bestLapMs": s.BestLapMS,
	}, true
}

func evalFuelEstimate(s analyzer.Snapshot) (string, map[string]any, bool) {
	if s.FuelUsage != analyzer.FuelOn || s.FuelBurnPerLap <= 0 {
		return "", nil, false
	}
	est := float64(s.EstimatedLapsRemaining)
	msg := fmt.Sprintf("Fuel for about %.1f more laps.", est)
	return msg, map[string]any{
		"estimatedLaps": est,
		"burnPerLap":    s.FuelBurnPerLap,
		"fuelLevel":     s.FuelLevel,
	}, true
}

func evalRevLimiter(s analyzer.Snapshot) (string, map[string]any, bool) {
	if s.RevLimiterFraction <= revLimiterFraction {
		return "", nil, false
	}
	msg := fmt.Sprintf("On the rev limiter %.0f%% of that lap.", s.RevLimiterFraction*100)
	return msg, map[string]any{"fraction": s.RevLimiterFraction}, true
}

func evalTCS(s analyzer.Snapshot) (string, map[string]any, bool) {
	if s.TCSFraction <= assistFraction {
		return "", nil, false
	}
	msg := fmt.Sprintf("Traction control active %.0f%% of that lap.", s.TCSFraction*100)
	return msg, map[string]any{"fraction": s.TCSFraction}, true
}

func evalASM(s analyzer.Snapshot) (string, map[string]any, bool) {
	if s.ASMFraction <= assistFraction {
		return "", nil, false
	}
	msg := fmt.Sprintf("Stability assist active %.0f%% of that lap.", s.ASMFraction*100)
	return msg, map[string]any{"fraction": s.ASMFraction}, true
}

func evalRaceProgress(s analyzer.Snapshot) (string, map[string]any, bool) {
	completed := int(s.CurrentLap) - 1
	if s.TotalLaps <= 0 || completed <= 0 {
		return "", nil, false
	}
	remaining := int(s.TotalLaps) - completed
	if completed%5 != 0 && remaining > 3 {
		return "", nil, false
	}
	var msg string
	switch {
	case remaining <= 0:
		msg = "Race complete."
	case remaining == 1:
		msg = "Final lap."
	default:
		msg = fmt.Sprintf("Lap %d of %d complete, %d to go.", completed, s.TotalLaps, remaining)
	}
	return msg, map[string]any{
		"completed": completed,
		"totalLaps": s.TotalLaps,
		"remaining": remaining,
	}, true
}

func evalPaceSummary(s analyzer.Snapshot) (string, map[string]any, bool) {
	if len(s.RecentLapTimes) < 3 {
		return "", nil, false
	}
	last3 := s.RecentLapTimes[len(s.RecentLapTimes)-3:]
	times := make([]string, len(last3))
	for i, ms := range last3 {
		times[i] = FormatLapTime(ms)
	}
	msg := fmt.Sprintf("Pace %s. Last three laps: %s.", s.PaceTrend, strings.Join(times, ", "))
	return msg, map[string]any{
		"trend":      s.PaceTrend,
		"recentLaps": last3,
	}, true
}

// FormatLapTime renders milliseconds as MM:SS.mmm.
func FormatLapTime(ms int32) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%02d:%02d.%03d", ms/60000, ms%60000/1000, ms%1000)
}

// FormatDelta renders a millisecond delta as a signed seconds value, for
// example "+0.527s".
func FormatDelta(deltaMS int32) string {
	return fmt.Sprintf("%+.3fs", float64(deltaMS)/1000)
}

func hottestCorner(c gt7.CornerSet) string {
	names := [4]string{"front left", "front right", "rear left", "rear right"}
	temps := [4]float32{c.FL, c.FR, c.RL, c.RR}
	hot := 0
	for i := 1; i < len(temps); i++ {
		if temps[i] > temps[hot] {
			hot = i
		}
	}
	return names[hot]
}

func risingCorners(t analyzer.TyreTrendSet) []string {
	var out []string
	if t.FL == analyzer.TyreRising {
		out = append(out, "front left")
	}
	if t.FR == analyzer.TyreRising {
		out = append(out, "front right")
	}
	if t.RL == analyzer.TyreRising {
		out = append(out, "rear left")
	}
	if t.RR == analyzer.TyreRising {
		out = append(out, "rear right")
	}
	return out
}
