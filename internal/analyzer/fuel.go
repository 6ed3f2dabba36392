package analyzer

import (
	"math"
	"time"
)

// fuelCheckpoints are the elapsed-time marks at which consumption is
// compared against the session-start level. If none of them sees
// consumption the session is declared fuel-free.
var fuelCheckpoints = [...]time.Duration{
	5 * time.Second,
	10 * time.Second,
	15 * time.Second,
	20 * time.Second,
	25 * time.Second,
	30 * time.Second,
}

// fuelDetectThreshold filters float jitter on the fuel gauge.
const fuelDetectThreshold float32 = 0.01

// fuelModel tracks consumption across the session. lapStarts[0] is the level
// at the start line; each lap change appends the level at that moment.
type fuelModel struct {
	initial   float32
	usage     FuelUsage
	next      int // index of the next undetermined checkpoint
	lapStarts []float32
}

func newFuelModel(level float32) fuelModel {
	return fuelModel{
		initial:   level,
		usage:     FuelUndetermined,
		lapStarts: []float32{level},
	}
}

// observe runs any checkpoints that elapsed time has passed. The usage flag
// settles at most once; later observations are no-ops.
func (m *fuelModel) observe(elapsed time.Duration, level float32) {
	if m.usage != FuelUndetermined {
		return
	}
	for m.next < len(fuelCheckpoints) && elapsed >= fuelCheckpoints[m.next] {
		if m.initial-level > fuelDetectThreshold {
			m.usage = FuelOn
			return
		}
		m.next++
	}
	if m.next == len(fuelCheckpoints) {
		m.usage = FuelOff
	}
}

// burnRate averages the most recent three positive per-lap consumption
// values. The first interval is a partial out-lap and never counts.
func (m *fuelModel) burnRate() float64 {
	if len(m.lapStarts) < 3 {
		return 0
	}
	var diffs []float64
	for i := 2; i < len(m.lapStarts); i++ {
		if d := float64(m.lapStarts[i-1]) - float64(m.lapStarts[i]); d > 0 {
			diffs = append(diffs, d)
		}
	}
	if len(diffs) == 0 {
		return 0
	}
	if len(diffs) > 3 {
		diffs = diffs[len(diffs)-3:]
	}
	var sum float64
	for _, d := range diffs {
		sum += d
	}
	return sum / float64(len(diffs))
}

// estimateLaps projects how many laps the remaining fuel covers. When the
// burn rate is not yet known it falls back to a per-millisecond rate
// projected onto a reference lap duration.
func (m *fuelModel) estimateLaps(elapsed time.Duration, level float32, burn float64, referenceLapMS int32) float64 {
	if burn > 0 {
		return float64(level) / burn
	}
	if elapsed <= 5*time.Second {
		return math.Inf(1)
	}
	consumed := m.initial - level
	if consumed <= fuelDetectThreshold {
		return math.Inf(1)
	}
	if referenceLapMS <= 0 {
		return math.Inf(1)
	}
	perMS := float64(consumed) / float64(elapsed.Milliseconds())
	perLap := perMS * float64(referenceLapMS)
	return float64(level) / perLap
}
