// Package analyzer derives race state from the raw frame stream: lap
// history, pace and tyre trends, and a fuel model, exposed as immutable
// snapshots.
//
// The analyzer is a single-writer structure. Exactly one goroutine (the
// frame consumer) calls Ingest; any goroutine may call Snapshot and gets a
// self-consistent copy.
package analyzer

import (
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/rennlabs/pitwall/pkg/gt7"
)

// recentLapCap bounds the lap-time FIFO exposed in snapshots.
const recentLapCap = 5

// Analyzer accumulates derived state for the active session. A session
// begins at the first on-track frame and ends when a new-race edge is
// detected; going off-track only pauses accumulation.
type Analyzer struct {
	log *slog.Logger

	mu sync.Mutex

	seen bool // an on-track frame has been observed since process start

	sessionStart time.Time
	lapStart     time.Time

	// Remembered race identity, from the previous on-track frame.
	carCode  int32
	prevLap  int16
	prevBest int32
	prevFuel float32

	frame gt7.Frame // most recent frame, on-track or not

	// Per-lap accumulators.
	lapFrames int
	revFrames int
	tcsFrames int
	asmFrames int
	topSpeed  float32

	recentLaps []int32
	fuel       fuelModel
	tyres      [4]tyreWindow

	onLap func()
}

// New returns an Analyzer with no session state. Fuel usage starts
// undetermined even before the first frame.
func New(log *slog.Logger) *Analyzer {
	return &Analyzer{
		log:  log.With("component", "analyzer"),
		fuel: fuelModel{usage: FuelUndetermined},
	}
}

// SetLapObserver registers fn to run after lap-change bookkeeping completes.
// fn runs on the Ingest goroutine without the analyzer lock held, so it may
// call Snapshot. Register before the first Ingest.
func (a *Analyzer) SetLapObserver(fn func()) {
	a.onLap = fn
}

// Ingest folds one frame into the session state. Off-track frames update
// the latest-frame view only; accumulation is paused until the car is back
// on track.
func (a *Analyzer) Ingest(now time.Time, f *gt7.Frame) {
	a.mu.Lock()
	lapChanged := false
	if f.Flags.OnTrack {
		switch {
		case a.isNewRace(f):
			a.reset(now, f)
		case f.CurrentLap != a.prevLap:
			a.completeLap(now, f)
			lapChanged = true
		}
		a.accumulate(now, f)
	}
	a.frame = *f
	a.mu.Unlock()

	if lapChanged && a.onLap != nil {
		a.onLap()
	}
}

// isNewRace applies the session boundary edges against the remembered
// identity. Caller holds the lock.
func (a *Analyzer) isNewRace(f *gt7.Frame) bool {
	if !a.seen {
		return true
	}
	if f.CarCode != a.carCode {
		return true
	}
	if f.CurrentLap == 0 && a.prevLap > 0 {
		return true
	}
	if int32(f.CurrentLap) < int32(a.prevLap)-1 {
		return true
	}
	if a.prevBest > 0 && f.BestLapMS == -1 {
		return true
	}
	// A refill back to (nearly) full reads as a pit stop or a fresh stint.
	if f.FuelCapacity > 0 {
		cur := f.FuelLevel / f.FuelCapacity
		prev := a.prevFuel / f.FuelCapacity
		if cur >= 0.99 && prev < 0.95 {
			return true
		}
	}
	return false
}

func (a *Analyzer) reset(now time.Time, f *gt7.Frame) {
	a.seen = true
	a.sessionStart = now
	a.lapStart = now
	a.carCode = f.CarCode
	a.prevLap = f.CurrentLap
	a.prevBest = f.BestLapMS
	a.prevFuel = f.FuelLevel

	a.lapFrames, a.revFrames, a.tcsFrames, a.asmFrames = 0, 0, 0, 0
	a.topSpeed = 0
	a.recentLaps = a.recentLaps[:0]
	a.fuel = newFuelModel(f.FuelLevel)
	for i := range a.tyres {
		a.tyres[i].reset()
	}

	a.log.Info("new race detected",
		"carCode", f.CarCode,
		"currentLap", f.CurrentLap,
		"totalLaps", f.TotalLaps,
		"fuel", f.FuelLevel,
	)
}

// completeLap runs the lap-change bookkeeping. Caller holds the lock.
func (a *Analyzer) completeLap(now time.Time, f *gt7.Frame) {
	if gt7.LapTimeSet(f.LastLapMS) {
		a.recentLaps = append(a.recentLaps, f.LastLapMS)
		if n := len(a.recentLaps); n > recentLapCap {
			a.recentLaps = slices.Delete(a.recentLaps, 0, n-recentLapCap)
		}
	}
	a.fuel.lapStarts = append(a.fuel.lapStarts, f.FuelLevel)

	a.lapFrames, a.revFrames, a.tcsFrames, a.asmFrames = 0, 0, 0, 0
	a.topSpeed = 0
	a.lapStart = now

	a.log.Debug("lap change",
		"lap", f.CurrentLap,
		"lastLapMs", f.LastLapMS,
		"bestLapMs", f.BestLapMS,
	)
}

func (a *Analyzer) accumulate(now time.Time, f *gt7.Frame) {
	a.lapFrames++
	if f.Flags.RevLimiter {
		a.revFrames++
	}
	if f.Flags.TCSActive {
		a.tcsFrames++
	}
	if f.Flags.ASMActive {
		a.asmFrames++
	}
	if f.SpeedKPH > a.topSpeed {
		a.topSpeed = f.SpeedKPH
	}

	a.fuel.observe(now.Sub(a.sessionStart), f.FuelLevel)

	a.tyres[0].add(now, f.TyreTemp.FL)
	a.tyres[1].add(now, f.TyreTemp.FR)
	a.tyres[2].add(now, f.TyreTemp.RL)
	a.tyres[3].add(now, f.TyreTemp.RR)

	a.prevLap = f.CurrentLap
	a.prevBest = f.BestLapMS
	a.prevFuel = f.FuelLevel
}

// Snapshot builds a point-in-time copy of the derived state. It is
// idempotent and never mutates analyzer state.
func (a *Analyzer) Snapshot(now time.Time) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	f := a.frame
	s := Snapshot{
		OnTrack:        f.Flags.OnTrack,
		CarCode:        f.CarCode,
		CurrentLap:     f.CurrentLap,
		TotalLaps:      f.TotalLaps,
		LastLapMS:      f.LastLapMS,
		BestLapMS:      f.BestLapMS,
		PaceTrend:      paceTrend(a.recentLaps),
		RecentLapTimes: slices.Clone(a.recentLaps),
		FuelLevel:      f.FuelLevel,
		FuelCapacity:   f.FuelCapacity,
		FuelUsage:      a.fuel.usage,
		TyreTemp:       f.TyreTemp,
		TyreTrends: TyreTrendSet{
			FL: a.tyres[0].trend(),
			FR: a.tyres[1].trend(),
			RL: a.tyres[2].trend(),
			RR: a.tyres[3].trend(),
		},
		SpeedKPH:      f.SpeedKPH,
		TopSpeedKPH:   a.topSpeed,
		EngineRPM:     f.EngineRPM,
		CurrentGear:   f.CurrentGear,
		SuggestedGear: f.SuggestedGear,
		LapStartedAt:  a.lapStart,
	}

	if gt7.LapTimeSet(f.LastLapMS) && gt7.LapTimeSet(f.BestLapMS) {
		s.DeltaMS = f.LastLapMS - f.BestLapMS
	}
	if a.lapFrames > 0 {
		total := float64(a.lapFrames)
		s.RevLimiterFraction = float64(a.revFrames) / total
		s.TCSFraction = float64(a.tcsFrames) / total
		s.ASMFraction = float64(a.asmFrames) / total
	}
	if a.seen {
		s.SessionDurationMS = now.Sub(a.sessionStart).Milliseconds()
	}

	// An off or undetermined fuel flag masks whatever the model computed.
	s.EstimatedLapsRemaining = JSONFloat(math.Inf(1))
	if a.fuel.usage == FuelOn {
		burn := a.fuel.burnRate()
		s.FuelBurnPerLap = burn
		elapsed := now.Sub(a.sessionStart)
		s.EstimatedLapsRemaining = JSONFloat(a.fuel.estimateLaps(elapsed, f.FuelLevel, burn, referenceLap(&f)))
	}
	return s
}

// referenceLap picks the lap duration used to project fallback fuel
// consumption: best when set, else last, else none.
func referenceLap(f *gt7.Frame) int32 {
	if gt7.LapTimeSet(f.BestLapMS) {
		return f.BestLapMS
	}
	if gt7.LapTimeSet(f.LastLapMS) {
		return f.LastLapMS
	}
	return 0
}

// paceTrend inspects the last three laps; strict monotonicity either way,
// anything else is consistent.
func paceTrend(laps []int32) PaceTrend {
	if len(laps) < 3 {
		return PaceConsistent
	}
	window := laps[len(laps)-3:]
	switch {
	case window[0] > window[1] && window[1] > window[2]:
		return PaceImproving
	case window[0] < window[1] && window[1] < window[2]:
		return PaceDegrading
	default:
		return PaceConsistent
	}
}
