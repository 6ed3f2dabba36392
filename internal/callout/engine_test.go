package callout

import (
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/rennlabs/pitwall/internal/analyzer"
	"github.com/rennlabs/pitwall/pkg/gt7"
)

var t0 = time.Date(2025, 6, 12, 14, 30, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// hotSnapshot trips every rule in both tables: low fuel, one tyre over
// temperature, rising fronts, a slow lap, heavy assist and limiter use, and
// a lap count on a multiple of five.
func hotSnapshot() analyzer.Snapshot {
	return analyzer.Snapshot{
		OnTrack:                true,
		CurrentLap:             6,
		TotalLaps:              10,
		LastLapMS:              102350,
		BestLapMS:              101823,
		DeltaMS:                527,
		PaceTrend:              analyzer.PaceDegrading,
		RecentLapTimes:         []int32{101823, 102100, 102350},
		FuelLevel:              5,
		FuelCapacity:           60,
		FuelBurnPerLap:         2.5,
		EstimatedLapsRemaining: analyzer.JSONFloat(2),
		FuelUsage:              analyzer.FuelOn,
		TyreTemp:               gt7.CornerSet{FL: 101, FR: 104, RL: 92, RR: 96},
		TyreTrends: analyzer.TyreTrendSet{
			FL: analyzer.TyreRising,
			FR: analyzer.TyreRising,
			RL: analyzer.TyreStable,
			RR: analyzer.TyreCooling,
		},
		RevLimiterFraction: 0.22,
		TCSFraction:        0.18,
		ASMFraction:        0.12,
	}
}

func typesOf(cs []Callout) []Type {
	out := make([]Type, len(cs))
	for i, c := range cs {
		out[i] = c.Type
	}
	return out
}

// ── verbosity gate ────────────────────────────────────────────────────────────

func TestVerbosityGate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		verbosity    Verbosity
		wantPeriodic []Type
		wantLap      []Type
	}{
		{
			name:         "low admits critical only",
			verbosity:    VerbosityLow,
			wantPeriodic: []Type{TypeFuelLow, TypeTyreTempHigh},
			wantLap:      nil,
		},
		{
			name:         "medium adds normal",
			verbosity:    VerbosityMedium,
			wantPeriodic: []Type{TypeFuelLow, TypeTyreTempHigh, TypeTyreTrend},
			wantLap: []Type{
				TypeLapDelta, TypeFuelEstimate, TypeRevLimiter,
				TypeTCSIntervention, TypeASMIntervention, TypeRaceProgress,
			},
		},
		{
			name:         "high admits everything",
			verbosity:    VerbosityHigh,
			wantPeriodic: []Type{TypeFuelLow, TypeTyreTempHigh, TypeTyreTrend},
			wantLap: []Type{
				TypeLapDelta, TypeLapSummary, TypeFuelEstimate, TypeRevLimiter,
				TypeTCSIntervention, TypeASMIntervention, TypeRaceProgress,
				TypePaceSummary,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := NewEngine(testLogger(), tt.verbosity)
			s := hotSnapshot()

			if got := typesOf(e.OnTick(t0, s)); !slices.Equal(got, tt.wantPeriodic) {
				t.Errorf("OnTick types = %v, want %v", got, tt.wantPeriodic)
			}
			if got := typesOf(e.OnLapComplete(t0, s)); !slices.Equal(got, tt.wantLap) {
				t.Errorf("OnLapComplete types = %v, want %v", got, tt.wantLap)
			}
		})
	}
}

func TestSetVerbosity(t *testing.T) {
	t.Parallel()
	e := NewEngine(testLogger(), VerbosityMedium)

	e.SetVerbosity(VerbosityHigh)
	if got := e.Verbosity(); got != VerbosityHigh {
		t.Fatalf("Verbosity() = %d, want %d", got, VerbosityHigh)
	}

	// Out-of-range levels leave the gate untouched.
	e.SetVerbosity(0)
	e.SetVerbosity(4)
	if got := e.Verbosity(); got != VerbosityHigh {
		t.Fatalf("Verbosity() after invalid set = %d, want %d", got, VerbosityHigh)
	}
}

func TestNewEngineInvalidVerbosityDefaultsToMedium(t *testing.T) {
	t.Parallel()
	e := NewEngine(testLogger(), 0)
	if got := e.Verbosity(); got != VerbosityMedium {
		t.Fatalf("Verbosity() = %d, want %d", got, VerbosityMedium)
	}
}

// ── cooldowns ─────────────────────────────────────────────────────────────────

// TestTyreTempCooldownSpacing ticks the engine at 1 Hz for a minute over a
// constantly overheated tyre and expects exactly three callouts, 30 s apart.
func TestTyreTempCooldownSpacing(t *testing.T) {
	t.Parallel()
	e := NewEngine(testLogger(), VerbosityLow)

	s := analyzer.Snapshot{
		TyreTemp:  gt7.CornerSet{FL: 95, FR: 105, RL: 92, RR: 93},
		FuelUsage: analyzer.FuelUndetermined,
	}

	var fired []time.Duration
	for i := 0; i <= 60; i++ {
		offset := time.Duration(i) * time.Second
		for _, c := range e.OnTick(t0.Add(offset), s) {
			if c.Type != TypeTyreTempHigh {
				t.Fatalf("unexpected callout %q at +%s", c.Type, offset)
			}
			fired = append(fired, offset)
		}
	}

	want := []time.Duration{0, 30 * time.Second, 60 * time.Second}
	if !slices.Equal(fired, want) {
		t.Fatalf("tyre_temp_high fired at %v, want %v", fired, want)
	}
}

func TestCooldownIsPerType(t *testing.T) {
	t.Parallel()
	e := NewEngine(testLogger(), VerbosityHigh)
	s := hotSnapshot()

	first := typesOf(e.OnTick(t0, s))
	want := []Type{TypeFuelLow, TypeTyreTempHigh, TypeTyreTrend}
	if !slices.Equal(first, want) {
		t.Fatalf("first tick types = %v, want %v", first, want)
	}

	// 31 s later only the 30 s tyre temperature cooldown has elapsed; the
	// two 60 s rules stay quiet.
	second := typesOf(e.OnTick(t0.Add(31*time.Second), s))
	if !slices.Equal(second, []Type{TypeTyreTempHigh}) {
		t.Fatalf("second tick types = %v, want [%s]", second, TypeTyreTempHigh)
	}
}

func TestLapRulesHaveNoCooldown(t *testing.T) {
	t.Parallel()
	e := NewEngine(testLogger(), VerbosityHigh)
	s := hotSnapshot()

	first := e.OnLapComplete(t0, s)
	second := e.OnLapComplete(t0.Add(time.Second), s)
	if len(first) == 0 || len(second) != len(first) {
		t.Fatalf("back-to-back laps fired %d then %d callouts, want equal non-zero", len(first), len(second))
	}
}

func TestCalloutCarriesMetadata(t *testing.T) {
	t.Parallel()
	e := NewEngine(testLogger(), VerbosityLow)

	now := t0.Add(5 * time.Minute)
	s := analyzer.Snapshot{TyreTemp: gt7.CornerSet{FL: 95, FR: 105, RL: 92, RR: 93}}
	cs := e.OnTick(now, s)
	if len(cs) != 1 {
		t.Fatalf("got %d callouts, want 1", len(cs))
	}

	c := cs[0]
	if c.Type != TypeTyreTempHigh {
		t.Errorf("Type = %q, want %q", c.Type, TypeTyreTempHigh)
	}
	if c.Priority != PriorityCritical {
		t.Errorf("Priority = %v, want %v", c.Priority, PriorityCritical)
	}
	if !c.At.Equal(now) {
		t.Errorf("At = %v, want %v", c.At, now)
	}
	if c.Message == "" || c.Data == nil {
		t.Errorf("callout missing message or data: %+v", c)
	}
}

// ── priority / verbosity helpers ──────────────────────────────────────────────

func TestVerbosityAdmits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v    Verbosity
		p    Priority
		want bool
	}{
		{VerbosityLow, PriorityCritical, true},
		{VerbosityLow, PriorityNormal, false},
		{VerbosityLow, PriorityInfo, false},
		{VerbosityMedium, PriorityCritical, true},
		{VerbosityMedium, PriorityNormal, true},
		{VerbosityMedium, PriorityInfo, false},
		{VerbosityHigh, PriorityCritical, true},
		{VerbosityHigh, PriorityNormal, true},
		{VerbosityHigh, PriorityInfo, true},
	}
	for _, tt := range tests {
		if got := tt.v.Admits(tt.p); got != tt.want {
			t.Errorf("Verbosity(%d).Admits(%s) = %v, want %v", tt.v, tt.p, got, tt.want)
		}
	}
}

func TestPriorityString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		p    Priority
		want string
	}{
		{PriorityInfo, "info"},
		{PriorityNormal, "normal"},
		{PriorityCritical, "critical"},
		{Priority(0), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Priority(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}
