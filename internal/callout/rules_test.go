package callout

import (
	"testing"

	"github.com/rennlabs/pitwall/internal/analyzer"
	"github.com/rennlabs/pitwall/pkg/gt7"
)

// ── lap delta ─────────────────────────────────────────────────────────────────

func TestLapDeltaMessage(t *testing.T) {
	t.Parallel()

	s := analyzer.Snapshot{LastLapMS: 102350, BestLapMS: 101823}
	msg, data, fire := evalLapDelta(s)
	if !fire {
		t.Fatal("527 ms delta should fire")
	}
	want := "Last lap 01:42.350, +0.527s to your best."
	if msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}
	if got := data["deltaMs"]; got != int32(527) {
		t.Errorf("deltaMs = %v, want 527", got)
	}
}

func TestLapDeltaThresholdIsStrict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		last int32
		best int32
		fire bool
	}{
		{"exactly +500 ms stays quiet", 100500, 100000, false},
		{"+501 ms fires", 100501, 100000, true},
		{"exactly -500 ms stays quiet", 99500, 100000, false},
		{"-501 ms fires", 99499, 100000, true},
		{"no best lap", 100501, -1, false},
		{"no last lap", -1, 100000, false},
		{"zero last lap is unset", 0, 100000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := analyzer.Snapshot{LastLapMS: tt.last, BestLapMS: tt.best}
			if _, _, fire := evalLapDelta(s); fire != tt.fire {
				t.Errorf("last=%d best=%d: fire = %v, want %v", tt.last, tt.best, fire, tt.fire)
			}
		})
	}
}

func TestLapDeltaFasterLap(t *testing.T) {
	t.Parallel()

	// A lap 0.8 s quicker than best reports a negative delta. The analyzer
	// updates best before the rule runs only on the next lap, so a fresh
	// personal best still compares against the previous best here.
	s := analyzer.Snapshot{LastLapMS: 99200, BestLapMS: 100000}
	msg, _, fire := evalLapDelta(s)
	if !fire {
		t.Fatal("-800 ms delta should fire")
	}
	want := "Last lap 01:39.200, -0.800s to your best."
	if msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}
}

// ── tyre temperature ──────────────────────────────────────────────────────────

func TestTyreTempThresholdIsStrict(t *testing.T) {
	t.Parallel()

	s := analyzer.Snapshot{TyreTemp: gt7.CornerSet{FL: 100, FR: 100, RL: 100, RR: 100}}
	if _, _, fire := evalTyreTempHigh(s); fire {
		t.Error("exactly 100 degrees must not fire")
	}

	s.TyreTemp.FR = 100.4
	msg, data, fire := evalTyreTempHigh(s)
	if !fire {
		t.Fatal("100.4 degrees should fire")
	}
	want := "Tyre temperature critical: front right at 100 degrees."
	if msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}
	if got := data["corner"]; got != "front right" {
		t.Errorf("corner = %v, want front right", got)
	}
}

func TestHottestCorner(t *testing.T) {
	t.Parallel()

	tests := []struct {
		set  gt7.CornerSet
		want string
	}{
		{gt7.CornerSet{FL: 110, FR: 90, RL: 90, RR: 90}, "front left"},
		{gt7.CornerSet{FL: 90, FR: 110, RL: 90, RR: 90}, "front right"},
		{gt7.CornerSet{FL: 90, FR: 90, RL: 110, RR: 90}, "rear left"},
		{gt7.CornerSet{FL: 90, FR: 90, RL: 90, RR: 110}, "rear right"},
		// Ties resolve to the first corner in FL, FR, RL, RR order.
		{gt7.CornerSet{FL: 110, FR: 110, RL: 110, RR: 110}, "front left"},
	}
	for _, tt := range tests {
		if got := hottestCorner(tt.set); got != tt.want {
			t.Errorf("hottestCorner(%+v) = %q, want %q", tt.set, got, tt.want)
		}
	}
}

func TestTyreTrendMessage(t *testing.T) {
	t.Parallel()

	s := analyzer.Snapshot{TyreTrends: analyzer.TyreTrendSet{
		FL: analyzer.TyreRising,
		FR: analyzer.TyreStable,
		RL: analyzer.TyreCooling,
		RR: analyzer.TyreRising,
	}}
	msg, _, fire := evalTyreTrend(s)
	if !fire {
		t.Fatal("two rising corners should fire")
	}
	want := "Tyre temperatures rising: front left, rear right."
	if msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}

	s.TyreTrends = analyzer.TyreTrendSet{
		FL: analyzer.TyreStable, FR: analyzer.TyreStable,
		RL: analyzer.TyreCooling, RR: analyzer.TyreStable,
	}
	if _, _, fire := evalTyreTrend(s); fire {
		t.Error("no rising corner must not fire")
	}
}

// ── fuel ──────────────────────────────────────────────────────────────────────

func TestFuelLowGates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		usage analyzer.FuelUsage
		burn  float64
		est   float64
		fire  bool
	}{
		{"undetermined usage", analyzer.FuelUndetermined, 2.5, 2, false},
		{"fuel off", analyzer.FuelOff, 2.5, 2, false},
		{"no burn rate yet", analyzer.FuelOn, 0, 2, false},
		{"exactly three laps stays quiet", analyzer.FuelOn, 2.5, 3, false},
		{"just under three laps fires", analyzer.FuelOn, 2.5, 2.9, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := analyzer.Snapshot{
				FuelUsage:              tt.usage,
				FuelBurnPerLap:         tt.burn,
				EstimatedLapsRemaining: analyzer.JSONFloat(tt.est),
			}
			if _, _, fire := evalFuelLow(s); fire != tt.fire {
				t.Errorf("fire = %v, want %v", fire, tt.fire)
			}
		})
	}
}

func TestFuelLowMessage(t *testing.T) {
	t.Parallel()

	s := analyzer.Snapshot{
		FuelUsage:              analyzer.FuelOn,
		FuelBurnPerLap:         2.5,
		EstimatedLapsRemaining: analyzer.JSONFloat(2),
		FuelLevel:              5,
	}
	msg, data, fire := evalFuelLow(s)
	if !fire {
		t.Fatal("two laps remaining should fire")
	}
	if want := "Fuel critical: about 2.0 laps remaining."; msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}
	if got := data["estimatedLaps"]; got != 2.0 {
		t.Errorf("estimatedLaps = %v, want 2", got)
	}
}

func TestFuelEstimateRequiresKnownBurn(t *testing.T) {
	t.Parallel()

	s := analyzer.Snapshot{FuelUsage: analyzer.FuelOn}
	if _, _, fire := evalFuelEstimate(s); fire {
		t.Error("unknown burn rate must not fire")
	}

	s.FuelBurnPerLap = 2.0
	s.EstimatedLapsRemaining = analyzer.JSONFloat(4.5)
	msg, _, fire := evalFuelEstimate(s)
	if !fire {
		t.Fatal("known burn rate should fire")
	}
	if want := "Fuel for about 4.5 more laps."; msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}
}

// ── per-lap fractions ─────────────────────────────────────────────────────────

func TestFractionThresholdsAreStrict(t *testing.T) {
	t.Parallel()

	// Rev limiter gate sits at 15%.
	if _, _, fire := evalRevLimiter(analyzer.Snapshot{RevLimiterFraction: 0.15}); fire {
		t.Error("exactly 15% limiter must not fire")
	}
	msg, _, fire := evalRevLimiter(analyzer.Snapshot{RevLimiterFraction: 0.22})
	if !fire {
		t.Fatal("22% limiter should fire")
	}
	if want := "On the rev limiter 22% of that lap."; msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}

	// Assist gates sit at 10%.
	if _, _, fire := evalTCS(analyzer.Snapshot{TCSFraction: 0.10}); fire {
		t.Error("exactly 10% TCS must not fire")
	}
	msg, _, fire = evalTCS(analyzer.Snapshot{TCSFraction: 0.18})
	if !fire {
		t.Fatal("18% TCS should fire")
	}
	if want := "Traction control active 18% of that lap."; msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}

	if _, _, fire := evalASM(analyzer.Snapshot{ASMFraction: 0.10}); fire {
		t.Error("exactly 10% ASM must not fire")
	}
	msg, _, fire = evalASM(analyzer.Snapshot{ASMFraction: 0.12})
	if !fire {
		t.Fatal("12% ASM should fire")
	}
	if want := "Stability assist active 12% of that lap."; msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}
}

// ── race progress ─────────────────────────────────────────────────────────────

func TestRaceProgress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		currentLap int16
		totalLaps  int16
		fire       bool
		want       string
	}{
		{"lap multiple of five", 6, 10, true, "Lap 5 of 10 complete, 5 to go."},
		{"mid race off the fives", 4, 10, false, ""},
		{"three to go", 8, 10, true, "Lap 7 of 10 complete, 3 to go."},
		{"final lap", 10, 10, true, "Final lap."},
		{"race complete", 11, 10, true, "Race complete."},
		{"untimed session", 4, 0, false, ""},
		{"nothing completed yet", 1, 10, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := analyzer.Snapshot{CurrentLap: tt.currentLap, TotalLaps: tt.totalLaps}
			msg, _, fire := evalRaceProgress(s)
			if fire != tt.fire {
				t.Fatalf("fire = %v, want %v", fire, tt.fire)
			}
			if fire && msg != tt.want {
				t.Errorf("message = %q, want %q", msg, tt.want)
			}
		})
	}
}

// ── summaries ─────────────────────────────────────────────────────────────────

func TestLapSummaryMessages(t *testing.T) {
	t.Parallel()

	s := analyzer.Snapshot{CurrentLap: 6, LastLapMS: 102350, BestLapMS: -1}
	msg, _, fire := evalLapSummary(s)
	if !fire {
		t.Fatal("completed lap should fire")
	}
	if want := "Lap 5 complete: 01:42.350."; msg != want {
		t.Errorf("without best: message = %q, want %q", msg, want)
	}

	s.BestLapMS = 101823
	msg, _, _ = evalLapSummary(s)
	if want := "Lap 5 complete: 01:42.350, best 01:41.823."; msg != want {
		t.Errorf("with best: message = %q, want %q", msg, want)
	}

	if _, _, fire := evalLapSummary(analyzer.Snapshot{LastLapMS: -1}); fire {
		t.Error("no last lap must not fire")
	}
}

func TestPaceSummaryRequiresThreeLaps(t *testing.T) {
	t.Parallel()

	s := analyzer.Snapshot{
		PaceTrend:      analyzer.PaceDegrading,
		RecentLapTimes: []int32{101823, 102100},
	}
	if _, _, fire := evalPaceSummary(s); fire {
		t.Error("two laps of history must not fire")
	}

	s.RecentLapTimes = []int32{101500, 101823, 102100, 102350}
	msg, _, fire := evalPaceSummary(s)
	if !fire {
		t.Fatal("four laps of history should fire")
	}
	want := "Pace degrading. Last three laps: 01:41.823, 01:42.100, 01:42.350."
	if msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}
}

// ── formatting ────────────────────────────────────────────────────────────────

func TestFormatLapTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ms   int32
		want string
	}{
		{0, "00:00.000"},
		{-5, "00:00.000"},
		{999, "00:00.999"},
		{59999, "00:59.999"},
		{60000, "01:00.000"},
		{102350, "01:42.350"},
		{3723456, "62:03.456"},
	}
	for _, tt := range tests {
		if got := FormatLapTime(tt.ms); got != tt.want {
			t.Errorf("FormatLapTime(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestFormatDelta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ms   int32
		want string
	}{
		{527, "+0.527s"},
		{-527, "-0.527s"},
		{0, "+0.000s"},
		{12000, "+12.000s"},
	}
	for _, tt := range tests {
		if got := FormatDelta(tt.ms); got != tt.want {
			t.Errorf("FormatDelta(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}
