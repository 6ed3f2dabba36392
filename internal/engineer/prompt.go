package engineer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rennlabs/pitwall/internal/analyzer"
	"github.com/rennlabs/pitwall/internal/callout"
)

// baseInstructions is the fixed block every session opens with. Personality
// prompts and custom instructions are appended after it and may alter style
// only; nothing they say overrides these rules.
const baseInstructions = `You are a race engineer on the pit wall, talking to your driver over team radio during a live session. Keep every reply to one or two short sentences; the driver is at speed and cannot follow more. Use natural radio phrasing and standard racing terms (box, stint, delta, out-lap, flat spot).

You receive two kinds of tagged messages. Messages starting with [CONTEXT UPDATE] are background telemetry: absorb them silently and never reply to them. Messages starting with [CALLOUT: <type>] are events you must relay to the driver in your own words, once, keeping every number exactly as given.

Otherwise, speak only when the driver speaks to you. Answer from the latest telemetry you have; if you do not know, say so rather than invent a figure. Never break character.`

// composeInstructions builds the session system instruction: base block,
// personality prompt, then the user's custom instructions if any.
func composeInstructions(p Personality, custom string) string {
	parts := []string{baseInstructions}
	if p.Prompt != "" {
		parts = append(parts, p.Prompt)
	}
	if custom = strings.TrimSpace(custom); custom != "" {
		parts = append(parts, custom)
	}
	return strings.Join(parts, "\n\n")
}

// formatCallout renders a callout as a single text turn for the model.
func formatCallout(c callout.Callout) string {
	return fmt.Sprintf("[CALLOUT: %s] %s Deliver this information in your style.", c.Type, c.Message)
}

// formatContext renders a snapshot as the periodic background-context block.
// Lines with nothing to say are left out so the model never sees placeholder
// values.
func formatContext(s analyzer.Snapshot) string {
	var b strings.Builder
	b.WriteString("[CONTEXT UPDATE]\n")

	if s.TotalLaps > 0 {
		fmt.Fprintf(&b, "Lap %d of %d\n", s.CurrentLap, s.TotalLaps)
	} else {
		fmt.Fprintf(&b, "Lap %d\n", s.CurrentLap)
	}

	if s.LastLapMS > 0 {
		fmt.Fprintf(&b, "Last lap %s", callout.FormatLapTime(s.LastLapMS))
		if s.BestLapMS > 0 {
			fmt.Fprintf(&b, ", best %s, delta %s",
				callout.FormatLapTime(s.BestLapMS), callout.FormatDelta(s.DeltaMS))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Pace %s\n", s.PaceTrend)
	fmt.Fprintf(&b, "%.0f km/h, gear %d, %.0f rpm\n", s.SpeedKPH, s.CurrentGear, s.EngineRPM)

	if s.FuelUsage == analyzer.FuelOn {
		fmt.Fprintf(&b, "Fuel %.1f of %.1f L", s.FuelLevel, s.FuelCapacity)
		if s.FuelBurnPerLap > 0 {
			fmt.Fprintf(&b, ", burning %.2f L/lap", s.FuelBurnPerLap)
		}
		if est := float64(s.EstimatedLapsRemaining); !math.IsInf(est, 0) {
			fmt.Fprintf(&b, ", %.1f laps left", est)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Tyres C: FL %.0f, FR %.0f, RL %.0f, RR %.0f\n",
		s.TyreTemp.FL, s.TyreTemp.FR, s.TyreTemp.RL, s.TyreTemp.RR)

	if s.TCSFraction > assistContextThreshold {
		fmt.Fprintf(&b, "TCS active %.0f%% of current lap\n", s.TCSFraction*100)
	}
	if s.ASMFraction > assistContextThreshold {
		fmt.Fprintf(&b, "ASM active %.0f%% of current lap\n", s.ASMFraction*100)
	}

	return strings.TrimRight(b.String(), "\n")
}

// assistContextThreshold hides negligible assist activity from the context
// block.
const assistContextThreshold = 0.05
