package analyzer

import (
	"slices"
	"time"
)

const (
	// tyreWindowSpan bounds how far back trend detection looks.
	tyreWindowSpan = 5 * time.Second
	// tyreTrendDelta is the strict temperature change that separates a
	// trend from sensor noise.
	tyreTrendDelta float32 = 3
)

type tyreSample struct {
	temp float32
	at   time.Time
}

// tyreWindow holds the recent temperature samples of one corner.
type tyreWindow struct {
	samples []tyreSample
}

func (w *tyreWindow) add(now time.Time, temp float32) {
	w.samples = append(w.samples, tyreSample{temp: temp, at: now})
	cutoff := now.Add(-tyreWindowSpan)
	drop := 0
	for drop < len(w.samples) && w.samples[drop].at.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		w.samples = slices.Delete(w.samples, 0, drop)
	}
}

func (w *tyreWindow) trend() TyreTrend {
	if len(w.samples) < 2 {
		return TyreStable
	}
	first := w.samples[0].temp
	last := w.samples[len(w.samples)-1].temp
	switch {
	case last-first > tyreTrendDelta:
		return TyreRising
	case first-last > tyreTrendDelta:
		return TyreCooling
	default:
		return TyreStable
	}
}

func (w *tyreWindow) reset() {
	w.samples = w.samples[:0]
}
