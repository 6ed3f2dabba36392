package analyzer

import (
	"encoding/json"
	"math"
	"time"

	"github.com/rennlabs/pitwall/pkg/gt7"
)

// PaceTrend classifies the direction of recent lap times.
type PaceTrend string

const (
	PaceImproving  PaceTrend = "improving"
	PaceDegrading  PaceTrend = "degrading"
	PaceConsistent PaceTrend = "consistent"
)

// TyreTrend classifies the temperature direction of one corner over the
// sampling window.
type TyreTrend string

const (
	TyreRising  TyreTrend = "rising"
	TyreStable  TyreTrend = "stable"
	TyreCooling TyreTrend = "cooling"
)

// FuelUsage reports whether the session consumes fuel. It starts
// undetermined and settles exactly once, to on or off.
type FuelUsage string

const (
	FuelUndetermined FuelUsage = "undetermined"
	FuelOn           FuelUsage = "on"
	FuelOff          FuelUsage = "off"
)

// TyreTrendSet carries one trend per corner, same layout as gt7.CornerSet.
type TyreTrendSet struct {
	FL TyreTrend `json:"fl"`
	FR TyreTrend `json:"fr"`
	RL TyreTrend `json:"rl"`
	RR TyreTrend `json:"rr"`
}

// AnyRising reports whether at least one corner is heating up.
func (s TyreTrendSet) AnyRising() bool {
	return s.FL == TyreRising || s.FR == TyreRising || s.RL == TyreRising || s.RR == TyreRising
}

// JSONFloat is a float64 whose JSON form maps the +Inf sentinel to null.
// encoding/json refuses infinities, and clients treat null as "unknown".
type JSONFloat float64

func (f JSONFloat) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(f), 0) || math.IsNaN(float64(f)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

func (f *JSONFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = JSONFloat(math.Inf(1))
		return nil
	}
	return json.Unmarshal(b, (*float64)(f))
}

// Snapshot is a self-consistent point-in-time view of analyzer state. It is
// safe to retain and serialize; nothing in it aliases analyzer internals.
type Snapshot struct {
	OnTrack bool  `json:"onTrack"`
	CarCode int32 `json:"carCode"`

	CurrentLap int16 `json:"currentLap"`
	TotalLaps  int16 `json:"totalLaps"`

	LastLapMS int32 `json:"lastLapMs"`
	BestLapMS int32 `json:"bestLapMs"`
	// DeltaMS is last minus best; 0 until both are set.
	DeltaMS int32 `json:"deltaMs"`

	PaceTrend      PaceTrend `json:"paceTrend"`
	RecentLapTimes []int32   `json:"recentLapTimes"`

	FuelLevel    float32 `json:"fuelLevel"`
	FuelCapacity float32 `json:"fuelCapacity"`

	// FuelBurnPerLap is 0 until the burn rate is known.
	FuelBurnPerLap float64 `json:"fuelBurnPerLap"`
	// EstimatedLapsRemaining is +Inf until fuel usage is determined on and a
	// projection exists.
	EstimatedLapsRemaining JSONFloat `json:"estimatedLapsRemaining"`
	FuelUsage              FuelUsage `json:"fuelUsage"`

	TyreTemp   gt7.CornerSet `json:"tyreTemp"`
	TyreTrends TyreTrendSet  `json:"tyreTrends"`

	RevLimiterFraction float64 `json:"revLimiterFraction"`
	TCSFraction        float64 `json:"tcsFraction"`
	ASMFraction        float64 `json:"asmFraction"`

	SpeedKPH    float32 `json:"speedKph"`
	TopSpeedKPH float32 `json:"topSpeedKph"`
	EngineRPM   float32 `json:"engineRpm"`

	CurrentGear   uint8 `json:"currentGear"`
	SuggestedGear uint8 `json:"suggestedGear"`

	SessionDurationMS int64     `json:"sessionDurationMs"`
	LapStartedAt      time.Time `json:"lapStartedAt"`
}
