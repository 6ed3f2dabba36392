package gt7

// Vector3 is a three-component vector in the simulator's coordinate space.
type Vector3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// CornerSet carries one value per wheel, front-left first.
type CornerSet struct {
	FL float32 `json:"fl"`
	FR float32 `json:"fr"`
	RL float32 `json:"rl"`
	RR float32 `json:"rr"`
}

// Max returns the largest of the four corner values.
func (c CornerSet) Max() float32 {
	m := c.FL
	if c.FR > m {
		m = c.FR
	}
	if c.RL > m {
		m = c.RL
	}
	if c.RR > m {
		m = c.RR
	}
	return m
}

// Flags is the decoded simulator state word.
type Flags struct {
	// OnTrack is true while the car is live on track, false in menus,
	// replays from the pause screen, and between races.
	OnTrack    bool `json:"onTrack"`
	Paused     bool `json:"paused"`
	Loading    bool `json:"loading"`
	InGear     bool `json:"inGear"`
	HasTurbo   bool `json:"hasTurbo"`
	RevLimiter bool `json:"revLimiter"`
	Handbrake  bool `json:"handbrake"`
	Lights     bool `json:"lights"`
	// ASMActive reports the stability-management assist intervening.
	ASMActive bool `json:"asmActive"`
	// TCSActive reports the traction-control assist intervening.
	TCSActive bool `json:"tcsActive"`
}

// Frame is one decoded telemetry sample. Frames are immutable after decode
// and safe to share between goroutines read-only.
//
// Times are reported exactly as the simulator does: lap times in
// milliseconds with -1 meaning "not set yet". Speed is converted from the
// wire's m/s to km/h at decode; throttle and brake from the wire's 0-255 to
// a 0-100 percentage.
type Frame struct {
	PacketID int32 `json:"packetId"`

	Position Vector3 `json:"position"`
	Velocity Vector3 `json:"velocity"`
	Rotation Vector3 `json:"rotation"`
	// OrientationToNorth is the yaw of the car relative to track north,
	// in radians.
	OrientationToNorth float32 `json:"orientationToNorth"`

	EngineRPM    float32 `json:"engineRpm"`
	FuelLevel    float32 `json:"fuelLevel"`
	FuelCapacity float32 `json:"fuelCapacity"`
	SpeedKPH     float32 `json:"speedKph"`
	TurboBoost   float32 `json:"turboBoost"`
	OilPressure  float32 `json:"oilPressure"`
	WaterTemp    float32 `json:"waterTemp"`
	OilTemp      float32 `json:"oilTemp"`

	TyreTemp CornerSet `json:"tyreTemp"`

	CurrentLap int16 `json:"currentLap"`
	TotalLaps  int16 `json:"totalLaps"`
	BestLapMS  int32 `json:"bestLapMs"`
	LastLapMS  int32 `json:"lastLapMs"`

	// DayProgressionMS is the in-game time of day in milliseconds.
	DayProgressionMS int32 `json:"dayProgressionMs"`

	RaceStartPosition int16 `json:"raceStartPosition"`
	PreRaceNumCars    int16 `json:"preRaceNumCars"`

	RPMAlertMin        int16 `json:"rpmAlertMin"`
	RPMAlertMax        int16 `json:"rpmAlertMax"`
	CalculatedMaxSpeed int16 `json:"calculatedMaxSpeed"`

	Flags Flags `json:"flags"`

	// CurrentGear is 0 for reverse, 1-8 for forward gears. SuggestedGear is
	// 15 when the simulator has no suggestion.
	CurrentGear   uint8 `json:"currentGear"`
	SuggestedGear uint8 `json:"suggestedGear"`

	Throttle float32 `json:"throttle"`
	Brake    float32 `json:"brake"`

	// WheelRPS is wheel angular speed in radians per second; multiply by
	// TyreRadius for per-wheel surface speed.
	WheelRPS         CornerSet `json:"wheelRps"`
	TyreRadius       CornerSet `json:"tyreRadius"`
	SuspensionHeight CornerSet `json:"suspensionHeight"`

	ClutchPedal      float32 `json:"clutchPedal"`
	ClutchEngagement float32 `json:"clutchEngagement"`
	// RPMFromClutchToGearbox is the engine speed seen downstream of the
	// clutch, diverging from EngineRPM while the clutch slips.
	RPMFromClutchToGearbox float32 `json:"rpmFromClutchToGearbox"`

	TransmissionTopSpeed float32    `json:"transmissionTopSpeed"`
	GearRatios           [8]float32 `json:"gearRatios"`

	CarCode int32 `json:"carCode"`
}

// LapTimeSet reports whether a lap-time value carries a real measurement
// rather than the simulator's -1 "unset" sentinel.
func LapTimeSet(ms int32) bool { return ms > 0 }
