package gt7

import (
	"encoding/binary"
	"math"
)

// Byte offsets of the decoded packet layout. All multi-byte values are
// little-endian.
const (
	offPosition           = 0x04
	offVelocity           = 0x10
	offRotation           = 0x1C
	offOrientationNorth   = 0x28
	offEngineRPM          = 0x3C
	offFuelLevel          = 0x44
	offFuelCapacity       = 0x48
	offSpeedMPS           = 0x4C
	offTurboBoost         = 0x50
	offOilPressure        = 0x54
	offWaterTemp          = 0x58
	offOilTemp            = 0x5C
	offTyreTemp           = 0x60
	offPacketID           = 0x70
	offCurrentLap         = 0x74
	offTotalLaps          = 0x76
	offBestLap            = 0x78
	offLastLap            = 0x7C
	offDayProgression     = 0x80
	offRaceStartPosition  = 0x84
	offPreRaceNumCars     = 0x86
	offRPMAlertMin        = 0x88
	offRPMAlertMax        = 0x8A
	offCalculatedMaxSpeed = 0x8C
	offFlags              = 0x8E
	offGears              = 0x90
	offThrottle           = 0x91
	offBrake              = 0x92
	offWheelRPS           = 0xA4
	offTyreRadius         = 0xB4
	offSuspension         = 0xC4
	offClutchPedal        = 0xF4
	offClutchEngagement   = 0xF8
	offRPMAfterClutch     = 0xFC
	offTransmissionTop    = 0x100
	offGearRatios         = 0x104
	offCarCode            = 0x124
)

// Simulator state word bits.
const (
	flagOnTrack    = 1 << 0
	flagPaused     = 1 << 1
	flagLoading    = 1 << 2
	flagInGear     = 1 << 3
	flagHasTurbo   = 1 << 4
	flagRevLimiter = 1 << 5
	flagHandbrake  = 1 << 6
	flagLights     = 1 << 7
	flagASM        = 1 << 10
	flagTCS        = 1 << 11
)

// Decode decrypts and parses one raw datagram. Every rejection is either
// ErrShortPacket or ErrBadMagic (wrapped); anything else is a complete
// telemetry frame.
func Decode(datagram []byte) (*Frame, error) {
	plain, err := decrypt(datagram)
	if err != nil {
		return nil, err
	}
	return parse(plain), nil
}

func parse(p []byte) *Frame {
	flags := binary.LittleEndian.Uint16(p[offFlags:])
	gears := p[offGears]

	f := &Frame{
		PacketID: i32(p, offPacketID),

		Position:           vec3(p, offPosition),
		Velocity:           vec3(p, offVelocity),
		Rotation:           vec3(p, offRotation),
		OrientationToNorth: f32(p, offOrientationNorth),

		EngineRPM:    f32(p, offEngineRPM),
		FuelLevel:    f32(p, offFuelLevel),
		FuelCapacity: f32(p, offFuelCapacity),
		SpeedKPH:     f32(p, offSpeedMPS) * 3.6,
		TurboBoost:   f32(p, offTurboBoost),
		OilPressure:  f32(p, offOilPressure),
		WaterTemp:    f32(p, offWaterTemp),
		OilTemp:      f32(p, offOilTemp),

		TyreTemp: corners(p, offTyreTemp),

		CurrentLap: i16(p, offCurrentLap),
		TotalLaps:  i16(p, offTotalLaps),
		BestLapMS:  i32(p, offBestLap),
		LastLapMS:  i32(p, offLastLap),

		DayProgressionMS: i32(p, offDayProgression),

		RaceStartPosition: i16(p, offRaceStartPosition),
		PreRaceNumCars:    i16(p, offPreRaceNumCars),

		RPMAlertMin:        i16(p, offRPMAlertMin),
		RPMAlertMax:        i16(p, offRPMAlertMax),
		CalculatedMaxSpeed: i16(p, offCalculatedMaxSpeed),

		Flags: Flags{
			OnTrack:    flags&flagOnTrack != 0,
			Paused:     flags&flagPaused != 0,
			Loading:    flags&flagLoading != 0,
			InGear:     flags&flagInGear != 0,
			HasTurbo:   flags&flagHasTurbo != 0,
			RevLimiter: flags&flagRevLimiter != 0,
			Handbrake:  flags&flagHandbrake != 0,
			Lights:     flags&flagLights != 0,
			ASMActive:  flags&flagASM != 0,
			TCSActive:  flags&flagTCS != 0,
		},

		CurrentGear:   gears & 0x0F,
		SuggestedGear: gears >> 4,

		Throttle: float32(p[offThrottle]) / 255 * 100,
		Brake:    float32(p[offBrake]) / 255 * 100,

		WheelRPS:         corners(p, offWheelRPS),
		TyreRadius:       corners(p, offTyreRadius),
		SuspensionHeight: corners(p, offSuspension),

		ClutchPedal:            f32(p, offClutchPedal),
		ClutchEngagement:       f32(p, offClutchEngagement),
		RPMFromClutchToGearbox: f32(p, offRPMAfterClutch),

		TransmissionTopSpeed: f32(p, offTransmissionTop),

		CarCode: i32(p, offCarCode),
	}

	for i := range f.GearRatios {
		f.GearRatios[i] = f32(p, offGearRatios+4*i)
	}
	return f
}

func f32(p []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(p[off:]))
}

func i16(p []byte, off int) int16 {
	return int16(binary.LittleEndian.Uint16(p[off:]))
}

func i32(p []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(p[off:]))
}

func vec3(p []byte, off int) Vector3 {
	return Vector3{X: f32(p, off), Y: f32(p, off+4), Z: f32(p, off+8)}
}

func corners(p []byte, off int) CornerSet {
	return CornerSet{FL: f32(p, off), FR: f32(p, off+4), RL: f32(p, off+8), RR: f32(p, off+12)}
}
