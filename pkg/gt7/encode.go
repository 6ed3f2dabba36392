package gt7

import (
	"encoding/binary"
	"math"

	"golang.org/x/crypto/salsa20"
)

// Encode builds an encrypted datagram that Decode parses back into f, using
// iv1 as the embedded nonce seed. It exists for simulators and tests; the
// console is the only producer of real packets. Raw wire values are derived
// from the frame's reported units (m/s from km/h, pedal bytes from
// percentages), so lossy fields round-trip only for exactly representable
// values.
func Encode(f *Frame, iv1 uint32) []byte {
	p := make([]byte, PacketSize)
	binary.LittleEndian.PutUint32(p[0:], magicWord)

	putVec3(p, offPosition, f.Position)
	putVec3(p, offVelocity, f.Velocity)
	putVec3(p, offRotation, f.Rotation)
	putF32(p, offOrientationNorth, f.OrientationToNorth)
	putF32(p, offEngineRPM, f.EngineRPM)
	putF32(p, offFuelLevel, f.FuelLevel)
	putF32(p, offFuelCapacity, f.FuelCapacity)
	putF32(p, offSpeedMPS, f.SpeedKPH/3.6)
	putF32(p, offTurboBoost, f.TurboBoost)
	putF32(p, offOilPressure, f.OilPressure)
	putF32(p, offWaterTemp, f.WaterTemp)
	putF32(p, offOilTemp, f.OilTemp)
	putCorners(p, offTyreTemp, f.TyreTemp)

	binary.LittleEndian.PutUint32(p[offPacketID:], uint32(f.PacketID))
	binary.LittleEndian.PutUint16(p[offCurrentLap:], uint16(f.CurrentLap))
	binary.LittleEndian.PutUint16(p[offTotalLaps:], uint16(f.TotalLaps))
	binary.LittleEndian.PutUint32(p[offBestLap:], uint32(f.BestLapMS))
	binary.LittleEndian.PutUint32(p[offLastLap:], uint32(f.LastLapMS))
	binary.LittleEndian.PutUint32(p[offDayProgression:], uint32(f.DayProgressionMS))
	binary.LittleEndian.PutUint16(p[offRaceStartPosition:], uint16(f.RaceStartPosition))
	binary.LittleEndian.PutUint16(p[offPreRaceNumCars:], uint16(f.PreRaceNumCars))
	binary.LittleEndian.PutUint16(p[offRPMAlertMin:], uint16(f.RPMAlertMin))
	binary.LittleEndian.PutUint16(p[offRPMAlertMax:], uint16(f.RPMAlertMax))
	binary.LittleEndian.PutUint16(p[offCalculatedMaxSpeed:], uint16(f.CalculatedMaxSpeed))
	binary.LittleEndian.PutUint16(p[offFlags:], f.Flags.word())

	p[offGears] = f.SuggestedGear<<4 | f.CurrentGear&0x0F
	p[offThrottle] = byte(math.Round(float64(f.Throttle) * 255 / 100))
	p[offBrake] = byte(math.Round(float64(f.Brake) * 255 / 100))

	putCorners(p, offWheelRPS, f.WheelRPS)
	putCorners(p, offTyreRadius, f.TyreRadius)
	putCorners(p, offSuspension, f.SuspensionHeight)
	putF32(p, offClutchPedal, f.ClutchPedal)
	putF32(p, offClutchEngagement, f.ClutchEngagement)
	putF32(p, offRPMAfterClutch, f.RPMFromClutchToGearbox)
	putF32(p, offTransmissionTop, f.TransmissionTopSpeed)
	for i, r := range f.GearRatios {
		putF32(p, offGearRatios+4*i, r)
	}
	binary.LittleEndian.PutUint32(p[offCarCode:], uint32(f.CarCode))

	binary.LittleEndian.PutUint32(p[ivOffset:], iv1)
	return encrypt(p, iv1)
}

// encrypt applies the stream cipher to a plaintext packet, leaving the nonce
// seed bytes in the clear exactly as the console transmits them.
func encrypt(plain []byte, iv1 uint32) []byte {
	iv2 := iv1 ^ ivXorMask
	var nonce [8]byte
	binary.LittleEndian.PutUint32(nonce[0:4], iv2)
	binary.LittleEndian.PutUint32(nonce[4:8], iv1)

	out := make([]byte, len(plain))
	salsa20.XORKeyStream(out, plain, nonce[:], &cipherKey)
	copy(out[ivOffset:ivOffset+4], plain[ivOffset:ivOffset+4])
	return out
}

func (fl Flags) word() uint16 {
	var w uint16
	set := func(on bool, bit uint16) {
		if on {
			w |= bit
		}
	}
	set(fl.OnTrack, flagOnTrack)
	set(fl.Paused, flagPaused)
	set(fl.Loading, flagLoading)
	set(fl.InGear, flagInGear)
	set(fl.HasTurbo, flagHasTurbo)
	set(fl.RevLimiter, flagRevLimiter)
	set(fl.Handbrake, flagHandbrake)
	set(fl.Lights, flagLights)
	set(fl.ASMActive, flagASM)
	set(fl.TCSActive, flagTCS)
	return w
}

func putF32(p []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(p[off:], math.Float32bits(v))
}

func putVec3(p []byte, off int, v Vector3) {
	putF32(p, off, v.X)
	putF32(p, off+4, v.Y)
	putF32(p, off+8, v.Z)
}

func putCorners(p []byte, off int, c CornerSet) {
	putF32(p, off, c.FL)
	putF32(p, off+4, c.FR)
	putF32(p, off+8, c.RL)
	putF32(p, off+12, c.RR)
}
