// Package gt7 implements the Gran Turismo 7 "Simulator Interface" telemetry
// protocol: Salsa20 decryption of the fixed-size datagrams the console
// unicasts at 60 Hz, and decoding of their little-endian binary layout into
// a Frame.
//
// The console only sends telemetry to a host that keeps knocking: a one-byte
// heartbeat must reach HeartbeatPort every few seconds, and the telemetry
// stream follows the most recent sender. Socket handling is out of scope
// here; this package owns the wire format only.
package gt7

import "errors"

// Protocol constants. The console listens for heartbeats on HeartbeatPort
// and answers with telemetry datagrams aimed at TelemetryPort of the
// heartbeat's source address.
const (
	// HeartbeatPort is the console-side UDP port heartbeats are sent to.
	HeartbeatPort = 33739

	// TelemetryPort is the local UDP port telemetry datagrams arrive on.
	TelemetryPort = 33740

	// Heartbeat is the single-byte probe payload.
	Heartbeat = 'A'

	// PacketSize is the size of one encrypted telemetry datagram in bytes.
	PacketSize = 296
)

// magicWord marks offset 0 of a successfully decrypted packet ("G7S0" read
// little-endian).
const magicWord = 0x47375330

var (
	// ErrShortPacket reports a datagram smaller than PacketSize. Such
	// datagrams are never telemetry and are dropped without logging.
	ErrShortPacket = errors.New("gt7: packet shorter than telemetry frame")

	// ErrBadMagic reports a packet that decrypted to something other than a
	// telemetry frame, usually traffic from an unrelated sender.
	ErrBadMagic = errors.New("gt7: decrypted packet lacks magic word")
)
