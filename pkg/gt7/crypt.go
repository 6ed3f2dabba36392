package gt7

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/salsa20"
)

// keySeed is the ASCII string whose first 32 bytes form the fixed Salsa20
// key shared by every console.
const keySeed = "Simulator Interface Packet GT7 ver 0.0"

const (
	// ivOffset locates the 32-bit nonce seed inside the packet. The four
	// seed bytes travel in the clear; everything else is ciphertext.
	ivOffset = 0x40

	// ivXorMask derives the second nonce word from the seed.
	ivXorMask = 0xDEADBEAF
)

var cipherKey = func() [32]byte {
	var k [32]byte
	copy(k[:], keySeed)
	return k
}()

// decrypt decrypts one telemetry datagram and verifies its magic word. The
// returned slice is a fresh buffer; the input is left untouched.
//
// The packet embeds its own nonce seed at ivOffset: with iv1 the seed word
// and iv2 = iv1 XOR ivXorMask, the 8-byte Salsa20 nonce is iv2 followed by
// iv1, both little-endian. Since the seed bytes are not part of the
// encrypted stream, the ciphertext bytes at ivOffset are copied back into
// the plaintext after decryption.
func decrypt(packet []byte) ([]byte, error) {
	if len(packet) < PacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(packet))
	}

	iv1 := binary.LittleEndian.Uint32(packet[ivOffset:])
	iv2 := iv1 ^ ivXorMask
	var nonce [8]byte
	binary.LittleEndian.PutUint32(nonce[0:4], iv2)
	binary.LittleEndian.PutUint32(nonce[4:8], iv1)

	plain := make([]byte, len(packet))
	salsa20.XORKeyStream(plain, packet, nonce[:], &cipherKey)
	copy(plain[ivOffset:ivOffset+4], packet[ivOffset:ivOffset+4])

	if binary.LittleEndian.Uint32(plain[0:4]) != magicWord {
		return nil, ErrBadMagic
	}
	return plain, nil
}
