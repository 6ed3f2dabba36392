// Package audio provides 16-bit PCM conversion helpers for the driver-audio
// path: channel folding and linear resampling used to coerce microphone
// capture of any common format to the voice model's 16 kHz mono input.
//
// Everything here operates on little-endian int16 PCM, the only sample
// format the pipeline carries.
package audio

// AudioFrame is one chunk of PCM audio moving between the client transport
// and the voice session. Data is little-endian int16 samples; SampleRate and
// Channels describe their layout.
type AudioFrame struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}
