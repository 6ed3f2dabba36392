// Package voice defines the Provider interface for real-time speech backends.
//
// A voice provider wraps a bidirectional audio model service: raw PCM chunks
// go in, synthesised speech comes out, and text turns can be injected
// mid-session without interrupting the audio streams. The central abstraction
// is Session, a multiplexed handle over one live model connection. Sessions
// are long-lived (minutes) and are torn down by a single Close call.
//
// All implementations must be safe for concurrent use.
package voice

import (
	"context"
	"time"
)

// TranscriptSource identifies who produced a transcript line.
type TranscriptSource string

const (
	// SourceDriver marks text the model recognised from inbound speech.
	SourceDriver TranscriptSource = "driver"

	// SourceModel marks text the model generated itself, either as a text
	// part of its turn or as a transcription of its own audio output.
	SourceModel TranscriptSource = "model"
)

// TranscriptEntry is one line of recognised or generated text.
type TranscriptEntry struct {
	Source TranscriptSource
	Text   string
	At     time.Time
}

// SessionConfig is the initial configuration for a new voice session.
type SessionConfig struct {
	// Voice names the prebuilt model voice used for synthesised speech.
	// Empty selects the provider default.
	Voice string

	// Instructions is the system-level prompt. It is fixed for the session
	// lifetime; changing it requires a new session.
	Instructions string
}

// Session represents an open bidirectional voice session. It is an interface
// so that test code can supply in-memory implementations without a live
// model connection.
//
// The session sits on the hot audio path, so every method must return
// quickly. Audio output is channel-based to keep the provider's receive loop
// decoupled from consumers. All methods must be safe for concurrent use.
//
// Callers must call Close when the session is no longer needed.
type Session interface {
	// SendAudio delivers one chunk of raw 16 kHz mono 16-bit PCM to the
	// model. Returns an error if the session is closed or the transport
	// cannot accept the chunk.
	SendAudio(chunk []byte) error

	// SendAudioStreamEnd marks the end of the current utterance so the model
	// may flush its speech recogniser and respond. Called on push-to-talk
	// release or microphone close.
	SendAudioStreamEnd() error

	// SendText injects a text turn in the user role. With turnComplete true
	// the model is expected to respond; with false the text is integrated as
	// background context without prompting a reply.
	SendText(text string, turnComplete bool) error

	// Audio returns a read-only channel emitting the model's synthesised
	// speech as raw 24 kHz mono 16-bit PCM chunks. The channel is closed
	// when the session ends; check [Session.Err] afterwards to distinguish a
	// clean close from a failure. Consumers must drain promptly so the
	// provider's receive loop never stalls.
	Audio() <-chan []byte

	// Transcripts returns a read-only channel emitting text for both
	// recognised driver speech and the model's own output. Closed when the
	// session ends.
	Transcripts() <-chan TranscriptEntry

	// Err returns the error that terminated the session, or nil after a
	// clean close. Valid once the Audio channel has closed.
	Err() error

	// Close terminates the session and closes the Audio and Transcripts
	// channels. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider opens sessions against one concrete voice backend.
//
// Implementations must be safe for concurrent use, though the orchestrator
// holds at most one session open at a time.
type Provider interface {
	// Connect establishes a new session. The returned Session accepts audio
	// immediately. The context bounds connection establishment only, not the
	// session lifetime.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
