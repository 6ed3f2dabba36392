// Package mock provides in-memory mock implementations of the
// [voice.Provider] and [voice.Session] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	p := &mock.Provider{}
//	sess, err := p.Connect(ctx, voice.SessionConfig{Voice: "Charon"})
//	// ... exercise the code under test ...
//	p.Last().EmitAudio([]byte{0x01, 0x02})
//	got := p.Last().SentTexts()
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rennlabs/pitwall/pkg/provider/voice"
)

// Compile-time assertions that the mocks satisfy the voice interfaces.
var _ voice.Provider = (*Provider)(nil)
var _ voice.Session = (*Session)(nil)

// ─── Provider ─────────────────────────────────────────────────────────────────

// Provider is a mock implementation of [voice.Provider].
// Set the exported fields before use; inspect Sessions and Configs after.
type Provider struct {
	mu sync.Mutex

	// ConnectErr, when non-nil, is returned by every Connect call.
	ConnectErr error

	// ConnectDelay, when positive, makes Connect wait before returning.
	// Used to widen start/stop race windows in tests.
	ConnectDelay time.Duration

	// CallCountConnect records how many times Connect was called.
	CallCountConnect int

	// Sessions holds every session returned by Connect, in order.
	Sessions []*Session

	// Configs holds the SessionConfig passed to each Connect call,
	// including calls that failed with ConnectErr.
	Configs []voice.SessionConfig
}

// Connect implements [voice.Provider]. It returns a fresh recording Session
// unless ConnectErr is set.
func (p *Provider) Connect(ctx context.Context, cfg voice.SessionConfig) (voice.Session, error) {
	if p.ConnectDelay > 0 {
		select {
		case <-time.After(p.ConnectDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountConnect++
	p.Configs = append(p.Configs, cfg)
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	s := NewSession(cfg)
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// Last returns the most recently created session, or nil if Connect has not
// succeeded yet.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// ─── Session ──────────────────────────────────────────────────────────────────

// TextCall records one SendText invocation.
type TextCall struct {
	Text         string
	TurnComplete bool
}

// Session is a mock implementation of [voice.Session]. It records all
// outbound calls and lets the test drive the inbound channels via the Emit*
// methods.
type Session struct {
	// Config is the SessionConfig the session was created with.
	Config voice.SessionConfig

	// SendErr, when non-nil, is returned by every Send* method.
	SendErr error

	mu         sync.Mutex
	sentAudio  [][]byte
	sentTexts  []TextCall
	streamEnds int
	closed     bool
	errVal     error

	audioCh     chan []byte
	transcripts chan voice.TranscriptEntry
	closeOnce   sync.Once
}

// NewSession returns a Session with buffered inbound channels, ready for use
// outside a Provider.
func NewSession(cfg voice.SessionConfig) *Session {
	return &Session{
		Config:      cfg,
		audioCh:     make(chan []byte, 64),
		transcripts: make(chan voice.TranscriptEntry, 16),
	}
}

// SendAudio implements [voice.Session]. The chunk is copied and recorded.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mock: session closed")
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.sentAudio = append(s.sentAudio, cp)
	return nil
}

// SendAudioStreamEnd implements [voice.Session].
func (s *Session) SendAudioStreamEnd() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mock: session closed")
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	s.streamEnds++
	return nil
}

// SendText implements [voice.Session].
func (s *Session) SendText(text string, turnComplete bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mock: session closed")
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	s.sentTexts = append(s.sentTexts, TextCall{Text: text, TurnComplete: turnComplete})
	return nil
}

// Audio implements [voice.Session].
func (s *Session) Audio() <-chan []byte { return s.audioCh }

// Transcripts implements [voice.Session].
func (s *Session) Transcripts() <-chan voice.TranscriptEntry { return s.transcripts }

// Err implements [voice.Session].
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close implements [voice.Session]. It closes both inbound channels.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeOnce.Do(func() {
		close(s.audioCh)
		close(s.transcripts)
	})
	return nil
}

// ─── Test-side controls ───────────────────────────────────────────────────────

// EmitAudio delivers a model audio chunk to the session's Audio channel.
// Dropped silently if the session is already closed.
func (s *Session) EmitAudio(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.audioCh <- chunk
}

// EmitTranscript delivers a transcript entry to the session's Transcripts
// channel. Dropped silently if the session is already closed.
func (s *Session) EmitTranscript(entry voice.TranscriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.transcripts <- entry
}

// Fail terminates the session with err, emulating a terminal model error:
// Err reports err and both channels close.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	s.errVal = err
	s.closed = true
	s.mu.Unlock()
	s.closeOnce.Do(func() {
		close(s.audioCh)
		close(s.transcripts)
	})
}

// SentAudio returns a copy of all recorded audio chunks, in send order.
func (s *Session) SentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sentAudio))
	copy(out, s.sentAudio)
	return out
}

// SentTexts returns a copy of all recorded text turns, in send order.
func (s *Session) SentTexts() []TextCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TextCall, len(s.sentTexts))
	copy(out, s.sentTexts)
	return out
}

// StreamEnds returns how many times SendAudioStreamEnd was called.
func (s *Session) StreamEnds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamEnds
}

// Closed reports whether Close or Fail was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
