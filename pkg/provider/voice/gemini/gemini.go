// Package gemini implements the voice.Provider interface for Google's Gemini
// Live API.
//
// It establishes a bidirectional WebSocket connection to the Gemini Live
// endpoint and exchanges JSON messages according to the BidiGenerateContent
// protocol. Audio travels as base64-encoded PCM chunks: 16 kHz mono in,
// 24 kHz mono out.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rennlabs/pitwall/pkg/provider/voice"
)

// Compile-time assertions that Provider and session satisfy the voice interfaces.
var _ voice.Provider = (*Provider)(nil)
var _ voice.Session = (*session)(nil)

const (
	defaultModel   = "gemini-2.0-flash-live-001"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	inputMIMEType = "audio/pcm;rate=16000"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements voice.Provider for Google's Gemini Live API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new Gemini Live Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect establishes a new Gemini Live session. It sends the setup message
// and blocks until the model acknowledges it, so a non-error return means the
// session is live and accepting audio. The context bounds the handshake only.
func (p *Provider) Connect(ctx context.Context, cfg voice.SessionConfig) (voice.Session, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, p.apiKey,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:        conn,
		audioCh:     make(chan []byte, 64),
		transcripts: make(chan voice.TranscriptEntry, 16),
		done:        make(chan struct{}),
		ctx:         sessCtx,
		cancel:      sessCancel,
	}

	if err := sess.sendSetup(p.model, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}
	if err := sess.awaitSetup(ctx); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	go sess.receiveLoop()
	go sess.keepaliveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string               `json:"model"`
	GenerationConfig         generationConfig     `json:"generationConfig"`
	SystemInstruction        *systemInstruction   `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *transcriptionConfig `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *transcriptionConfig `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

// transcriptionConfig marshals to an empty object; its presence in the setup
// turns the corresponding transcription stream on.
type transcriptionConfig struct{}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks    []mediaChunk `json:"mediaChunks,omitempty"`
	AudioStreamEnd bool         `json:"audioStreamEnd,omitempty"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type clientContentMessage struct {
	ClientContent clientContent `json:"clientContent"`
}

type clientContent struct {
	Turns        []contentTurn `json:"turns"`
	TurnComplete bool          `json:"turnComplete"`
}

type contentTurn struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type transcription struct {
	Text string `json:"text"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn        *websocket.Conn
	audioCh     chan []byte
	transcripts chan voice.TranscriptEntry

	mu     sync.Mutex
	errVal error
	done   chan struct{}
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSetup sends the initial BidiGenerateContent setup message.
func (s *session) sendSetup(model string, cfg voice.SessionConfig) error {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"audio"},
			},
			InputAudioTranscription:  &transcriptionConfig{},
			OutputAudioTranscription: &transcriptionConfig{},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	return s.writeJSON(msg)
}

// awaitSetup reads server messages until the model acknowledges the setup.
// An error frame during the handshake fails the connect.
func (s *session) awaitSetup(ctx context.Context) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != nil {
			return terminalError(msg.Error)
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads messages from the WebSocket and dispatches them.
// It owns audioCh and transcripts: it closes both when it exits.
func (s *session) receiveLoop() {
	defer s.closeChannels()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			// If the session context was cancelled, exit cleanly.
			if s.ctx.Err() != nil {
				return
			}
			// A normal closure from the server ends the session without error.
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return
			}
			s.setErr(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // skip malformed frames
		}

		// Model errors are terminal for the session: record and stop reading.
		if msg.Error != nil {
			s.setErr(terminalError(msg.Error))
			return
		}

		if msg.ServerContent != nil {
			s.handleServerContent(msg.ServerContent)
		}
	}
}

func terminalError(ge *geminiError) error {
	msg := ge.Message
	if msg == "" {
		msg = "unknown error"
	}
	if ge.Status != "" {
		return fmt.Errorf("gemini: %s: %s", ge.Status, msg)
	}
	return fmt.Errorf("gemini: %s", msg)
}

func (s *session) handleServerContent(sc *serverContent) {
	if sc.ModelTurn != nil {
		// Emit audio chunks and text parts in a single pass.
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil {
				audioData, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil || len(audioData) == 0 {
					continue
				}
				select {
				case s.audioCh <- audioData:
				case <-s.ctx.Done():
					return
				}
			}
			if p.Text != "" {
				s.emitTranscript(voice.SourceModel, p.Text)
			}
		}
	}

	// Driver speech recognition result.
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		s.emitTranscript(voice.SourceDriver, sc.InputTranscription.Text)
	}

	// Text version of the model's audio output.
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		s.emitTranscript(voice.SourceModel, sc.OutputTranscription.Text)
	}
}

func (s *session) emitTranscript(src voice.TranscriptSource, text string) {
	entry := voice.TranscriptEntry{
		Source: src,
		Text:   text,
		At:     time.Now(),
	}
	select {
	case s.transcripts <- entry:
	case <-s.ctx.Done():
	}
}

// keepaliveLoop sends WebSocket pings to keep the Gemini Live connection alive.
func (s *session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) closeChannels() {
	s.closeOnce.Do(func() {
		close(s.audioCh)
		close(s.transcripts)
	})
}

func (s *session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("gemini: session closed")
	}
	return nil
}

// ── Session methods ────────────────────────────────────────────────────────────

// SendAudio delivers a raw PCM audio chunk (16 kHz, s16le, mono) to the model.
func (s *session) SendAudio(chunk []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(chunk)
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: inputMIMEType, Data: encoded},
			},
		},
	}
	return s.writeJSON(msg)
}

// SendAudioStreamEnd marks the end of the current utterance so the model can
// flush its recogniser and respond.
func (s *session) SendAudioStreamEnd() error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{AudioStreamEnd: true},
	}
	return s.writeJSON(msg)
}

// SendText injects a user-role text turn into the session.
func (s *session) SendText(text string, turnComplete bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	msg := clientContentMessage{
		ClientContent: clientContent{
			Turns: []contentTurn{
				{Role: "user", Parts: []part{{Text: text}}},
			},
			TurnComplete: turnComplete,
		},
	}
	return s.writeJSON(msg)
}

// Audio returns the channel on which the model's synthesised audio arrives.
func (s *session) Audio() <-chan []byte { return s.audioCh }

// Transcripts returns the channel on which transcript entries arrive.
func (s *session) Transcripts() <-chan voice.TranscriptEntry { return s.transcripts }

// Err returns the first non-nil error that caused the session to terminate.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()    // unblocks receiveLoop and keepaliveLoop
	close(s.done) // signals keepaliveLoop via done channel
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
