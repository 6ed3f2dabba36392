// Package engineer owns the one live voice-model session and everything that
// flows through it: callout turns and context updates toward the model,
// driver microphone audio in, synthesised speech and transcripts out.
//
// The session slot is guarded; when two starts race, the later one wins and
// the earlier owner is told it lost the slot. Model-side failures are
// terminal for the session: they are reported once and there is no automatic
// reconnect. When no session is live but the engineer feature is enabled,
// callouts fall back to a plain-text broadcast so the dashboard history stays
// useful.
package engineer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rennlabs/pitwall/internal/analyzer"
	"github.com/rennlabs/pitwall/internal/callout"
	"github.com/rennlabs/pitwall/internal/observe"
	"github.com/rennlabs/pitwall/pkg/audio"
	"github.com/rennlabs/pitwall/pkg/provider/voice"
)

const (
	// driverAudioQueue bounds buffered driver chunks between the client
	// event loop and the model writer. Overflow evicts the oldest chunk so
	// the freshest part of the utterance survives.
	driverAudioQueue = 32

	// The model accepts 16 kHz mono 16-bit PCM; driver audio in any other
	// format is converted before send.
	modelInputRate     = 16000
	modelInputChannels = 1

	defaultConnectTimeout = 15 * time.Second
)

var (
	// ErrNoAPIKey is returned by Start when no API key is configured.
	ErrNoAPIKey = errors.New("engineer: no API key configured")

	// ErrDisabled is returned by Start when the engineer feature is turned
	// off in the persisted configuration.
	ErrDisabled = errors.New("engineer: disabled in configuration")
)

// Text is one plain-text line for dashboard clients: a transcript of either
// side of the radio, or a callout fallback when no session is live. Type is
// "model" or "driver" for transcripts and the callout type for fallbacks.
type Text struct {
	Text string    `json:"text"`
	Type string    `json:"type"`
	At   time.Time `json:"timestamp"`
}

// Status describes the session slot. Personality is set only while connected.
type Status struct {
	Connected   bool   `json:"connected"`
	Personality string `json:"personality,omitempty"`
}

// Sink receives the output streams of one session. The transport implements
// it once per owning socket. Methods are called from the engineer's pump
// goroutines and must not block.
type Sink interface {
	// ModelAudio delivers one chunk of synthesised speech, 24 kHz mono
	// 16-bit PCM.
	ModelAudio(pcm []byte)

	// ModelText delivers one transcript line.
	ModelText(t Text)

	// SessionStatus reports slot changes: connected true right after the
	// model signals open, false exactly once when the session ends.
	SessionStatus(s Status)

	// SessionError reports the terminal failure of a session, before the
	// disconnected status. Called at most once.
	SessionError(message string)
}

// Broadcaster pushes text to every connected client. Used for the callout
// fallback while no session is live.
type Broadcaster interface {
	BroadcastText(t Text)
}

// BroadcastFunc adapts a function to the [Broadcaster] interface. It lets
// the wiring in main defer to a hub that is constructed after the engineer.
type BroadcastFunc func(t Text)

// BroadcastText implements [Broadcaster].
func (f BroadcastFunc) BroadcastText(t Text) { f(t) }

// CredentialSource supplies the API key and the engineer-enabled flag. The
// credential store satisfies it.
type CredentialSource interface {
	APIKey() string
	EngineerEnabled() bool
}

// DialFunc builds a voice provider for an API key. Production wires the
// Gemini provider; tests substitute an in-memory one.
type DialFunc func(apiKey string) voice.Provider

// StartRequest selects the personality and extra instructions for a session.
type StartRequest struct {
	// PersonalityID names a built-in personality. Empty selects the
	// configured default; an unknown ID falls back to it with a warning.
	PersonalityID string

	// Custom, when set, is used instead of any built-in personality. An
	// empty Voice inherits the default personality's voice.
	Custom *Personality

	// Instructions is the user's free-form addition to the system prompt,
	// appended after the personality prompt.
	Instructions string
}

// Config holds the engineer's collaborators. Log, Metrics, ConnectTimeout
// and DefaultPersonality fall back to sensible defaults; the rest are
// required.
type Config struct {
	Log       *slog.Logger
	Creds     CredentialSource
	Dial      DialFunc
	Broadcast Broadcaster
	Metrics   *observe.Metrics

	// ConnectTimeout bounds session establishment. Default 15s.
	ConnectTimeout time.Duration

	// DefaultPersonality is used when a start request names none.
	// Default "professional".
	DefaultPersonality string
}

// Engineer is the voice-session orchestrator. All methods are safe for
// concurrent use.
type Engineer struct {
	log       *slog.Logger
	creds     CredentialSource
	dial      DialFunc
	broadcast Broadcaster
	metrics   *observe.Metrics

	connectTimeout time.Duration
	defaultPersona string

	mu  sync.Mutex
	cur *session
}

// session bundles one live model connection with its owner and pumps. id
// ties the start, stop and failure log lines of one session together.
type session struct {
	id          string
	sess        voice.Session
	sink        Sink
	personality Personality
	startedAt   time.Time

	// ctx is cancelled on local teardown; the pumps use it to tell a local
	// stop apart from the model ending the session.
	ctx    context.Context
	cancel context.CancelFunc

	audioIn chan audioItem
	conv    *audio.FormatConverter

	notify sync.Once
}

// audioItem is one queue entry: a driver chunk, or an end-of-utterance mark.
type audioItem struct {
	frame audio.AudioFrame
	end   bool
}

// New builds an Engineer from cfg.
func New(cfg Config) *Engineer {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.DefaultPersonality == "" {
		cfg.DefaultPersonality = DefaultPersonalityID
	}
	return &Engineer{
		log:            cfg.Log.With("component", "engineer"),
		creds:          cfg.Creds,
		dial:           cfg.Dial,
		broadcast:      cfg.Broadcast,
		metrics:        cfg.Metrics,
		connectTimeout: cfg.ConnectTimeout,
		defaultPersona: cfg.DefaultPersonality,
	}
}

// Start opens a voice session owned by sink, first tearing down any session
// already in the slot. The superseded owner receives a disconnected status.
// ctx bounds connection establishment only. On success the sink has already
// received a connected status when Start returns.
func (e *Engineer) Start(ctx context.Context, req StartRequest, sink Sink) error {
	if !e.creds.EngineerEnabled() {
		return ErrDisabled
	}
	key := e.creds.APIKey()
	if key == "" {
		return ErrNoAPIKey
	}
	persona := e.resolvePersonality(req)

	// The lock is held across the dial so concurrent starts serialize and
	// the later caller deterministically ends up owning the slot.
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked("superseded")

	cctx, cancelDial := context.WithTimeout(ctx, e.connectTimeout)
	defer cancelDial()

	sess, err := e.dial(key).Connect(cctx, voice.SessionConfig{
		Voice:        persona.Voice,
		Instructions: composeInstructions(persona, req.Instructions),
	})
	if err != nil {
		return fmt.Errorf("engineer: connect: %w", err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:          uuid.NewString(),
		sess:        sess,
		sink:        sink,
		personality: persona,
		startedAt:   time.Now(),
		ctx:         sctx,
		cancel:      cancel,
		audioIn:     make(chan audioItem, driverAudioQueue),
		conv: &audio.FormatConverter{Target: audio.Format{
			SampleRate: modelInputRate,
			Channels:   modelInputChannels,
		}},
	}
	e.cur = s

	e.metrics.ActiveVoiceSessions.Add(sctx, 1)
	e.log.Info("voice session started",
		"session_id", s.id, "personality", persona.ID, "voice", persona.Voice)
	sink.SessionStatus(Status{Connected: true, Personality: persona.ID})

	go e.pumpModel(s)
	go e.pumpDriverAudio(s)
	return nil
}

// Stop tears down the live session, if any. Safe to call when idle.
func (e *Engineer) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked("stop requested")
}

// StopOwned tears down the live session only when sink owns it. The
// transport calls this when a client disconnects, so a dashboard that
// superseded the session earlier is never interrupted by the loser's exit.
func (e *Engineer) StopOwned(sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil || e.cur.sink != sink {
		return
	}
	e.stopLocked("owner disconnected")
}

// Close stops any live session as part of process shutdown.
func (e *Engineer) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked("shutting down")
	return nil
}

// Active reports whether a session is live and, if so, its personality ID.
func (e *Engineer) Active() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return "", false
	}
	return e.cur.personality.ID, true
}

// DeliverCallouts routes one evaluation pass worth of gated callouts, in
// order. With a live session each becomes a spoken turn; otherwise, when the
// engineer is enabled, the plain message is broadcast to all clients.
func (e *Engineer) DeliverCallouts(ctx context.Context, callouts []callout.Callout) {
	if len(callouts) == 0 {
		return
	}
	s := e.active()
	if s == nil {
		if e.broadcast == nil || !e.creds.EngineerEnabled() {
			return
		}
		for _, c := range callouts {
			e.broadcast.BroadcastText(Text{Text: c.Message, Type: string(c.Type), At: c.At})
			e.metrics.RecordCallout(ctx, string(c.Type), "text")
		}
		return
	}
	for _, c := range callouts {
		if err := s.sess.SendText(formatCallout(c), true); err != nil {
			e.log.Warn("callout delivery failed", "type", c.Type, "error", err)
			continue
		}
		e.metrics.RecordCallout(ctx, string(c.Type), "voice")
	}
}

// UpdateContext pushes the periodic background-telemetry block into the live
// session without prompting a reply. A no-op when idle.
func (e *Engineer) UpdateContext(snap analyzer.Snapshot) {
	s := e.active()
	if s == nil {
		return
	}
	if err := s.sess.SendText(formatContext(snap), false); err != nil {
		e.log.Warn("context update failed", "error", err)
	}
}

// SendDriverAudio queues one driver microphone chunk for the live session;
// chunks arriving while idle are dropped silently. pcm is 16-bit
// little-endian PCM in the given format, converted to the model input format
// when they differ. Zero sampleRate or channels mean the chunk is already in
// model format.
func (e *Engineer) SendDriverAudio(pcm []byte, sampleRate, channels int) {
	s := e.active()
	if s == nil {
		return
	}
	if sampleRate <= 0 {
		sampleRate = modelInputRate
	}
	if channels <= 0 {
		channels = modelInputChannels
	}
	s.enqueue(e, audioItem{frame: audio.AudioFrame{
		Data:       pcm,
		SampleRate: sampleRate,
		Channels:   channels,
	}})
}

// EndDriverAudio marks the end of the current utterance so the model flushes
// its recogniser. A no-op when idle.
func (e *Engineer) EndDriverAudio() {
	s := e.active()
	if s == nil {
		return
	}
	s.enqueue(e, audioItem{end: true})
}

func (e *Engineer) active() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur
}

// resolvePersonality maps a start request to the personality actually used.
func (e *Engineer) resolvePersonality(req StartRequest) Personality {
	if req.Custom != nil {
		p := *req.Custom
		if p.ID == "" {
			p.ID = "custom"
		}
		if p.Voice == "" {
			if d, ok := PersonalityByID(e.defaultPersona); ok {
				p.Voice = d.Voice
			}
		}
		return p
	}
	id := req.PersonalityID
	if id == "" {
		id = e.defaultPersona
	}
	if p, ok := PersonalityByID(id); ok {
		return p
	}
	e.log.Warn("unknown personality, using default",
		"requested", id, "default", e.defaultPersona)
	if p, ok := PersonalityByID(e.defaultPersona); ok {
		return p
	}
	p, _ := PersonalityByID(DefaultPersonalityID)
	return p
}

// stopLocked tears down the current session, if any. Caller holds e.mu.
func (e *Engineer) stopLocked(reason string) {
	s := e.cur
	if s == nil {
		return
	}
	e.cur = nil
	e.log.Info("voice session stopped",
		"session_id", s.id, "reason", reason, "personality", s.personality.ID)
	e.teardown(s, "")
}

// teardown releases a session exactly once: cancel the pumps, close the
// model connection, then notify the sink. errMsg, when non-empty, is
// surfaced as a session error before the disconnected status.
func (e *Engineer) teardown(s *session, errMsg string) {
	s.notify.Do(func() {
		s.cancel()
		if err := s.sess.Close(); err != nil {
			e.log.Warn("voice session close failed", "error", err)
		}
		if errMsg != "" {
			s.sink.SessionError(errMsg)
		}
		s.sink.SessionStatus(Status{Connected: false})

		e.metrics.ActiveVoiceSessions.Add(context.Background(), -1)
		e.metrics.VoiceSessionDuration.Record(context.Background(),
			time.Since(s.startedAt).Seconds())
	})
}

// pumpModel forwards model audio and transcripts to the owning sink until
// the session's channels close. A close that was not initiated locally means
// the model ended the session on its own: the slot is cleared and the sink
// notified, with the terminal error if there was one.
func (e *Engineer) pumpModel(s *session) {
	audioCh := s.sess.Audio()
	textCh := s.sess.Transcripts()
	for audioCh != nil || textCh != nil {
		select {
		case pcm, ok := <-audioCh:
			if !ok {
				audioCh = nil
				continue
			}
			e.metrics.ModelAudioChunks.Add(s.ctx, 1)
			s.sink.ModelAudio(pcm)
		case entry, ok := <-textCh:
			if !ok {
				textCh = nil
				continue
			}
			s.sink.ModelText(Text{
				Text: entry.Text,
				Type: string(entry.Source),
				At:   entry.At,
			})
		}
	}

	if s.ctx.Err() != nil {
		// Local teardown already underway; it owns the notifications.
		return
	}

	var msg string
	if err := s.sess.Err(); err != nil {
		msg = err.Error()
		e.log.Error("voice session failed", "session_id", s.id, "error", err)
	} else {
		e.log.Info("voice session closed by model", "session_id", s.id)
	}

	e.mu.Lock()
	if e.cur == s {
		e.cur = nil
	}
	e.teardown(s, msg)
	e.mu.Unlock()
}

// pumpDriverAudio is the single consumer of the driver-audio queue, keeping
// chunk order toward the model.
func (e *Engineer) pumpDriverAudio(s *session) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case item := <-s.audioIn:
			if item.end {
				if err := s.sess.SendAudioStreamEnd(); err != nil {
					e.log.Warn("audio stream end failed", "error", err)
				}
				continue
			}
			frame := s.conv.Convert(item.frame)
			if len(frame.Data) == 0 {
				continue
			}
			if err := s.sess.SendAudio(frame.Data); err != nil {
				e.log.Warn("driver audio send failed", "error", err)
				continue
			}
			e.metrics.DriverAudioChunks.Add(s.ctx, 1)
		}
	}
}

// enqueue adds an item to the driver-audio queue, evicting the oldest entry
// when full.
func (s *session) enqueue(e *Engineer, item audioItem) {
	for {
		select {
		case s.audioIn <- item:
			return
		default:
		}
		select {
		case <-s.audioIn:
			e.metrics.RecordFrameDrop(s.ctx, "driver_audio")
		default:
		}
	}
}
