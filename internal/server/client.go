package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/rennlabs/pitwall/internal/callout"
	"github.com/rennlabs/pitwall/internal/engineer"
)

// writeTimeout bounds one frame write to a client socket.
const writeTimeout = 5 * time.Second

// client is one dashboard socket. The read loop dispatches inbound events;
// the write loop drains the send queue. It implements [engineer.Sink], so
// voice-session output lands only on the socket that started the session.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	log  *slog.Logger

	// sendq carries encoded envelopes to the write loop. Enqueueing never
	// blocks; a full queue drops the message being enqueued.
	sendq chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &client{
		id:     id,
		hub:    h,
		conn:   conn,
		log:    h.log.With("client", id),
		sendq:  make(chan []byte, h.queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// close releases the socket exactly once and stops both loops.
func (c *client) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close(code, reason)
	})
}

// readLoop reads envelopes until the socket dies or the client is closed.
func (c *client) readLoop() {
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Debug("malformed envelope dropped", "error", err)
			continue
		}
		c.dispatch(env)
	}
}

// writeLoop drains the send queue onto the socket. A failed write closes the
// socket, which also terminates the read loop.
func (c *client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.sendq:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// send enqueues an encoded envelope, dropping it when the client cannot keep
// up. Telemetry is repetitive enough that skipped frames are invisible.
func (c *client) send(msg []byte) {
	select {
	case c.sendq <- msg:
	default:
		c.hub.metrics.RecordFrameDrop(context.Background(), "client")
	}
}

func (c *client) sendEvent(event string, data any) {
	msg, err := encodeEvent(event, data, "")
	if err != nil {
		c.log.Error("event encode failed", "event", event, "error", err)
		return
	}
	c.send(msg)
}

// ack answers a request that carried an id. Requests without one get no ack.
func (c *client) ack(id string, data any) {
	if id == "" {
		return
	}
	msg, err := encodeEvent(evAck, data, id)
	if err != nil {
		c.log.Error("ack encode failed", "error", err)
		return
	}
	c.send(msg)
}

func (c *client) dispatch(env envelope) {
	switch env.Event {
	case evEngineerStart:
		c.handleStart(env)
	case evEngineerStop:
		c.hub.engineer.Stop()
	case evEngineerVerbosity:
		c.handleVerbosity(env)
	case evDriverAudio:
		c.handleDriverAudio(env)
	case evDriverAudioEnd:
		c.hub.engineer.EndDriverAudio()
	case evConfigSetAPIKey:
		c.handleSetAPIKey(env)
	case evConfigTestKey:
		c.handleTestKey(env)
	case evConfigDeleteKey:
		c.handleDeleteKey()
	case evConfigSetEnabled:
		c.handleSetEnabled(env)
	default:
		c.log.Warn("unknown event", "event", env.Event)
	}
}

// handleStart opens a voice session owned by this socket. The read loop
// blocks until the model connection is up, so a client cannot interleave
// audio with its own start.
func (c *client) handleStart(env envelope) {
	var req startRequest
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.sendEvent(evEngineerError, errorEvent{Message: "malformed start request"})
			return
		}
	}
	if req.Verbosity != 0 {
		if v := callout.Verbosity(req.Verbosity); v.IsValid() {
			c.hub.callouts.SetVerbosity(v)
		}
	}
	start := engineer.StartRequest{
		PersonalityID: req.PersonalityID,
		Custom:        req.Custom,
		Instructions:  req.Instructions,
	}
	if err := c.hub.engineer.Start(c.ctx, start, c); err != nil {
		c.log.Warn("session start failed", "error", err)
		c.sendEvent(evEngineerError, errorEvent{Message: err.Error()})
	}
}

func (c *client) handleVerbosity(env envelope) {
	var req verbosityRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		c.sendEvent(evEngineerError, errorEvent{Message: "malformed verbosity request"})
		return
	}
	v := callout.Verbosity(req.Level)
	if !v.IsValid() {
		c.sendEvent(evEngineerError, errorEvent{
			Message: fmt.Sprintf("verbosity %d out of range", req.Level),
		})
		return
	}
	c.hub.callouts.SetVerbosity(v)
}

func (c *client) handleDriverAudio(env envelope) {
	p, err := decodeDriverAudio(env.Data)
	if err != nil {
		c.log.Debug("malformed driver audio dropped", "error", err)
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		c.log.Debug("driver audio base64 decode failed", "error", err)
		return
	}
	c.hub.engineer.SendDriverAudio(pcm, p.SampleRate, p.Channels)
}

// handleSetAPIKey verifies the candidate key against the provider before it
// touches the store, so a bad key never replaces a working one.
func (c *client) handleSetAPIKey(env envelope) {
	var req setAPIKeyRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		c.ack(env.ID, keyAck{Error: "malformed request"})
		return
	}
	check := c.hub.keys.Check(c.ctx, req.APIKey)
	if !check.Valid {
		c.ack(env.ID, keyAck{Error: check.Category})
		return
	}
	if err := c.hub.creds.SetAPIKey(req.APIKey); err != nil {
		c.log.Error("api key persist failed", "error", err)
		c.ack(env.ID, keyAck{Error: "failed to store key"})
		return
	}
	c.hub.creds.MarkKeyValid(true)
	c.ack(env.ID, keyAck{Valid: true})
	c.hub.broadcastConfigState()
}

// handleTestKey re-checks the stored key and records the outcome.
func (c *client) handleTestKey(env envelope) {
	key := c.hub.creds.APIKey()
	if key == "" {
		c.ack(env.ID, keyAck{Error: engineer.CategoryEmpty})
		return
	}
	check := c.hub.keys.Check(c.ctx, key)
	c.hub.creds.MarkKeyValid(check.Valid)
	c.ack(env.ID, keyAck{Valid: check.Valid, Error: check.Category})
	c.hub.broadcastConfigState()
}

func (c *client) handleDeleteKey() {
	if err := c.hub.creds.DeleteKey(); err != nil {
		c.log.Error("api key delete failed", "error", err)
		return
	}
	c.hub.broadcastConfigState()
}

func (c *client) handleSetEnabled(env envelope) {
	var req setEnabledRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		c.log.Debug("malformed enable request dropped", "error", err)
		return
	}
	if err := c.hub.creds.SetEngineerEnabled(req.Enabled); err != nil {
		c.log.Error("engineer flag persist failed", "error", err)
		return
	}
	if !req.Enabled {
		// Disabling mid-session hangs up the radio.
		c.hub.engineer.Stop()
	}
	c.hub.broadcastConfigState()
}

// ── engineer.Sink ──────────────────────────────────────────────────────────

// ModelAudio implements [engineer.Sink]. The chunk is 24 kHz mono PCM,
// base64-encoded for the wire.
func (c *client) ModelAudio(pcm []byte) {
	c.sendEvent(evModelAudio, base64.StdEncoding.EncodeToString(pcm))
}

// ModelText implements [engineer.Sink].
func (c *client) ModelText(t engineer.Text) {
	c.sendEvent(evEngineerText, t)
}

// SessionStatus implements [engineer.Sink].
func (c *client) SessionStatus(s engineer.Status) {
	c.sendEvent(evEngineerStatus, s)
}

// SessionError implements [engineer.Sink].
func (c *client) SessionError(message string) {
	c.sendEvent(evEngineerError, errorEvent{Message: message})
}
