package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/rennlabs/pitwall/internal/analyzer"
	"github.com/rennlabs/pitwall/internal/callout"
	"github.com/rennlabs/pitwall/internal/config"
	"github.com/rennlabs/pitwall/internal/engineer"
	"github.com/rennlabs/pitwall/internal/observe"
	"github.com/rennlabs/pitwall/pkg/gt7"
)

// defaultSendQueue caps each client's outbound queue. At the default 30 Hz
// broadcast rate this is about two seconds of telemetry.
const defaultSendQueue = 64

// EngineerControl is the slice of the voice orchestrator the transport
// drives. *engineer.Engineer satisfies it.
type EngineerControl interface {
	Start(ctx context.Context, req engineer.StartRequest, sink engineer.Sink) error
	Stop()
	StopOwned(sink engineer.Sink)
	SendDriverAudio(pcm []byte, sampleRate, channels int)
	EndDriverAudio()
}

// CalloutGate adjusts how chatty the callout rules are. *callout.Engine
// satisfies it.
type CalloutGate interface {
	SetVerbosity(v callout.Verbosity)
}

// CredentialStore is the slice of the credential store the config events
// read and mutate. *config.Store satisfies it.
type CredentialStore interface {
	APIKey() string
	State() config.State
	SetAPIKey(key string) error
	DeleteKey() error
	SetEngineerEnabled(enabled bool) error
	MarkKeyValid(valid bool)
}

// KeyChecker probes an API key against the upstream provider.
// *engineer.KeyValidator satisfies it.
type KeyChecker interface {
	Check(ctx context.Context, key string) engineer.KeyCheck
}

// HubConfig holds the hub's collaborators. Log, Metrics and SendQueue fall
// back to defaults; the rest are required.
type HubConfig struct {
	Log      *slog.Logger
	Metrics  *observe.Metrics
	Engineer EngineerControl
	Callouts CalloutGate
	Creds    CredentialStore
	Keys     KeyChecker

	// SendQueue caps each client's outbound queue; a full queue drops the
	// message being enqueued. Default 64.
	SendQueue int
}

// Hub tracks connected dashboard sockets and fans events out to them.
// Telemetry goes to everyone; voice-session events go only to the socket
// that owns the session. All methods are safe for concurrent use.
type Hub struct {
	log      *slog.Logger
	metrics  *observe.Metrics
	engineer EngineerControl
	callouts CalloutGate
	creds    CredentialStore
	keys     KeyChecker

	queueSize int

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewHub builds a Hub from cfg.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	return &Hub{
		log:       cfg.Log.With("component", "hub"),
		metrics:   cfg.Metrics,
		engineer:  cfg.Engineer,
		callouts:  cfg.Callouts,
		creds:     cfg.Creds,
		keys:      cfg.Keys,
		queueSize: cfg.SendQueue,
		clients:   make(map[string]*client),
	}
}

// ServeWS upgrades the request to a WebSocket and serves it until the client
// disconnects or the hub closes. It blocks for the lifetime of the socket.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The dashboard is served from its own origin during development,
		// so cross-origin upgrades are allowed.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err)
		return
	}

	c := newClient(h, conn)
	if !h.add(c) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.metrics.ConnectedClients.Add(r.Context(), 1)
	h.log.Info("client connected", "client", c.id, "remote", r.RemoteAddr)

	// First frame on every socket is the config state, so the dashboard can
	// render the settings pane without a round trip.
	c.sendEvent(evConfigState, h.creds.State())

	go c.writeLoop()
	c.readLoop()

	h.remove(c.id)
	c.close(websocket.StatusNormalClosure, "")
	h.engineer.StopOwned(c)
	h.metrics.ConnectedClients.Add(context.Background(), -1)
	h.log.Info("client disconnected", "client", c.id)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// ClientCount returns the number of connected sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastFrame fans one telemetry frame out to every client.
func (h *Hub) BroadcastFrame(f *gt7.Frame) {
	h.broadcast(evTelemetry, f)
	h.metrics.FramesBroadcast.Add(context.Background(), 1)
}

// BroadcastSnapshot fans one derived-state snapshot out to every client.
func (h *Hub) BroadcastSnapshot(snap analyzer.Snapshot) {
	h.broadcast(evSnapshot, snap)
}

// BroadcastText fans one text line out to every client. It implements
// [engineer.Broadcaster] for the callout fallback path.
func (h *Hub) BroadcastText(t engineer.Text) {
	h.broadcast(evEngineerText, t)
}

// broadcastConfigState pushes the current credential state to every client,
// so a settings change made on one dashboard shows up on all of them.
func (h *Hub) broadcastConfigState() {
	h.broadcast(evConfigState, h.creds.State())
}

// broadcast encodes the event once and enqueues it on every client.
func (h *Hub) broadcast(event string, data any) {
	msg, err := encodeEvent(event, data, "")
	if err != nil {
		h.log.Error("event encode failed", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.send(msg)
	}
}

// Close disconnects every client and refuses new ones. Idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	clear(h.clients)
	h.mu.Unlock()

	for _, c := range clients {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}
}
