// Package server is the dashboard-facing edge: one HTTP listener carrying
// the WebSocket event stream plus health probes and the Prometheus scrape
// endpoint.
//
// Every WebSocket message in both directions is a JSON envelope
//
//	{"event": "...", "data": ..., "id": "..."}
//
// where id is set by the client on requests that expect an acknowledgement
// and echoed back on the matching {"event": "ack"} reply. Telemetry and
// config-state events fan out to every connected socket; voice-session
// events go only to the socket that owns the session. Clients that cannot
// keep up lose telemetry frames rather than slowing the pipeline down.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rennlabs/pitwall/internal/health"
	"github.com/rennlabs/pitwall/internal/observe"
)

const shutdownTimeout = 5 * time.Second

// Config holds the HTTP server's dependencies.
type Config struct {
	// ListenAddr is the TCP address to serve on, e.g. ":4401".
	ListenAddr string

	Log     *slog.Logger
	Metrics *observe.Metrics
	Hub     *Hub

	// Checkers back the /readyz endpoint.
	Checkers []health.Checker
}

// Server owns the HTTP listener and its routes: /ws for the dashboard event
// stream, /healthz and /readyz probes, and /metrics for Prometheus scrapes.
type Server struct {
	log  *slog.Logger
	hub  *Hub
	ln   net.Listener
	http *http.Server
}

// New binds the listen address and assembles the route table. A bind failure
// is returned immediately; the caller treats it as fatal.
func New(cfg Config) (*Server, error) {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("server: listen on %s: %w", cfg.ListenAddr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", cfg.Hub.ServeWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(cfg.Checkers...).Register(mux)

	return &Server{
		log: cfg.Log.With("component", "server"),
		hub: cfg.Hub,
		ln:  ln,
		http: &http.Server{
			Handler: observe.Middleware(cfg.Metrics)(mux),
			// Only the header read is bounded; request timeouts would kill
			// long-lived WebSocket connections.
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// LocalAddr returns the bound listen address.
func (s *Server) LocalAddr() net.Addr { return s.ln.Addr() }

// Run serves until ctx is cancelled, then disconnects all WebSocket clients
// and drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("listening", "addr", s.ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(s.ln) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	// WebSocket handlers only return once their connections close, and
	// Shutdown waits for handlers, so the hub goes first.
	s.hub.Close()
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shCtx); err != nil {
		s.log.Warn("shutdown incomplete", "error", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
