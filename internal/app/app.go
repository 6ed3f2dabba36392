// Package app assembles the pitwall subsystems into one runnable unit: the
// console-facing telemetry listener, the analyzer and callout engine, the
// race recorder, the voice engineer, and the WebSocket hub with its HTTP
// server.
//
// New wires the pieces and binds both sockets, so construction failures
// surface before anything is running. Run drives the pipeline until the
// context is cancelled; every subsystem goroutine is context-scoped, so
// cancellation alone winds the pipeline down. Shutdown then finalizes the
// state that outlives the loops: the open race log and a live voice session.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rennlabs/pitwall/internal/analyzer"
	"github.com/rennlabs/pitwall/internal/callout"
	"github.com/rennlabs/pitwall/internal/config"
	"github.com/rennlabs/pitwall/internal/engineer"
	"github.com/rennlabs/pitwall/internal/health"
	"github.com/rennlabs/pitwall/internal/observe"
	"github.com/rennlabs/pitwall/internal/racelog"
	"github.com/rennlabs/pitwall/internal/server"
	"github.com/rennlabs/pitwall/internal/telemetry"
)

// Providers carries the integrations New cannot build on its own. cmd/pitwall
// wires the real Gemini dialer and validator; tests substitute fakes.
type Providers struct {
	// Dial builds a voice provider for an API key.
	Dial engineer.DialFunc

	// Creds is the opened credential store. The app does not own its
	// lifecycle; the caller closes it after Shutdown.
	Creds *config.Store

	// Keys validates candidate API keys. Nil selects the Gemini validator.
	Keys server.KeyChecker
}

// App owns the assembled pipeline. Construct with [New], drive with [Run],
// finalize with [Shutdown].
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *observe.Metrics

	listener *telemetry.Listener
	analyzer *analyzer.Analyzer
	callouts *callout.Engine
	recorder *racelog.Recorder
	engineer *engineer.Engineer
	hub      *server.Hub
	server   *server.Server

	closers  []func() error
	stopOnce sync.Once
}

// New builds the full pipeline from a validated configuration. Both the UDP
// telemetry socket and the HTTP listener are bound here; an error from New
// means the process cannot serve and should exit.
func New(cfg *config.Config, log *slog.Logger, metrics *observe.Metrics, p Providers) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if p.Creds == nil {
		return nil, errors.New("app: credential store is required")
	}
	if p.Dial == nil {
		return nil, errors.New("app: voice provider dialer is required")
	}
	if p.Keys == nil {
		p.Keys = engineer.NewKeyValidator()
	}

	a := &App{cfg: cfg, log: log, metrics: metrics}

	// ── 1. Console-facing UDP listener ───────────────────────────────────
	var peer netip.Addr
	if cfg.Telemetry.ConsoleAddr != "" {
		addr, err := netip.ParseAddr(cfg.Telemetry.ConsoleAddr)
		if err != nil {
			return nil, fmt.Errorf("app: console address %q: %w", cfg.Telemetry.ConsoleAddr, err)
		}
		peer = addr
	}
	listener, err := telemetry.New(telemetry.Config{
		ListenPort:     cfg.Telemetry.ListenPort,
		HeartbeatPort:  cfg.Telemetry.HeartbeatPort,
		HeartbeatEvery: cfg.Telemetry.HeartbeatInterval,
		Peer:           peer,
	}, log, metrics)
	if err != nil {
		return nil, fmt.Errorf("app: bind telemetry socket: %w", err)
	}
	a.listener = listener

	// ── 2. Derived state and callout rules ───────────────────────────────
	a.analyzer = analyzer.New(log)
	a.callouts = callout.NewEngine(log, cfg.Engineer.DefaultVerbosity)

	// ── 3. Race recorder ─────────────────────────────────────────────────
	recorder, err := racelog.New(racelog.Config{
		Dir:         cfg.RaceLog.Dir,
		IdleTimeout: cfg.RaceLog.IdleTimeout,
	}, log, metrics)
	if err != nil {
		return nil, fmt.Errorf("app: race log: %w", err)
	}
	a.recorder = recorder
	a.closers = append(a.closers, recorder.Close)

	// ── 4. Voice engineer ─────────────────────────────────────────────────
	// The hub is built one step later; the broadcast closure is safe because
	// engineer text only flows once a session is live, long after New.
	a.engineer = engineer.New(engineer.Config{
		Log:                log,
		Creds:              p.Creds,
		Dial:               p.Dial,
		Broadcast:          engineer.BroadcastFunc(func(t engineer.Text) { a.hub.BroadcastText(t) }),
		Metrics:            metrics,
		DefaultPersonality: cfg.Engineer.DefaultPersonality,
	})
	a.closers = append(a.closers, a.engineer.Close)

	// ── 5. Client hub and HTTP server ─────────────────────────────────────
	a.hub = server.NewHub(server.HubConfig{
		Log:      log,
		Metrics:  metrics,
		Engineer: a.engineer,
		Callouts: a.callouts,
		Creds:    p.Creds,
		Keys:     p.Keys,
	})
	srv, err := server.New(server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		Log:        log,
		Metrics:    metrics,
		Hub:        a.hub,
		Checkers:   healthCheckers(listener, p.Creds),
	})
	if err != nil {
		return nil, fmt.Errorf("app: bind http listener: %w", err)
	}
	a.server = srv

	return a, nil
}

// ServerAddr reports the bound HTTP address, useful when the configuration
// asked for an ephemeral port.
func (a *App) ServerAddr() net.Addr { return a.server.LocalAddr() }

// TelemetryAddr reports the bound UDP address.
func (a *App) TelemetryAddr() net.Addr { return a.listener.LocalAddr() }

// lapQueue bounds pending lap edges between the frame consumer and the
// scheduler. Laps complete tens of seconds apart, so the queue only fills
// when the scheduler has stalled.
const lapQueue = 8

// lapEvent carries a completed-lap edge to the scheduler goroutine: the
// moment it happened and the snapshot taken right at the edge.
type lapEvent struct {
	at   time.Time
	snap analyzer.Snapshot
}

// Run starts the pipeline and blocks until ctx is cancelled or a subsystem
// fails. A clean shutdown returns nil. Call Shutdown afterwards to flush
// what the loops left open.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Lap edges are detected on the frame consumer, after the analyzer has
	// folded the completed lap in. Evaluation happens on the scheduler
	// goroutine, which owns the callout engine; the handoff carries the
	// snapshot taken at the edge.
	laps := make(chan lapEvent, lapQueue)
	a.analyzer.SetLapObserver(func() {
		now := time.Now()
		ev := lapEvent{at: now, snap: a.analyzer.Snapshot(now)}
		select {
		case laps <- ev:
		default:
			a.log.Warn("lap event dropped, scheduler stalled", "lap", ev.snap.CurrentLap)
		}
	})

	g.Go(func() error { return a.listener.Run(ctx) })
	g.Go(func() error { return a.recorder.Run(ctx) })
	g.Go(func() error { return a.server.Run(ctx) })
	g.Go(func() error { return a.consumeFrames(ctx) })
	g.Go(func() error { return a.scheduleLoop(ctx, laps) })

	a.log.Info("pitwall running",
		"http", a.server.LocalAddr(),
		"telemetry", a.listener.LocalAddr(),
		"race_log_dir", a.cfg.RaceLog.Dir,
	)

	return g.Wait()
}

// consumeFrames fans the decoded stream into the analyzer, the recorder, and
// the hub. The analyzer and recorder see every frame; the hub broadcast is
// thinned to the configured rate, skipping frames rather than queueing them.
func (a *App) consumeFrames(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Limit(a.cfg.Telemetry.BroadcastHz), 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-a.listener.Frames():
			if !ok {
				return nil
			}
			now := time.Now()
			a.analyzer.Ingest(now, f)
			a.recorder.Record(now, f)
			if limiter.Allow() {
				a.hub.BroadcastFrame(f)
			}
		}
	}
}

// scheduleLoop owns all rule evaluation plus the two clocks that do not
// follow the frame rate: the snapshot cadence toward clients and the callout
// engine, and the slower telemetry refresh toward a live voice session. Lap
// edges arrive over laps so tick and lap callouts never interleave.
func (a *App) scheduleLoop(ctx context.Context, laps <-chan lapEvent) error {
	snap := time.NewTicker(a.cfg.Telemetry.SnapshotInterval)
	defer snap.Stop()
	refresh := time.NewTicker(a.cfg.Engineer.ContextInterval)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-laps:
			a.engineer.DeliverCallouts(ctx, a.callouts.OnLapComplete(ev.at, ev.snap))
		case now := <-snap.C:
			s := a.analyzer.Snapshot(now)
			a.hub.BroadcastSnapshot(s)
			a.engineer.DeliverCallouts(ctx, a.callouts.OnTick(now, s))
		case <-refresh.C:
			a.engineer.UpdateContext(a.analyzer.Snapshot(time.Now()))
		}
	}
}

// Shutdown finalizes state the pipeline loops leave behind: it flushes the
// open race log pair and hangs up a live voice session. Closers run in
// reverse construction order. Safe to call more than once; only the first
// call does work. Run must have returned first, otherwise closers race the
// loops still using their subsystems.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		var errs []error
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			a.log.Warn("shutdown finished with errors", "err", err)
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// healthCheckers builds the probes behind /readyz. Readiness means the
// telemetry socket is bound and the credential store answers; a console
// that has gone quiet does not make the process unready.
func healthCheckers(l *telemetry.Listener, creds *config.Store) []health.Checker {
	return []health.Checker{
		{Name: "telemetry", Check: func(context.Context) error {
			if l.LocalAddr() == nil {
				return errors.New("telemetry socket not bound")
			}
			return nil
		}},
		{Name: "config", Check: func(context.Context) error {
			// State never blocks; reaching it proves the store is open.
			_ = creds.State()
			return nil
		}},
	}
}
