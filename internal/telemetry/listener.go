// Package telemetry receives the console's encrypted UDP stream.
//
// The console only unicasts telemetry to whichever host most recently sent a
// heartbeat to its heartbeat port, so the listener keeps probing: while the
// console address is unknown it heartbeats every directed broadcast address
// of the host's IPv4 interfaces, and once a valid frame arrives it locks
// onto that sender and heartbeats it alone for the rest of the process
// lifetime. A configured explicit peer skips discovery entirely.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/rennlabs/pitwall/internal/observe"
	"github.com/rennlabs/pitwall/pkg/gt7"
)

// Config holds listener settings. Zero values fall back to the protocol
// defaults, except ListenPort where 0 binds an ephemeral port.
type Config struct {
	// ListenPort is the local UDP port telemetry arrives on. The console
	// sends to gt7.TelemetryPort; 0 binds an ephemeral port.
	ListenPort int

	// HeartbeatPort is the console-side UDP port heartbeats go to.
	// Default gt7.HeartbeatPort.
	HeartbeatPort int

	// HeartbeatEvery is the probe interval. Default 10s.
	HeartbeatEvery time.Duration

	// Peer is an explicit console address. When valid, discovery is skipped
	// and the listener starts locked onto it.
	Peer netip.Addr

	// QueueSize caps the frames channel. Default 64. When the consumer
	// falls behind, the newest frame is dropped; stale telemetry is worth
	// less than keeping receive latency flat.
	QueueSize int
}

func (c *Config) applyDefaults() {
	if c.HeartbeatPort == 0 {
		c.HeartbeatPort = gt7.HeartbeatPort
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 10 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
}

// Listener binds the telemetry socket, heartbeats the console, and delivers
// decoded frames on Frames().
type Listener struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics

	conn   *net.UDPConn
	frames chan *gt7.Frame

	mu      sync.Mutex
	locked  bool
	peer    netip.AddrPort
	targets []netip.AddrPort
}

// New binds the telemetry socket and prepares heartbeat targets. A bind
// failure is returned as-is; it is fatal for the caller.
func New(cfg Config, log *slog.Logger, metrics *observe.Metrics) (*Listener, error) {
	cfg.applyDefaults()
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	conn, err := bindBroadcastUDP(cfg.ListenPort)
	if err != nil {
		return nil, fmt.Errorf("bind telemetry port %d: %w", cfg.ListenPort, err)
	}

	l := &Listener{
		cfg:     cfg,
		log:     log.With("component", "telemetry"),
		metrics: metrics,
		conn:    conn,
		frames:  make(chan *gt7.Frame, cfg.QueueSize),
	}

	if cfg.Peer.IsValid() {
		l.locked = true
		l.peer = netip.AddrPortFrom(cfg.Peer.Unmap(), uint16(cfg.HeartbeatPort))
		l.targets = []netip.AddrPort{l.peer}
		l.log.Info("telemetry peer configured explicitly", "peer", l.peer)
	} else {
		l.targets = broadcastTargets(uint16(cfg.HeartbeatPort))
		l.log.Info("telemetry discovery started", "targets", len(l.targets))
	}
	return l, nil
}

// Frames returns the decoded frame stream. The channel closes when Run
// returns.
func (l *Listener) Frames() <-chan *gt7.Frame { return l.frames }

// LocalAddr reports the bound UDP address.
func (l *Listener) LocalAddr() net.Addr { return l.conn.LocalAddr() }

// Locked reports whether a telemetry source has been identified.
func (l *Listener) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// Peer returns the locked console address, or the zero AddrPort before lock.
func (l *Listener) Peer() netip.AddrPort {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peer
}

// Run receives datagrams and sends heartbeats until ctx is cancelled. It
// closes the frames channel on return. Receive errors after cancellation are
// treated as a normal shutdown.
func (l *Listener) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Go(func() { l.heartbeatLoop(runCtx) })

	// Closing the socket is the only way to unblock the blocking read.
	stop := context.AfterFunc(runCtx, func() { _ = l.conn.Close() })
	defer stop()

	err := l.receiveLoop(runCtx)
	cancel()
	wg.Wait()
	close(l.frames)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (l *Listener) receiveLoop(ctx context.Context) error {
	buf := make([]byte, 2048)
	for {
		n, sender, err := l.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("telemetry receive: %w", err)
		}

		start := time.Now()
		frame, err := gt7.Decode(buf[:n])
		if err != nil {
			l.metrics.RecordDecodeFailure(ctx, decodeFailureReason(err))
			continue
		}
		l.metrics.DecodeDuration.Record(ctx, time.Since(start).Seconds())
		l.metrics.FramesReceived.Add(ctx, 1)
		l.lockOn(sender)

		select {
		case l.frames <- frame:
		default:
			l.metrics.RecordFrameDrop(ctx, "receiver")
		}
	}
}

func decodeFailureReason(err error) string {
	// Short datagrams are common chatter (SSDP and friends); magic failures
	// mean a full-size packet from something other than the console.
	switch {
	case errors.Is(err, gt7.ErrShortPacket):
		return "short"
	case errors.Is(err, gt7.ErrBadMagic):
		return "magic"
	default:
		return "other"
	}
}

// lockOn records the first accepted sender as the sole heartbeat target.
func (l *Listener) lockOn(sender netip.AddrPort) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked {
		return
	}
	l.locked = true
	l.peer = netip.AddrPortFrom(sender.Addr().Unmap(), uint16(l.cfg.HeartbeatPort))
	l.targets = []netip.AddrPort{l.peer}
	l.log.Info("telemetry source locked", "peer", l.peer)
}

// heartbeatLoop probes immediately and then on every tick. Without the
// initial probe a silent console would stay silent for a full interval.
func (l *Listener) heartbeatLoop(ctx context.Context) {
	l.sendHeartbeats(ctx)
	ticker := time.NewTicker(l.cfg.HeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sendHeartbeats(ctx)
		}
	}
}

func (l *Listener) sendHeartbeats(ctx context.Context) {
	l.mu.Lock()
	targets := slices.Clone(l.targets)
	l.mu.Unlock()

	payload := []byte{gt7.Heartbeat}
	for _, target := range targets {
		if _, err := l.conn.WriteToUDPAddrPort(payload, target); err != nil {
			// Asymmetric networks drop these during discovery; keep probing.
			l.log.Debug("heartbeat send failed", "target", target, "error", err)
			continue
		}
		l.metrics.HeartbeatsSent.Add(ctx, 1)
	}
}
