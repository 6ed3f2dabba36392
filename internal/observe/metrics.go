// Package observe provides application-wide observability primitives for
// pitwall: OpenTelemetry metrics, tracing helpers, and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pitwall metrics.
const meterName = "github.com/rennlabs/pitwall"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Telemetry pipeline counters ---

	// FramesReceived counts telemetry datagrams that decoded into frames.
	FramesReceived metric.Int64Counter

	// FramesDropped counts frames discarded on a full queue. Use with
	// attribute: attribute.String("stage", "receiver"|"client"|"logger")
	FramesDropped metric.Int64Counter

	// DecodeFailures counts datagrams rejected by the decoder. Use with
	// attribute: attribute.String("reason", "short"|"magic")
	DecodeFailures metric.Int64Counter

	// HeartbeatsSent counts heartbeat probes written to the console.
	HeartbeatsSent metric.Int64Counter

	// FramesBroadcast counts frames fanned out to dashboard clients after
	// the rate limiter.
	FramesBroadcast metric.Int64Counter

	// --- Race engineer counters ---

	// CalloutsEmitted counts callouts that passed gating. Use with
	// attributes: attribute.String("type", ...), attribute.String("delivery", "voice"|"text")
	CalloutsEmitted metric.Int64Counter

	// DriverAudioChunks counts driver microphone chunks forwarded to the
	// voice model.
	DriverAudioChunks metric.Int64Counter

	// ModelAudioChunks counts model audio chunks forwarded to clients.
	ModelAudioChunks metric.Int64Counter

	// --- Gauges ---

	// ConnectedClients tracks the number of dashboard WebSocket clients.
	ConnectedClients metric.Int64UpDownCounter

	// ActiveVoiceSessions tracks live voice-model sessions (0 or 1).
	ActiveVoiceSessions metric.Int64UpDownCounter

	// --- Histograms ---

	// VoiceSessionDuration tracks how long voice sessions stay open.
	VoiceSessionDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// DecodeDuration tracks how long one accepted datagram took to decrypt
	// and decode.
	DecodeDuration metric.Float64Histogram
}

// sessionBuckets defines histogram bucket boundaries (in seconds) sized for
// voice sessions, which live from one quick radio check to a full race.
var sessionBuckets = []float64{
	1, 5, 15, 60, 300, 900, 1800, 3600,
}

// decodeBuckets sizes the decode histogram for a 296-byte decrypt-and-parse,
// which lands in the microsecond range on anything modern.
var decodeBuckets = []float64{
	0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.005,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Pipeline counters.
	if met.FramesReceived, err = m.Int64Counter("pitwall.telemetry.frames.received",
		metric.WithDescription("Total telemetry datagrams decoded into frames."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("pitwall.telemetry.frames.dropped",
		metric.WithDescription("Total frames discarded on a full queue, by stage."),
	); err != nil {
		return nil, err
	}
	if met.DecodeFailures, err = m.Int64Counter("pitwall.telemetry.decode.failures",
		metric.WithDescription("Total datagrams the decoder rejected, by reason."),
	); err != nil {
		return nil, err
	}
	if met.HeartbeatsSent, err = m.Int64Counter("pitwall.telemetry.heartbeats.sent",
		metric.WithDescription("Total heartbeat probes sent to the console."),
	); err != nil {
		return nil, err
	}
	if met.FramesBroadcast, err = m.Int64Counter("pitwall.broadcast.frames",
		metric.WithDescription("Total frames broadcast to dashboard clients."),
	); err != nil {
		return nil, err
	}

	// Race engineer counters.
	if met.CalloutsEmitted, err = m.Int64Counter("pitwall.callouts.emitted",
		metric.WithDescription("Total callouts emitted, by type and delivery path."),
	); err != nil {
		return nil, err
	}
	if met.DriverAudioChunks, err = m.Int64Counter("pitwall.voice.audio.driver.chunks",
		metric.WithDescription("Total driver audio chunks forwarded to the voice model."),
	); err != nil {
		return nil, err
	}
	if met.ModelAudioChunks, err = m.Int64Counter("pitwall.voice.audio.model.chunks",
		metric.WithDescription("Total model audio chunks forwarded to clients."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ConnectedClients, err = m.Int64UpDownCounter("pitwall.clients.connected",
		metric.WithDescription("Number of connected dashboard clients."),
	); err != nil {
		return nil, err
	}
	if met.ActiveVoiceSessions, err = m.Int64UpDownCounter("pitwall.voice.sessions.active",
		metric.WithDescription("Number of live voice-model sessions."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.VoiceSessionDuration, err = m.Float64Histogram("pitwall.voice.session.duration",
		metric.WithDescription("Lifetime of voice-model sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("pitwall.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.DecodeDuration, err = m.Float64Histogram("pitwall.telemetry.decode.duration",
		metric.WithDescription("Time to decrypt and decode one telemetry datagram."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(decodeBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrameDrop records a dropped frame with the standard stage attribute.
func (m *Metrics) RecordFrameDrop(ctx context.Context, stage string) {
	m.FramesDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordDecodeFailure records a rejected datagram with the standard reason
// attribute.
func (m *Metrics) RecordDecodeFailure(ctx context.Context, reason string) {
	m.DecodeFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordCallout records an emitted callout with its type and delivery path.
func (m *Metrics) RecordCallout(ctx context.Context, calloutType, delivery string) {
	m.CalloutsEmitted.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", calloutType),
			attribute.String("delivery", delivery),
		),
	)
}
