package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumValueWith returns the data point value whose attribute set contains
// key=value, or -1 when no such point exists.
func sumValueWith(sum metricdata.Sum[int64], key, value string) int64 {
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestPipelineCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FramesReceived.Add(ctx, 60)
	m.HeartbeatsSent.Add(ctx, 2)
	m.FramesBroadcast.Add(ctx, 30)
	m.RecordFrameDrop(ctx, "receiver")
	m.RecordFrameDrop(ctx, "receiver")
	m.RecordFrameDrop(ctx, "client")
	m.RecordDecodeFailure(ctx, "short")
	m.RecordDecodeFailure(ctx, "magic")

	rm := collect(t, reader)

	plain := []struct {
		name string
		want int64
	}{
		{"pitwall.telemetry.frames.received", 60},
		{"pitwall.telemetry.heartbeats.sent", 2},
		{"pitwall.broadcast.frames", 30},
	}
	for _, tc := range plain {
		met := findMetric(rm, tc.name)
		if met == nil {
			t.Fatalf("metric %q not found", tc.name)
		}
		sum, ok := met.Data.(metricdata.Sum[int64])
		if !ok || len(sum.DataPoints) == 0 {
			t.Fatalf("metric %q has no sum data", tc.name)
		}
		if got := sum.DataPoints[0].Value; got != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, got, tc.want)
		}
	}

	drops := findMetric(rm, "pitwall.telemetry.frames.dropped")
	if drops == nil {
		t.Fatal("drop metric not found")
	}
	if got := sumValueWith(drops.Data.(metricdata.Sum[int64]), "stage", "receiver"); got != 2 {
		t.Errorf("receiver drops = %d, want 2", got)
	}
	if got := sumValueWith(drops.Data.(metricdata.Sum[int64]), "stage", "client"); got != 1 {
		t.Errorf("client drops = %d, want 1", got)
	}

	fails := findMetric(rm, "pitwall.telemetry.decode.failures")
	if fails == nil {
		t.Fatal("decode failure metric not found")
	}
	if got := sumValueWith(fails.Data.(metricdata.Sum[int64]), "reason", "magic"); got != 1 {
		t.Errorf("magic failures = %d, want 1", got)
	}
}

func TestCalloutCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCallout(ctx, "fuel_low", "voice")
	m.RecordCallout(ctx, "fuel_low", "voice")
	m.RecordCallout(ctx, "lap_delta", "text")

	rm := collect(t, reader)
	met := findMetric(rm, "pitwall.callouts.emitted")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if got := sumValueWith(sum, "type", "fuel_low"); got != 2 {
		t.Errorf("fuel_low count = %d, want 2", got)
	}
	if got := sumValueWith(sum, "delivery", "text"); got != 1 {
		t.Errorf("text delivery count = %d, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ConnectedClients.Add(ctx, 3)
	m.ConnectedClients.Add(ctx, -1)
	m.ActiveVoiceSessions.Add(ctx, 1)

	rm := collect(t, reader)

	gauges := []struct {
		name string
		want int64
	}{
		{"pitwall.clients.connected", 2},
		{"pitwall.voice.sessions.active", 1},
	}
	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("gauge value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSessionDurationHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.VoiceSessionDuration.Record(ctx, 312.5)
	m.VoiceSessionDuration.Record(ctx, 4.2)

	rm := collect(t, reader)
	met := findMetric(rm, "pitwall.voice.session.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("sample count = %d, want 2", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "pitwall.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDecodeDurationHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.DecodeDuration.Record(ctx, 0.00008)
	m.DecodeDuration.Record(ctx, 0.00021)
	m.DecodeDuration.Record(ctx, 0.0031)

	rm := collect(t, reader)
	met := findMetric(rm, "pitwall.telemetry.decode.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 3 {
		t.Errorf("sample count = %d, want 3", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
