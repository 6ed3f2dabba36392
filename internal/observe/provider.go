package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig identifies this process in exported telemetry.
type ProviderConfig struct {
	// ServiceName defaults to "pitwall".
	ServiceName string

	// ServiceVersion is the build version stamped into the resource.
	ServiceVersion string

	// TraceExporter receives finished spans. Left nil, spans carry
	// correlation IDs through logs but are not exported anywhere, which is
	// all the relay needs on a home network.
	TraceExporter sdktrace.SpanExporter
}

// InitProvider installs the global meter and tracer providers. Metrics flow
// through the Prometheus bridge into the default registry, which the
// dashboard server scrapes at /metrics; spans go to the configured exporter
// when one is set. The returned shutdown flushes both providers and is meant
// to be deferred from main.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	bridge, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(bridge),
	)
	otel.SetMeterProvider(mp)

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		opts = append(opts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}, nil
}

func newResource(cfg ProviderConfig) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "pitwall"
	}
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(name),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
}
