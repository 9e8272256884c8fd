package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TelemetryOptions carries just enough to stand up the OTel SDK;
// internal/config.TelemetryConfig is mapped into this at the call
// site so this package stays decoupled from internal/config.
type TelemetryOptions struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
}

// InitOTel configures a tracer provider that batches spans to an OTLP
// HTTP collector, and a meter provider whose metrics stay in-process
// (a manual reader; metrics are not exported). When opts.Endpoint is
// empty it is a no-op: the
// global tracer/meter providers stay the default no-op
// implementation, so every otel.Tracer/otel.Meter call elsewhere in
// the codebase is always safe to make unconditionally.
func InitOTel(ctx context.Context, opts TelemetryOptions) (func(context.Context) error, error) {
	if opts.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "spineprep"
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("init resource: %w", err)
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	trExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("init trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(trExp),
		sdktrace.WithResource(res),
	)

	// Only the trace exporter module is wired here; metrics are
	// aggregated in-process against the same resource via a manual
	// reader rather than pulling in a second OTLP exporter dependency
	// for a path spec.md treats as an ambient, not a core, concern.
	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewManualReader()),
		metric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) error {
		var first error
		if err := mp.Shutdown(ctx); err != nil {
			first = err
		}
		if err := tp.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
		return first
	}, nil
}
