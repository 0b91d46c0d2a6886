package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

// DefaultMetricInterval is how often metrics are exported.
const DefaultMetricInterval = 60 * time.Second

// Setup installs global trace and meter providers exporting to w, plus the W3C
// trace-context propagator. The returned func flushes and stops both providers.
func Setup(w io.Writer, metricInterval time.Duration) (func(context.Context) error, error) {
	tp, err := initTracer(w)
	if err != nil {
		return nil, err
	}

	mp, err := initMeter(w, metricInterval)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// initTracer initializes OpenTelemetry tracing
func initTracer(w io.Writer) (*trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)

	return tp, nil
}

// initMeter initializes OpenTelemetry metrics
func initMeter(w io.Writer, interval time.Duration) (*sdkmetric.MeterProvider, error) {
	if interval <= 0 {
		interval = DefaultMetricInterval
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)

	otel.SetMeterProvider(mp)

	return mp, nil
}
