package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AnalysisMetrics provides metrics collection for analysis attempts
type AnalysisMetrics struct {
	attemptsStartedCounter   metric.Int64Counter
	attemptsSucceededCounter metric.Int64Counter
	attemptsFailedCounter    metric.Int64Counter
	attemptDurationHistogram metric.Float64Histogram
	attemptsInFlightGauge    metric.Int64UpDownCounter
}

// NewAnalysisMetrics creates a collector on the global meter provider
func NewAnalysisMetrics() (*AnalysisMetrics, error) {
	return NewAnalysisMetricsWithMeter(otel.Meter("promptlens-analysis"))
}

// NewAnalysisMetricsWithMeter creates a collector on the given meter
func NewAnalysisMetricsWithMeter(meter metric.Meter) (*AnalysisMetrics, error) {
	attemptsStartedCounter, err := meter.Int64Counter(
		"promptlens.analysis.started",
		metric.WithDescription("Total number of analysis attempts started"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	attemptsSucceededCounter, err := meter.Int64Counter(
		"promptlens.analysis.succeeded",
		metric.WithDescription("Total number of analysis attempts that returned a result"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	attemptsFailedCounter, err := meter.Int64Counter(
		"promptlens.analysis.failed",
		metric.WithDescription("Total number of analysis attempts that failed"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	attemptDurationHistogram, err := meter.Float64Histogram(
		"promptlens.analysis.duration",
		metric.WithDescription("Duration of analysis attempts in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	attemptsInFlightGauge, err := meter.Int64UpDownCounter(
		"promptlens.analysis.in_flight",
		metric.WithDescription("Number of analysis attempts awaiting a response"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	return &AnalysisMetrics{
		attemptsStartedCounter:   attemptsStartedCounter,
		attemptsSucceededCounter: attemptsSucceededCounter,
		attemptsFailedCounter:    attemptsFailedCounter,
		attemptDurationHistogram: attemptDurationHistogram,
		attemptsInFlightGauge:    attemptsInFlightGauge,
	}, nil
}

// RecordAttemptStarted records a request leaving for the inference service
func (am *AnalysisMetrics) RecordAttemptStarted(ctx context.Context, surface string) {
	am.attemptsStartedCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("surface", surface)),
	)
	am.attemptsInFlightGauge.Add(ctx, 1,
		metric.WithAttributes(attribute.String("surface", surface)),
	)
}

// RecordAttemptSucceeded records a successful attempt
func (am *AnalysisMetrics) RecordAttemptSucceeded(ctx context.Context, surface string, cached bool, duration time.Duration) {
	am.attemptsSucceededCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("surface", surface),
			attribute.Bool("cached", cached),
		),
	)
	am.attemptDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("surface", surface),
			attribute.String("status", "succeeded"),
		),
	)
	am.attemptsInFlightGauge.Add(ctx, -1,
		metric.WithAttributes(attribute.String("surface", surface)),
	)
}

// RecordAttemptFailed records a failed attempt with its error kind
func (am *AnalysisMetrics) RecordAttemptFailed(ctx context.Context, surface, errorKind string, duration time.Duration) {
	am.attemptsFailedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("surface", surface),
			attribute.String("error.kind", errorKind),
		),
	)
	am.attemptDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("surface", surface),
			attribute.String("status", "failed"),
		),
	)
	am.attemptsInFlightGauge.Add(ctx, -1,
		metric.WithAttributes(attribute.String("surface", surface)),
	)
}
