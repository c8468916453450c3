// Package observe provides the observability primitives for readalong:
// OpenTelemetry metrics, tracing, trace-aware logging, and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider], so they are scraped from /metrics. Tests
// should use [NewMetrics] with a private [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all readalong metrics.
const meterName = "github.com/MrWong99/readalong"

// Metrics holds the OpenTelemetry instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// AlignmentDuration tracks the time spent aligning one recognition result.
	AlignmentDuration metric.Float64Histogram

	// SessionDuration tracks wall-clock length of finished practice sessions.
	SessionDuration metric.Float64Histogram

	// SessionAccuracy records the accuracy percentage of finished sessions.
	SessionAccuracy metric.Float64Histogram

	// Words counts resolved reference words. Use with attribute:
	//   attribute.String("outcome", "correct"|"incorrect")
	Words metric.Int64Counter

	// RecognitionErrors counts engine error events. Use with attribute:
	//   attribute.String("code", ...)
	RecognitionErrors metric.Int64Counter

	// RecognitionRestarts counts stream restarts. Use with attribute:
	//   attribute.String("reason", ...)
	RecognitionRestarts metric.Int64Counter

	// ProviderRequests counts StartStream calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed StartStream calls per provider.
	ProviderErrors metric.Int64Counter

	// ActiveSessions tracks the number of running practice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries (seconds) for per-result work.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

var sessionBuckets = []float64{5, 15, 30, 60, 120, 300, 600, 1800}

var accuracyBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 100}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AlignmentDuration, err = m.Float64Histogram("readalong.alignment.duration",
		metric.WithDescription("Latency of aligning one recognition result."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("readalong.session.duration",
		metric.WithDescription("Wall-clock length of finished practice sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionAccuracy, err = m.Float64Histogram("readalong.session.accuracy",
		metric.WithDescription("Accuracy percentage of finished practice sessions."),
		metric.WithUnit("%"),
		metric.WithExplicitBucketBoundaries(accuracyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Words, err = m.Int64Counter("readalong.words",
		metric.WithDescription("Resolved reference words by outcome."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("readalong.recognition.errors",
		metric.WithDescription("Recognition engine errors by code."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionRestarts, err = m.Int64Counter("readalong.recognition.restarts",
		metric.WithDescription("Recognition stream restarts by reason."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("readalong.provider.requests",
		metric.WithDescription("Total stream starts by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("readalong.provider.errors",
		metric.WithDescription("Total failed stream starts by provider."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("readalong.sessions.active",
		metric.WithDescription("Number of running practice sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("readalong.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordWord counts one resolved reference word.
func (m *Metrics) RecordWord(ctx context.Context, outcome string) {
	m.Words.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRecognitionError counts one engine error event.
func (m *Metrics) RecordRecognitionError(ctx context.Context, code string) {
	m.RecognitionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordRestart counts one stream restart.
func (m *Metrics) RecordRestart(ctx context.Context, reason string) {
	m.RecognitionRestarts.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordProviderRequest records a stream start with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a failed stream start.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordSession records the duration and accuracy of a finished session.
func (m *Metrics) RecordSession(ctx context.Context, seconds, accuracy float64, completed bool) {
	attrs := metric.WithAttributes(attribute.Bool("completed", completed))
	m.SessionDuration.Record(ctx, seconds, attrs)
	m.SessionAccuracy.Record(ctx, accuracy, attrs)
}
