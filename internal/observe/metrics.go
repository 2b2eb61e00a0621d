// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, tracing, and HTTP middleware that ties them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/standin-ai/standin"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// IntentDuration tracks intent-classification latency.
	IntentDuration metric.Float64Histogram

	// GenerateDuration tracks response-generation latency.
	GenerateDuration metric.Float64Histogram

	// SynthesisDuration tracks speech-synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// PlaybackDuration tracks playback time of spoken responses.
	PlaybackDuration metric.Float64Histogram

	// SwapDuration tracks the recognizer stop/settle/restart handover paid
	// around each spoken response.
	SwapDuration metric.Float64Histogram

	// CycleDuration tracks the full detect/respond cycle, silence trigger
	// to return-to-idle.
	CycleDuration metric.Float64Histogram

	// --- Counters ---

	// Cycles counts detect/respond cycles. Use with attribute:
	//   attribute.String("outcome", ...) — "responded", "silent", "error"
	Cycles metric.Int64Counter

	// GateDecisions counts confidence-gate verdicts. Use with attribute:
	//   attribute.String("action", ...)
	GateDecisions metric.Int64Counter

	// DroppedChunks counts capture chunks dropped on queue overflow.
	DroppedChunks metric.Int64Counter

	// TranscriptSegments counts finalized transcript segments.
	TranscriptSegments metric.Int64Counter

	// --- Gauges ---

	// SpeakingState is 1 while the agent is speaking, 0 otherwise.
	SpeakingState metric.Int64UpDownCounter

	// RecognizerReady is 1 while the recognizer model is loaded and
	// consuming audio, 0 during warmup and swaps.
	RecognizerReady metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice-pipeline latencies, from playback bookkeeping in milliseconds up to
// CPU-bound generation and synthesis in the tens of seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.IntentDuration, "standin.intent.duration", "Latency of intent classification."},
		{&met.GenerateDuration, "standin.generate.duration", "Latency of response generation."},
		{&met.SynthesisDuration, "standin.synthesis.duration", "Latency of speech synthesis."},
		{&met.PlaybackDuration, "standin.playback.duration", "Playback time of spoken responses."},
		{&met.SwapDuration, "standin.swap.duration", "Recognizer stop/settle/restart handover time."},
		{&met.CycleDuration, "standin.cycle.duration", "Full detect/respond cycle time."},
	}
	for _, h := range histograms {
		var err error
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	var err error
	if met.Cycles, err = m.Int64Counter("standin.cycles",
		metric.WithDescription("Total detect/respond cycles by outcome."),
	); err != nil {
		return nil, err
	}
	if met.GateDecisions, err = m.Int64Counter("standin.gate.decisions",
		metric.WithDescription("Total confidence-gate verdicts by action."),
	); err != nil {
		return nil, err
	}
	if met.DroppedChunks, err = m.Int64Counter("standin.capture.dropped_chunks",
		metric.WithDescription("Capture chunks dropped on queue overflow."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptSegments, err = m.Int64Counter("standin.transcript.segments",
		metric.WithDescription("Finalized transcript segments."),
	); err != nil {
		return nil, err
	}
	if met.SpeakingState, err = m.Int64UpDownCounter("standin.speaking",
		metric.WithDescription("1 while the agent is speaking."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerReady, err = m.Int64UpDownCounter("standin.recognizer.ready",
		metric.WithDescription("1 while the recognizer model is loaded and consuming audio."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("standin.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordCycle records a completed detect/respond cycle with its outcome and
// total duration.
func (m *Metrics) RecordCycle(ctx context.Context, outcome string, seconds float64) {
	m.Cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.CycleDuration.Record(ctx, seconds)
}

// RecordGateDecision records one confidence-gate verdict.
func (m *Metrics) RecordGateDecision(ctx context.Context, action string) {
	m.GateDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}
