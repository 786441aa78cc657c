// Package observe provides application-wide observability primitives for
// Voxgate: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxgate metrics.
const meterName = "github.com/voxgate/voxgate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Turn-taking ---

	// TurnDecisions counts completed user turns. Use with attribute:
	//   attribute.String("reason", ...) — classifier, timeout, or silence.
	TurnDecisions metric.Int64Counter

	// Interruptions counts arbitrated speech-onset events while the bot was
	// speaking. Use with attributes:
	//   attribute.Bool("allow", ...), attribute.String("reason", ...)
	Interruptions metric.Int64Counter

	// SignalsDropped counts signals discarded by the mute gate, by kind.
	SignalsDropped metric.Int64Counter

	// TurnDuration tracks the length of completed user turns, first speech
	// onset to completion decision.
	TurnDuration metric.Float64Histogram

	// EvalLatency tracks how long a turn sat in end-of-turn evaluation before
	// a decision landed.
	EvalLatency metric.Float64Histogram

	// --- Latency histograms per pipeline stage ---

	// ClassifierDuration tracks end-of-turn classifier round-trip latency.
	ClassifierDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Provider counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of live telephony calls.
	ActiveCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// turnBuckets covers conversational turn lengths, sub-second blips up to
// monologues.
var turnBuckets = []float64{
	0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// instruments wraps a meter and remembers the first creation error so
// NewMetrics can register everything without an error check per instrument.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	if b.err == nil {
		b.err = err
	}
	return c
}

func (b *instruments) upDown(name, desc string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	if b.err == nil {
		b.err = err
	}
	return c
}

func (b *instruments) seconds(name, desc string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{
		metric.WithDescription(desc),
		metric.WithUnit("s"),
	}
	if buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	if b.err == nil {
		b.err = err
	}
	return h
}

// NewMetrics registers every Voxgate instrument on the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}

	met := &Metrics{
		TurnDecisions:  b.counter("voxgate.turn.decisions", "Completed user turns by decision reason."),
		Interruptions:  b.counter("voxgate.turn.interruptions", "Arbitrated interruption attempts by outcome and reason."),
		SignalsDropped: b.counter("voxgate.turn.signals_dropped", "Signals discarded by the mute gate, by kind."),

		TurnDuration: b.seconds("voxgate.turn.duration", "Length of completed user turns.", turnBuckets),
		EvalLatency:  b.seconds("voxgate.turn.eval_latency", "Time between speech stop and the turn-complete decision.", latencyBuckets),

		ClassifierDuration: b.seconds("voxgate.classifier.duration", "Latency of end-of-turn classification.", latencyBuckets),
		LLMDuration:        b.seconds("voxgate.llm.duration", "Latency of LLM inference.", latencyBuckets),
		TTSDuration:        b.seconds("voxgate.tts.duration", "Latency of text-to-speech synthesis.", latencyBuckets),

		ProviderRequests: b.counter("voxgate.provider.requests", "Total provider API requests by provider, kind, and status."),
		ProviderErrors:   b.counter("voxgate.provider.errors", "Total provider errors by provider and kind."),

		ActiveCalls: b.upDown("voxgate.active_calls", "Number of live telephony calls."),

		HTTPRequestDuration: b.seconds("voxgate.http.request.duration", "HTTP request latency by method and path.", nil),
	}
	if b.err != nil {
		return nil, b.err
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

// RecordTurnDecision records one completed user turn by decision reason.
func (m *Metrics) RecordTurnDecision(ctx context.Context, reason string) {
	m.TurnDecisions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordInterruption records one arbitrated interruption attempt.
func (m *Metrics) RecordInterruption(ctx context.Context, allow bool, reason string) {
	m.Interruptions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("allow", strconv.FormatBool(allow)),
			attribute.String("reason", reason),
		),
	)
}

// RecordSignalDropped records one signal discarded by the mute gate.
func (m *Metrics) RecordSignalDropped(ctx context.Context, kind string) {
	m.SignalsDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordTurnDuration records the length of a completed user turn in seconds.
func (m *Metrics) RecordTurnDuration(ctx context.Context, seconds float64) {
	m.TurnDuration.Record(ctx, seconds)
}

// RecordEvalLatency records the end-of-turn evaluation latency in seconds.
func (m *Metrics) RecordEvalLatency(ctx context.Context, seconds float64) {
	m.EvalLatency.Record(ctx, seconds)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
