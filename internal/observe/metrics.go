// Package observe provides application-wide observability primitives for
// Dost: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all Dost metrics.
const meterName = "github.com/MrWong99/dost"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// GenerateDuration tracks structured generation latency. Use with
	// attribute.String("operation", ...).
	GenerateDuration metric.Float64Histogram

	// ChatDuration tracks the latency of one chat reply, including fallbacks.
	ChatDuration metric.Float64Histogram

	// VoiceConnectDuration tracks how long voice session acquisition takes.
	VoiceConnectDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// MalformedResponses counts generation responses that failed to parse
	// and were replaced by a default. Use with attribute.String("operation", ...).
	MalformedResponses metric.Int64Counter

	// ChatFallbacks counts chat replies served by something other than the
	// primary responder, including the fixed apology turn.
	ChatFallbacks metric.Int64Counter

	// ModerationRejections counts community posts blocked by moderation.
	ModerationRejections metric.Int64Counter

	// AudioFramesSent counts microphone frames streamed to the live agent.
	AudioFramesSent metric.Int64Counter

	// AudioFramesReceived counts inline audio parts received from the agent.
	AudioFramesReceived metric.Int64Counter

	// BuffersScheduled counts decoded buffers queued for playback.
	BuffersScheduled metric.Int64Counter

	// --- Gauges ---

	// ActiveVoiceSessions tracks the number of live voice sessions.
	ActiveVoiceSessions metric.Int64UpDownCounter

	// ActiveChatSessions tracks the number of open text chat sessions.
	ActiveChatSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// model round-trips, which range from sub-second to tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.GenerateDuration, "dost.generate.duration", "Latency of structured generation calls."},
		{&met.ChatDuration, "dost.chat.duration", "Latency of one chat reply including fallbacks."},
		{&met.VoiceConnectDuration, "dost.voice.connect.duration", "Time to acquire microphone, speaker and agent connection."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "dost.provider.requests", "Total provider API requests by provider, kind, and status."},
		{&met.ProviderErrors, "dost.provider.errors", "Total provider errors by provider and kind."},
		{&met.MalformedResponses, "dost.generate.malformed", "Generation responses replaced by a default value."},
		{&met.ChatFallbacks, "dost.chat.fallbacks", "Chat replies not served by the primary responder."},
		{&met.ModerationRejections, "dost.community.rejections", "Community posts blocked by moderation."},
		{&met.AudioFramesSent, "dost.voice.frames.sent", "Microphone frames streamed to the live agent."},
		{&met.AudioFramesReceived, "dost.voice.frames.received", "Inline audio parts received from the live agent."},
		{&met.BuffersScheduled, "dost.voice.buffers.scheduled", "Decoded buffers queued for playback."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveVoiceSessions, err = m.Int64UpDownCounter("dost.voice.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveChatSessions, err = m.Int64UpDownCounter("dost.chat.active_sessions",
		metric.WithDescription("Number of open text chat sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("dost.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
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

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordMalformed records that operation fell back to its default value.
func (m *Metrics) RecordMalformed(ctx context.Context, operation string) {
	m.MalformedResponses.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordChatFallback records a chat reply served by responder instead of the
// primary one.
func (m *Metrics) RecordChatFallback(ctx context.Context, responder string) {
	m.ChatFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("responder", responder)))
}
