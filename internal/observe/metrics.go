// Package observe provides process-wide observability primitives for the
// voice agent orchestration core: OpenTelemetry metrics, distributed
// tracing, and structured logging helpers that tie them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can still be
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

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/voiceagentcore"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks handleUtterance latency, start to published
	// reply. Use with attribute.String("path", "fast"|"memory"|"fallback").
	TurnDuration metric.Float64Histogram

	// MemoryCallDuration tracks memory.Client call latency. Use with
	// attribute.String("operation", "probe"|"get_agent"|"ask"|"append").
	MemoryCallDuration metric.Float64Histogram

	// LLMCallDuration tracks the fast path's StreamCompletion latency.
	LLMCallDuration metric.Float64Histogram

	// HTTPRequestDuration tracks the admin/health HTTP surface's request
	// latency. Use with attributes: attribute.String("method", ...),
	// attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// DispatchOutcomes counts Dispatch Gate decisions. Use with
	// attribute.String("outcome", "accepted"|"rejected_duplicate"|"rejected_wrong_agent").
	DispatchOutcomes metric.Int64Counter

	// TurnsProcessed counts completed turns. Use with attributes:
	// attribute.String("path", "fast"|"memory"|"fallback"), attribute.Bool("validated", ...).
	TurnsProcessed metric.Int64Counter

	// SyncAppends counts Background Sync Worker append attempts. Use
	// with attribute.String("status", "ok"|"error"|"dropped").
	SyncAppends metric.Int64Counter

	// BreakerTrips counts a breaker transitioning into OPEN. Use with
	// attribute.String("breaker", ...).
	BreakerTrips metric.Int64Counter

	// --- Gauges (modeled as UpDownCounters, per OTel convention) ---

	// ActiveSessions tracks the number of sessions currently being served.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveParticipants tracks the number of connected participants
	// across all sessions.
	ActiveParticipants metric.Int64UpDownCounter

	// SyncQueueDepth tracks the number of turns queued for background
	// sync, summed across all sessions' workers.
	SyncQueueDepth metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds),
// spanning the fast path's sub-second target up through the reliability
// envelope's worst-case ~36s (perAttemptTimeout × attempts + backoff).
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("voiceagentcore.turn.duration",
		metric.WithDescription("Latency of handleUtterance, start to published reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MemoryCallDuration, err = m.Float64Histogram("voiceagentcore.memory.call.duration",
		metric.WithDescription("Latency of memory.Client calls, by operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMCallDuration, err = m.Float64Histogram("voiceagentcore.llm.call.duration",
		metric.WithDescription("Latency of the fast path's StreamCompletion call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voiceagentcore.http.request.duration",
		metric.WithDescription("Admin/health HTTP surface request latency."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.DispatchOutcomes, err = m.Int64Counter("voiceagentcore.dispatch.outcomes",
		metric.WithDescription("Total Dispatch Gate decisions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.TurnsProcessed, err = m.Int64Counter("voiceagentcore.turn.count",
		metric.WithDescription("Total turns processed by generation path and validation result."),
	); err != nil {
		return nil, err
	}
	if met.SyncAppends, err = m.Int64Counter("voiceagentcore.sync.appends",
		metric.WithDescription("Total Background Sync Worker append attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTrips, err = m.Int64Counter("voiceagentcore.breaker.trips",
		metric.WithDescription("Total times a circuit breaker opened, by breaker name."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voiceagentcore.active_sessions",
		metric.WithDescription("Number of sessions currently being served."),
	); err != nil {
		return nil, err
	}
	if met.ActiveParticipants, err = m.Int64UpDownCounter("voiceagentcore.active_participants",
		metric.WithDescription("Number of connected participants across all sessions."),
	); err != nil {
		return nil, err
	}
	if met.SyncQueueDepth, err = m.Int64UpDownCounter("voiceagentcore.sync.queue_depth",
		metric.WithDescription("Turns queued for background sync, summed across all sessions."),
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

// RecordTurn records one completed turn's duration and outcome.
func (m *Metrics) RecordTurn(ctx context.Context, path string, validated bool, seconds float64) {
	m.TurnDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("path", path)))
	m.TurnsProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path", path),
		attribute.Bool("validated", validated),
	))
}

// RecordDispatchOutcome records one Dispatch Gate decision.
func (m *Metrics) RecordDispatchOutcome(ctx context.Context, outcome string) {
	m.DispatchOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordMemoryCall records one memory.Client call's latency.
func (m *Metrics) RecordMemoryCall(ctx context.Context, operation string, seconds float64) {
	m.MemoryCallDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordSyncAppend records one Background Sync Worker append attempt.
func (m *Metrics) RecordSyncAppend(ctx context.Context, status string) {
	m.SyncAppends.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordBreakerTrip records a circuit breaker opening.
func (m *Metrics) RecordBreakerTrip(ctx context.Context, breaker string) {
	m.BreakerTrips.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", breaker)))
}
