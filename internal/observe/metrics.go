// Package observe provides application-wide observability primitives for
// voicewire: OpenTelemetry metrics, tracing, and provider initialisation.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via a standard /metrics endpoint. A package-level default
// [Metrics] instance ([Default]) is provided for convenience; tests should
// use [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voicewire metrics.
const meterName = "github.com/voicewire/voicewire"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// CallDuration tracks completed call length in seconds.
	CallDuration metric.Float64Histogram

	// CallSetupDuration tracks time from StartCall to Active.
	CallSetupDuration metric.Float64Histogram

	// --- Counters ---

	// FramesSent counts capture frames delivered to the transport.
	FramesSent metric.Int64Counter

	// FramesMuted counts capture frames discarded by the mute gate.
	FramesMuted metric.Int64Counter

	// ChunksScheduled counts inbound speech chunks handed to the scheduler.
	ChunksScheduled metric.Int64Counter

	// PlaybackFlushes counts barge-in flushes of the playback schedule.
	PlaybackFlushes metric.Int64Counter

	// TransportErrors counts fatal channel failures. Use with attribute:
	//   attribute.String("stage", ...)
	TransportErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of live calls.
	ActiveCalls metric.Int64UpDownCounter
}

// callDurationBuckets defines histogram bucket boundaries (in seconds) for
// whole-call lengths.
var callDurationBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600,
}

// setupBuckets defines histogram bucket boundaries (in seconds) for call
// setup latency.
var setupBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CallDuration, err = m.Float64Histogram("voicewire.call.duration",
		metric.WithDescription("Length of completed calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callDurationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CallSetupDuration, err = m.Float64Histogram("voicewire.call.setup.duration",
		metric.WithDescription("Time from StartCall to the Active state."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(setupBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("voicewire.capture.frames.sent",
		metric.WithDescription("Capture frames delivered to the transport."),
	); err != nil {
		return nil, err
	}
	if met.FramesMuted, err = m.Int64Counter("voicewire.capture.frames.muted",
		metric.WithDescription("Capture frames discarded by the mute gate."),
	); err != nil {
		return nil, err
	}
	if met.ChunksScheduled, err = m.Int64Counter("voicewire.playback.chunks.scheduled",
		metric.WithDescription("Inbound speech chunks handed to the playback scheduler."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackFlushes, err = m.Int64Counter("voicewire.playback.flushes",
		metric.WithDescription("Barge-in flushes of the playback schedule."),
	); err != nil {
		return nil, err
	}
	if met.TransportErrors, err = m.Int64Counter("voicewire.transport.errors",
		metric.WithDescription("Fatal agent channel failures."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCalls, err = m.Int64UpDownCounter("voicewire.calls.active",
		metric.WithDescription("Number of live calls."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the package-level [Metrics] instance, creating it on first
// use from the global MeterProvider.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
