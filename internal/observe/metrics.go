// Package observe provides application-wide observability primitives for
// voicenote: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all voicenote metrics.
const meterName = "github.com/MrWong99/voicenote"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// --- Ingestion ---

	// FramesIngested counts analysis frames accepted into a recording.
	FramesIngested metric.Int64Counter

	// OnsetsIngested counts onsets accepted into a recording.
	OnsetsIngested metric.Int64Counter

	// InputDropped counts front-end events discarded before reaching the
	// session loop. Use with attribute:
	//   attribute.String("kind", "frame"|"onset"|"samples")
	InputDropped metric.Int64Counter

	// --- Segmentation ---

	// SegmentationDuration tracks the time spent turning a recording into a
	// segment at stop.
	SegmentationDuration metric.Float64Histogram

	// FramesDenoised counts frames zeroed by the denoiser. Use with attribute:
	//   attribute.String("reason", "silence"|"jump")
	FramesDenoised metric.Int64Counter

	// SoundObjects counts onsets by extraction outcome. Use with attribute:
	//   attribute.String("result", "accepted"|"unpitched"|"too_short"|"overlapping")
	SoundObjects metric.Int64Counter

	// --- Playback ---

	// NotesDispatched counts note messages sent to sinks. Use with attributes:
	//   attribute.String("kind", "on"|"off"), attribute.String("mode", ...)
	NotesDispatched metric.Int64Counter

	// SinkErrors counts failed sink writes. Use with attribute:
	//   attribute.String("sink", ...)
	SinkErrors metric.Int64Counter

	// PlaybackCancels counts playbacks cancelled before finishing.
	PlaybackCancels metric.Int64Counter

	// PlaybackLoops counts completed passes of looping playbacks. Use with
	// attribute:
	//   attribute.String("mode", "live"|"precomputed")
	PlaybackLoops metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings is 1 while a recording window is open.
	ActiveRecordings metric.Int64UpDownCounter

	// ActivePlaybacks is 1 while the scheduler is dispatching.
	ActivePlaybacks metric.Int64UpDownCounter

	// ConnectedClients tracks websocket clients by endpoint. Use with attribute:
	//   attribute.String("endpoint", "ingest"|"notes")
	ConnectedClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// segmentation, which runs once per take over a few hundred frames.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FramesIngested, err = m.Int64Counter("voicenote.frames.ingested",
		metric.WithDescription("Total analysis frames accepted into a recording."),
	); err != nil {
		return nil, err
	}
	if met.OnsetsIngested, err = m.Int64Counter("voicenote.onsets.ingested",
		metric.WithDescription("Total onsets accepted into a recording."),
	); err != nil {
		return nil, err
	}
	if met.InputDropped, err = m.Int64Counter("voicenote.input.dropped",
		metric.WithDescription("Front-end events dropped because the session queue was full or closed."),
	); err != nil {
		return nil, err
	}
	if met.FramesDenoised, err = m.Int64Counter("voicenote.frames.denoised",
		metric.WithDescription("Frames zeroed by the pitch denoiser by reason."),
	); err != nil {
		return nil, err
	}
	if met.SoundObjects, err = m.Int64Counter("voicenote.sound_objects",
		metric.WithDescription("Onsets by sound-object extraction result."),
	); err != nil {
		return nil, err
	}
	if met.NotesDispatched, err = m.Int64Counter("voicenote.notes.dispatched",
		metric.WithDescription("Note messages dispatched to sinks by kind and scheduling mode."),
	); err != nil {
		return nil, err
	}
	if met.SinkErrors, err = m.Int64Counter("voicenote.sink.errors",
		metric.WithDescription("Failed note sink writes by sink."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackCancels, err = m.Int64Counter("voicenote.playback.cancels",
		metric.WithDescription("Playbacks cancelled before reaching the end of the take."),
	); err != nil {
		return nil, err
	}

	if met.PlaybackLoops, err = m.Int64Counter("voicenote.playback.loops",
		metric.WithDescription("Completed passes of looping playbacks by scheduling mode."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.SegmentationDuration, err = m.Float64Histogram("voicenote.segmentation.duration",
		metric.WithDescription("Latency of segmenting one recording."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRecordings, err = m.Int64UpDownCounter("voicenote.active_recordings",
		metric.WithDescription("Number of open recording windows."),
	); err != nil {
		return nil, err
	}
	if met.ActivePlaybacks, err = m.Int64UpDownCounter("voicenote.active_playbacks",
		metric.WithDescription("Number of takes currently being dispatched."),
	); err != nil {
		return nil, err
	}
	if met.ConnectedClients, err = m.Int64UpDownCounter("voicenote.connected_clients",
		metric.WithDescription("Number of connected websocket clients by endpoint."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicenote.http.request.duration",
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

// RecordInputDropped records one dropped front-end event of the given kind.
func (m *Metrics) RecordInputDropped(ctx context.Context, kind string) {
	m.InputDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordDenoise records the frames zeroed by the denoiser for one take.
func (m *Metrics) RecordDenoise(ctx context.Context, silent, jumps int) {
	m.FramesDenoised.Add(ctx, int64(silent), metric.WithAttributes(attribute.String("reason", "silence")))
	m.FramesDenoised.Add(ctx, int64(jumps), metric.WithAttributes(attribute.String("reason", "jump")))
}

// RecordSoundObjects records n onsets with the given extraction result.
// Zero counts are skipped.
func (m *Metrics) RecordSoundObjects(ctx context.Context, result string, n int) {
	if n == 0 {
		return
	}
	m.SoundObjects.Add(ctx, int64(n), metric.WithAttributes(attribute.String("result", result)))
}

// RecordNote records one note message sent to the sinks.
func (m *Metrics) RecordNote(ctx context.Context, kind, mode string) {
	m.NotesDispatched.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("mode", mode),
		),
	)
}

// RecordLoop records one completed pass of a looping playback.
func (m *Metrics) RecordLoop(ctx context.Context, mode string) {
	m.PlaybackLoops.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordSinkError records one failed write to the named sink.
func (m *Metrics) RecordSinkError(ctx context.Context, sink string) {
	m.SinkErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}
