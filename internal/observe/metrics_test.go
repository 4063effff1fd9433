package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestSegmentationDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SegmentationDuration.Record(ctx, 0.002)
	m.SegmentationDuration.Record(ctx, 0.004)

	rm := collect(t, reader)
	met := findMetric(rm, "voicenote.segmentation.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("sample count = %d, want 2", got)
	}
}

// sumFor returns the value of the data point of the named int64 sum that
// carries key=value, failing the test if none does.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestCounterIncrement(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	attrs := metric.WithAttributes(
		attribute.String("kind", "on"),
		attribute.String("mode", "live"),
	)
	m.NotesDispatched.Add(ctx, 1, attrs)
	m.RecordNote(ctx, "on", "live")
	m.RecordNote(ctx, "off", "live")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "voicenote.notes.dispatched", "kind", "on"); got != 2 {
		t.Errorf("note on count = %d, want 2", got)
	}
	if got := sumFor(t, rm, "voicenote.notes.dispatched", "kind", "off"); got != 1 {
		t.Errorf("note off count = %d, want 1", got)
	}
}

func TestRecordDenoise(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDenoise(ctx, 12, 3)
	m.RecordDenoise(ctx, 1, 0)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "voicenote.frames.denoised", "reason", "silence"); got != 13 {
		t.Errorf("silence = %d, want 13", got)
	}
	if got := sumFor(t, rm, "voicenote.frames.denoised", "reason", "jump"); got != 3 {
		t.Errorf("jump = %d, want 3", got)
	}
}

func TestRecordSoundObjects_SkipsZero(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSoundObjects(ctx, "accepted", 4)
	m.RecordSoundObjects(ctx, "too_short", 0)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "voicenote.sound_objects", "result", "accepted"); got != 4 {
		t.Errorf("accepted = %d, want 4", got)
	}
	met := findMetric(rm, "voicenote.sound_objects")
	if sum := met.Data.(metricdata.Sum[int64]); len(sum.DataPoints) != 1 {
		t.Errorf("data points = %d, want 1", len(sum.DataPoints))
	}
}

func TestInputDroppedAndSinkErrors(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordInputDropped(ctx, "frame")
	m.RecordInputDropped(ctx, "frame")
	m.RecordSinkError(ctx, "midi")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "voicenote.input.dropped", "kind", "frame"); got != 2 {
		t.Errorf("dropped frames = %d, want 2", got)
	}
	if got := sumFor(t, rm, "voicenote.sink.errors", "sink", "midi"); got != 1 {
		t.Errorf("midi errors = %d, want 1", got)
	}
}

func TestRecordLoop(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLoop(ctx, "precomputed")
	m.RecordLoop(ctx, "precomputed")
	m.RecordLoop(ctx, "live")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "voicenote.playback.loops", "mode", "precomputed"); got != 2 {
		t.Errorf("precomputed passes = %d, want 2", got)
	}
	if got := sumFor(t, rm, "voicenote.playback.loops", "mode", "live"); got != 1 {
		t.Errorf("live passes = %d, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveRecordings.Add(ctx, 1)
	m.ActivePlaybacks.Add(ctx, 1)
	m.ActivePlaybacks.Add(ctx, -1)
	m.ActivePlaybacks.Add(ctx, 1)
	m.ConnectedClients.Add(ctx, 3)

	rm := collect(t, reader)

	gauges := []struct {
		name string
		want int64
	}{
		{"voicenote.active_recordings", 1},
		{"voicenote.active_playbacks", 1},
		{"voicenote.connected_clients", 3},
	}

	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("gauge value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "voicenote.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
