package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span and log attribute keys shared by the recording pipeline.
const (
	KeySessionID = "session_id"
	KeyFrames    = "frames"
	KeyOnsets    = "onsets"
)

// SpanSegment is the span covering the segmentation of one take.
const SpanSegment = "session.segment"

// StartSpan starts a span on the global tracer provider under the voicenote
// scope. The caller must call span.End.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(meterName).Start(ctx, name, opts...)
}

// TakeStats describes the input of one take for [StartTakeSpan].
type TakeStats struct {
	SessionID string
	Frames    int
	Onsets    int
}

// StartTakeSpan opens the [SpanSegment] span for a take and binds the
// session ID to the returned context, so [Logger] tags every line logged
// under it.
func StartTakeSpan(ctx context.Context, take TakeStats) (context.Context, trace.Span) {
	ctx = WithSession(ctx, take.SessionID)
	return StartSpan(ctx, SpanSegment, trace.WithAttributes(
		attribute.String(KeySessionID, take.SessionID),
		attribute.Int(KeyFrames, take.Frames),
		attribute.Int(KeyOnsets, take.Onsets),
	))
}

// Fail marks span as failed with err. A nil err is ignored.
func Fail(span trace.Span, err error, msg string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying the recording session ID.
func WithSession(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the session ID bound by [WithSession], or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// CorrelationID is the trace ID of the span in ctx, or "" without one. The
// HTTP middleware echoes it as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger tagged with the session ID and the
// trace and span IDs found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if id := SessionID(ctx); id != "" {
		attrs = append(attrs, slog.String(KeySessionID, id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
