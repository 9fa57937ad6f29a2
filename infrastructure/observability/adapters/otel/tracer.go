package otel

import (
	"context"
	"fmt"
	"strings"

	"powertools/tracer"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer and meter of the bridge.
const InstrumentationName = "powertools"

// TraceExporter replays every closed segment tree as a tree of spans with
// the recorded start and end times.
type TraceExporter struct {
	tracer  trace.Tracer
	flusher Flusher
}

// Flusher is implemented by providers that buffer, such as the SDK
// tracer provider.
type Flusher interface {
	ForceFlush(ctx context.Context) error
}

// NewTraceExporter creates an exporter starting spans on provider.
func NewTraceExporter(provider trace.TracerProvider) *TraceExporter {
	e := &TraceExporter{tracer: provider.Tracer(InstrumentationName)}
	if f, ok := provider.(Flusher); ok {
		e.flusher = f
	}
	return e
}

// Flush forces the provider to export buffered spans.
func (e *TraceExporter) Flush(ctx context.Context) error {
	if e.flusher == nil {
		return nil
	}
	return e.flusher.ForceFlush(ctx)
}

// Export replays root. When root continues an X-Ray trace, the spans join
// it: the trace id is converted and the caller's segment becomes the
// remote parent.
func (e *TraceExporter) Export(ctx context.Context, root *tracer.SegmentData) error {
	if parent, ok := remoteParent(root); ok {
		ctx = trace.ContextWithRemoteSpanContext(ctx, parent)
	}
	e.replay(ctx, root)
	return nil
}

func (e *TraceExporter) replay(ctx context.Context, seg *tracer.SegmentData) {
	ctx, span := e.tracer.Start(ctx, seg.Name,
		trace.WithTimestamp(seg.Start),
		trace.WithAttributes(segmentAttributes(seg)...),
	)

	switch seg.Status {
	case tracer.StatusError, tracer.StatusFault:
		msg := seg.Status.String()
		if seg.Error != nil {
			msg = seg.Error.Message
			span.AddEvent("exception", trace.WithTimestamp(seg.End), trace.WithAttributes(
				attribute.String("exception.message", seg.Error.Message),
				attribute.String("exception.type", seg.Error.Type),
			))
		}
		span.SetStatus(codes.Error, msg)
	default:
		span.SetStatus(codes.Ok, "")
	}

	for _, child := range seg.Children {
		e.replay(ctx, child)
	}
	span.End(trace.WithTimestamp(seg.End))
}

func segmentAttributes(seg *tracer.SegmentData) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("segment.id", seg.ID),
		attribute.String("segment.status", seg.Status.String()),
	}
	if seg.TimedOut {
		attrs = append(attrs, attribute.Bool("segment.timed_out", true))
	}
	for k, v := range seg.Annotations {
		attrs = append(attrs, annotation("annotation."+k, v))
	}
	for ns, values := range seg.Metadata {
		for k, v := range values {
			attrs = append(attrs, attribute.String("metadata."+ns+"."+k, fmt.Sprint(v)))
		}
	}
	return attrs
}

func annotation(key string, v any) attribute.KeyValue {
	switch v := v.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

// remoteParent converts an X-Ray trace id (1-5759e988-bd862e3fe1be46a994272793)
// and parent segment id into an OTel span context.
func remoteParent(root *tracer.SegmentData) (trace.SpanContext, bool) {
	if root.TraceID == "" || root.ParentID == "" {
		return trace.SpanContext{}, false
	}
	parts := strings.Split(root.TraceID, "-")
	if len(parts) != 3 {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(parts[1] + parts[2])
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanID, err := trace.SpanIDFromHex(root.ParentID)
	if err != nil {
		return trace.SpanContext{}, false
	}

	var flags trace.TraceFlags
	if root.Sampled {
		flags = trace.FlagsSampled
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	})
	return sc, sc.IsValid()
}
