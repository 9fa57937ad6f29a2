package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"powertools/invocation"
	"powertools/logger"
	"powertools/metrics"
	"powertools/tracer"

	"go.uber.org/zap"
)

// Interceptor names.
const (
	LoggingInterceptorName = "logging"
	TracingInterceptorName = "tracing"
	MetricsInterceptorName = "metrics"
)

// Root segment annotations.
const (
	AnnotationColdStart = "ColdStart"
	AnnotationService   = "Service"
)

// CaptureFailedMarker prefixes the value recorded instead of a response
// that could not be serialized.
const CaptureFailedMarker = "[capture failed] "

// LoggingInterceptor opens a logging scope for every invocation and logs
// how the invocation ended.
func LoggingInterceptor(l *logger.Logger) Interceptor {
	return InterceptorFunc(LoggingInterceptorName, func(ctx context.Context, inv *invocation.Invocation, req Request) (context.Context, Closer, error) {
		ctx, scope := l.OpenScope(ctx, inv, req.Payload)
		return ctx, CloserFunc(func(_ context.Context, out Outcome) error {
			switch {
			case out.TimedOut:
				scope.Warn("Invocation timed out before the handler returned",
					zap.Duration("remaining", inv.RemainingTime()))
			case out.Panic != nil:
				scope.Error("Invocation panicked", zap.Any("panic", out.Panic))
			case out.Err != nil:
				scope.Error("Invocation failed", zap.Error(out.Err))
			}
			scope.Close()
			return nil
		}), nil
	})
}

// TracingInterceptor opens the root segment "## <name>" of every invocation.
// The segment is annotated with ColdStart and Service, and records the
// response or the error as mode allows.
func TracingInterceptor(t *tracer.Tracer, name string, mode tracer.CaptureMode) Interceptor {
	return InterceptorFunc(TracingInterceptorName, func(ctx context.Context, inv *invocation.Invocation, _ Request) (context.Context, Closer, error) {
		ctx, seg := t.Begin(ctx, tracer.SegmentPrefix+name)
		if seg == nil {
			return ctx, CloserFunc(func(context.Context, Outcome) error { return nil }), nil
		}
		seg.PutAnnotation(AnnotationColdStart, inv.ColdStart)
		if t.Service() != "" {
			seg.PutAnnotation(AnnotationService, t.Service())
		}

		return ctx, CloserFunc(func(_ context.Context, out Outcome) error {
			closeRootSegment(seg, name, mode, out)
			return nil
		}), nil
	})
}

func closeRootSegment(seg *tracer.Segment, name string, mode tracer.CaptureMode, out Outcome) {
	switch {
	case out.TimedOut:
		seg.Timeout()

	case out.Panic != nil:
		err := fmt.Errorf("panic: %v", out.Panic)
		if !mode.CapturesError() {
			seg.CloseWithStatus(tracer.StatusFault)
			return
		}
		seg.PutMetadata(name+" error", err.Error())
		seg.Fault(err)

	case out.Err != nil:
		status := tracer.StatusError
		var panicErr *PanicError
		if errors.As(out.Err, &panicErr) {
			status = tracer.StatusFault
		}
		if !mode.CapturesError() {
			seg.CloseWithStatus(status)
			return
		}
		seg.PutMetadata(name+" error", out.Err.Error())
		if status == tracer.StatusFault {
			seg.Fault(out.Err)
		} else {
			seg.Close(out.Err)
		}

	default:
		if mode.CapturesResponse() {
			captured, err := captureJSON(out.Response)
			if err != nil {
				marker := CaptureFailedMarker + err.Error()
				seg.SetOutput(marker)
				seg.PutMetadata(name+" response", marker)
			} else {
				seg.SetOutput(captured)
				seg.PutMetadata(name+" response", captured)
			}
		}
		seg.Close(nil)
	}
}

// captureJSON serializes v once so that later changes to the response do
// not reach the exported segment.
func captureJSON(v any) (raw json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("marshal panicked: %v", r)
		}
	}()
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// MetricsInterceptor opens the metric batch of every invocation and
// flushes it when the invocation ends, whatever the outcome.
func MetricsInterceptor(e *metrics.Emitter) Interceptor {
	return InterceptorFunc(MetricsInterceptorName, func(ctx context.Context, inv *invocation.Invocation, _ Request) (context.Context, Closer, error) {
		ctx, scope := e.OpenScope(ctx, inv)
		return ctx, CloserFunc(func(ctx context.Context, _ Outcome) error {
			return scope.Flush(ctx)
		}), nil
	})
}
