// Package tracer records the trace of an invocation as a tree of segments.
//
// The active segment travels in the context.Context, so concurrent
// invocations never see each other's cursor. A root segment is exported,
// with its whole subtree, when it closes.
package tracer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"powertools/invocation"

	"go.uber.org/zap"
)

// SegmentPrefix is prepended to the names of segments opened by WithSegment.
const SegmentPrefix = "## "

// Tracer opens segments and exports completed trees.
type Tracer struct {
	exporter  Exporter
	service   string
	namespace string
	disabled  bool
	diag      *zap.Logger
	now       func() time.Time

	exported atomic.Int64
	failures atomic.Int64
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithService sets the service name used for the Service annotation and as
// the default metadata namespace.
func WithService(service string) Option {
	return func(t *Tracer) { t.service = service }
}

// WithNamespace sets the namespace metadata is recorded under.
func WithNamespace(namespace string) Option {
	return func(t *Tracer) { t.namespace = namespace }
}

// WithDisabled turns every operation into a no-op.
func WithDisabled(disabled bool) Option {
	return func(t *Tracer) { t.disabled = disabled }
}

// WithDiagnostics sets the logger used for the tracer's own warnings.
func WithDiagnostics(diag *zap.Logger) Option {
	return func(t *Tracer) {
		if diag != nil {
			t.diag = diag
		}
	}
}

// New creates a Tracer exporting to exporter. A nil exporter discards trees.
func New(exporter Exporter, opts ...Option) *Tracer {
	t := &Tracer{
		exporter: exporter,
		diag:     zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.exporter == nil {
		t.exporter = NopExporter{}
	}
	if t.namespace == "" {
		t.namespace = t.service
	}
	return t
}

// Service returns the configured service name.
func (t *Tracer) Service() string { return t.service }

// Namespace returns the metadata namespace.
func (t *Tracer) Namespace() string { return t.namespace }

// Disabled reports whether tracing is turned off.
func (t *Tracer) Disabled() bool { return t.disabled }

// Exported returns the number of trees handed to the exporter successfully.
func (t *Tracer) Exported() int64 { return t.exported.Load() }

// Failures returns the number of trees the exporter rejected.
func (t *Tracer) Failures() int64 { return t.failures.Load() }

// Begin opens a segment named name as a child of the active segment of ctx,
// or as a new root when there is none, and returns a context in which it is
// the active segment. The caller must Close it.
func (t *Tracer) Begin(ctx context.Context, name string) (context.Context, *Segment) {
	if t.disabled {
		return ctx, nil
	}

	parent := Active(ctx)
	if parent != nil && parent.tr.tracer != t {
		parent = nil
	}

	if parent != nil {
		parent.tr.mu.Lock()
		if parent.state != StateClosed {
			seg := newSegment(parent.tr, parent, name, t.namespace)
			parent.children = append(parent.children, seg)
			seg.open(t.now())
			parent.tr.mu.Unlock()
			return context.WithValue(ctx, activeKey{}, seg), seg
		}
		parent.tr.mu.Unlock()
		t.diag.Warn("parent segment already closed, starting a detached segment",
			zap.String("segment", name), zap.String("parent", parent.name))
	}

	tr := &trace{tracer: t}
	switch {
	case parent != nil:
		// Work that outlives its parent is exported on its own, linked to
		// the closed parent.
		tr.traceID = parent.tr.traceID
		tr.parentID = parent.id
		tr.sampled = parent.tr.sampled
	default:
		if inv, ok := invocation.FromContext(ctx); ok && inv.TraceID != "" {
			tr.traceID = inv.TraceID
			tr.parentID = inv.ParentID
			tr.sampled = inv.TraceSampled
		} else {
			tr.traceID = newTraceID(t.now())
			tr.sampled = true
		}
	}

	seg := newSegment(tr, nil, name, t.namespace)
	tr.mu.Lock()
	seg.open(t.now())
	tr.mu.Unlock()

	return context.WithValue(ctx, activeKey{}, seg), seg
}

// WithSegment runs body inside a new segment named "## "+name. The segment
// is closed on every exit path: with body's error, or with the FAULT status
// when body panics, in which case the panic continues.
func (t *Tracer) WithSegment(ctx context.Context, name string, body func(ctx context.Context) error) (err error) {
	ctx, seg := t.Begin(ctx, SegmentPrefix+name)
	defer func() {
		if r := recover(); r != nil {
			seg.Fault(fmt.Errorf("panic: %v", r))
			panic(r)
		}
		seg.Close(err)
	}()
	return body(ctx)
}

// PutAnnotation annotates the active segment of ctx. Without an active
// segment it logs a warning and does nothing.
func (t *Tracer) PutAnnotation(ctx context.Context, key string, value any) {
	if t.disabled {
		return
	}
	seg := Active(ctx)
	if seg == nil {
		t.diag.Warn("no active segment, ignoring annotation", zap.String("key", key))
		return
	}
	seg.PutAnnotation(key, value)
}

// PutMetadata adds metadata to the active segment of ctx. Without an active
// segment it logs a warning and does nothing.
func (t *Tracer) PutMetadata(ctx context.Context, key string, value any) {
	if t.disabled {
		return
	}
	seg := Active(ctx)
	if seg == nil {
		t.diag.Warn("no active segment, ignoring metadata", zap.String("key", key))
		return
	}
	seg.PutMetadata(key, value)
}

// Flush flushes the exporter when it buffers.
func (t *Tracer) Flush(ctx context.Context) error {
	if f, ok := t.exporter.(interface{ Flush(context.Context) error }); ok {
		return f.Flush(ctx)
	}
	return nil
}

func (t *Tracer) export(root *SegmentData) {
	defer func() {
		if r := recover(); r != nil {
			t.failures.Add(1)
			t.diag.Warn("trace exporter panicked", zap.Any("panic", r))
		}
	}()

	if err := t.exporter.Export(context.Background(), root); err != nil {
		t.failures.Add(1)
		t.diag.Debug("trace export failed", zap.String("trace_id", root.TraceID), zap.Error(err))
		return
	}
	t.exported.Add(1)
}

type activeKey struct{}

// Active returns the active segment of ctx, or nil.
func Active(ctx context.Context) *Segment {
	seg, _ := ctx.Value(activeKey{}).(*Segment)
	return seg
}
