// Package metrics accumulates the metrics of an invocation and flushes them
// as CloudWatch-style records with named dimension sets.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"powertools/invocation"

	"go.uber.org/zap"
)

// Names used by the emitter itself.
const (
	ColdStartMetric      = "ColdStart"
	ServiceDimension     = "Service"
	FunctionNameProperty = "function_name"
	RequestIDProperty    = "function_request_id"
	TraceIDProperty      = "xray_trace_id"
)

// Config holds the metrics options of a chain.
type Config struct {
	Namespace string
	Service   string
	// CaptureColdStart adds a ColdStart metric to the batch of the first
	// invocation of the process.
	CaptureColdStart bool
	// RaiseOnEmptyMetrics makes Flush return ErrNoMetrics when nothing was
	// recorded, instead of only warning.
	RaiseOnEmptyMetrics bool
	// Disabled drops every record.
	Disabled bool
	// DefaultDimensions are added to the Service dimension of every batch.
	DefaultDimensions DimensionSet
}

// Emitter is the process-wide side of metrics: configuration, default
// dimensions and the sink.
type Emitter struct {
	cfg  Config
	sink Sink
	diag *zap.Logger

	mu       sync.RWMutex
	defaults DimensionSet

	exported atomic.Int64
	failures atomic.Int64
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithDiagnostics sets the logger used for the emitter's own warnings.
func WithDiagnostics(diag *zap.Logger) Option {
	return func(e *Emitter) {
		if diag != nil {
			e.diag = diag
		}
	}
}

// NewEmitter validates cfg and creates an Emitter writing to sink.
func NewEmitter(cfg Config, sink Sink, opts ...Option) (*Emitter, error) {
	if err := ValidateNamespace(cfg.Namespace); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Service) == "" {
		return nil, fmt.Errorf("%w: service is required", ErrInvalidService)
	}
	if sink == nil {
		return nil, fmt.Errorf("metrics: sink is required")
	}

	defaults, err := NewDimensionSet(ServiceDimension, cfg.Service)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidService, err)
	}

	e := &Emitter{
		cfg:      cfg,
		sink:     sink,
		diag:     zap.NewNop(),
		defaults: defaults.Merge(cfg.DefaultDimensions),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the options the Emitter was built with.
func (e *Emitter) Config() Config {
	return e.cfg
}

// SetDefaultDimensions replaces the dimensions added to every batch. The
// Service dimension is always kept.
func (e *Emitter) SetDefaultDimensions(d DimensionSet) {
	base := MustDimensionSet(ServiceDimension, e.cfg.Service)
	e.mu.Lock()
	e.defaults = base.Merge(d)
	e.mu.Unlock()
}

// DefaultDimensions returns the dimensions added to every batch.
func (e *Emitter) DefaultDimensions() DimensionSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.defaults.clone()
}

// Exported returns the number of records the sink accepted.
func (e *Emitter) Exported() int64 { return e.exported.Load() }

// Failures returns the number of records the sink rejected.
func (e *Emitter) Failures() int64 { return e.failures.Load() }

// OpenScope starts the batch of one invocation. When configured, the
// ColdStart metric is added right away so it is flushed even if the
// handler fails.
func (e *Emitter) OpenScope(ctx context.Context, inv *invocation.Invocation) (context.Context, *Scope) {
	s := e.newScope(e.cfg.Namespace, []DimensionSet{e.DefaultDimensions()})
	if inv != nil {
		s.setInvocation(inv)
		if e.cfg.CaptureColdStart && inv.ColdStart {
			s.PutMetric(ColdStartMetric, 1, Count)
			if inv.FunctionName != "" {
				s.AddMetadata(FunctionNameProperty, inv.FunctionName)
			}
		}
	}
	return NewContext(ctx, s), s
}

// WithSingleMetric emits one metric as its own record, outside the batch of
// the invocation. The record starts with the emitter's namespace and the
// single dimension {dimensionName: name}; body may change both and add
// metadata or more metrics. The record is flushed when body returns or
// panics.
func (e *Emitter) WithSingleMetric(ctx context.Context, name string, value float64, unit Unit, dimensionName string, body func(m *Scope)) (err error) {
	dims, err := NewDimensionSet(dimensionName, name)
	if err != nil {
		return err
	}

	s := e.newScope(e.cfg.Namespace, []DimensionSet{dims})
	if inv, ok := invocation.FromContext(ctx); ok {
		s.setInvocation(inv)
	}
	s.PutMetric(name, value, unit)

	defer func() {
		if flushErr := s.Flush(ctx); err == nil {
			err = flushErr
		}
	}()
	if body != nil {
		body(s)
	}
	return nil
}

// Flush flushes the sink when it buffers.
func (e *Emitter) Flush(ctx context.Context) error {
	if f, ok := e.sink.(interface{ Flush(context.Context) error }); ok {
		return f.Flush(ctx)
	}
	return nil
}

func (e *Emitter) export(ctx context.Context, rec Record) {
	defer func() {
		if r := recover(); r != nil {
			e.failures.Add(1)
			e.diag.Warn("metrics sink panicked", zap.Any("panic", r))
		}
	}()

	if err := e.sink.Export(ctx, rec); err != nil {
		e.failures.Add(1)
		e.diag.Debug("metrics export failed", zap.String("namespace", rec.Namespace), zap.Error(err))
		return
	}
	e.exported.Add(1)
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the metrics scope of the current invocation, or nil.
func FromContext(ctx context.Context) *Scope {
	s, _ := ctx.Value(contextKey{}).(*Scope)
	return s
}
