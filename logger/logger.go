// Package logger implements the structured logger of an invocation chain.
//
// A Logger lives for the whole process and owns the persistent keys. Every
// invocation opens a Scope on it; the Scope carries the invocation fields and
// the keys appended during that invocation, and forgets them when closed.
// Log calls go through zap and are routed by a custom core to a Sink.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"powertools/invocation"

	"github.com/go-openapi/jsonpointer"
	"go.uber.org/zap"
)

// DefaultMaxEventBytes caps the size of a logged invocation payload.
const DefaultMaxEventBytes = 256 * 1024

// Config holds the logging options of a chain.
type Config struct {
	Service string
	// Level is the default level of every invocation.
	Level Level
	// SamplingRate is the probability, in [0, 1], that an invocation is
	// logged at SampleLevel with its payload.
	SamplingRate float64
	SampleLevel  Level
	// LogEvent logs the payload of every invocation.
	LogEvent      bool
	MaxEventBytes int
	// CorrelationIDPath is a JSON pointer into the payload whose value is
	// appended to every record as correlation_id.
	CorrelationIDPath string
}

// Logger is the process-wide structured logger.
type Logger struct {
	cfg         Config
	sink        Sink
	correlation *jsonpointer.Pointer
	persistent  *keySet
	diag        *zap.Logger

	failures atomic.Int64
}

// Option configures a Logger.
type Option func(*Logger)

// WithDiagnostics sets the logger used for the logger's own warnings.
func WithDiagnostics(diag *zap.Logger) Option {
	return func(l *Logger) {
		if diag != nil {
			l.diag = diag
		}
	}
}

// New creates a Logger writing to sink.
func New(cfg Config, sink Sink, opts ...Option) (*Logger, error) {
	if sink == nil {
		return nil, fmt.Errorf("logger: sink is required")
	}
	if cfg.MaxEventBytes <= 0 {
		cfg.MaxEventBytes = DefaultMaxEventBytes
	}
	if cfg.SamplingRate < 0 || cfg.SamplingRate > 1 {
		return nil, fmt.Errorf("logger: sampling rate %v outside [0, 1]", cfg.SamplingRate)
	}

	l := &Logger{
		cfg:        cfg,
		sink:       sink,
		persistent: newKeySet(),
		diag:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if cfg.CorrelationIDPath != "" {
		ptr, err := jsonpointer.New(cfg.CorrelationIDPath)
		if err != nil {
			return nil, fmt.Errorf("logger: invalid correlation id path %q: %w", cfg.CorrelationIDPath, err)
		}
		l.correlation = &ptr
	}

	return l, nil
}

// Config returns the options the Logger was built with.
func (l *Logger) Config() Config {
	return l.cfg
}

// AppendPersistent adds a key that is attached to every record of every
// invocation served by this process until it is removed.
func (l *Logger) AppendPersistent(key, value string) {
	l.persistent.put(key, value)
}

// RemovePersistent removes a persistent key.
func (l *Logger) RemovePersistent(key string) {
	l.persistent.remove(key)
}

// Failures returns the number of records the sink failed to accept.
func (l *Logger) Failures() int64 {
	return l.failures.Load()
}

// Flush flushes the sink when it buffers.
func (l *Logger) Flush(ctx context.Context) error {
	if f, ok := l.sink.(interface{ Flush(context.Context) error }); ok {
		return f.Flush(ctx)
	}
	return nil
}

// OpenScope installs a fresh scope for inv and returns a context carrying it.
// The payload is logged when event logging is enabled or the invocation is
// sampled.
func (l *Logger) OpenScope(ctx context.Context, inv *invocation.Invocation, payload json.RawMessage) (context.Context, *Scope) {
	level := l.cfg.Level
	if inv.Sampled && l.cfg.SampleLevel < level {
		level = l.cfg.SampleLevel
	}

	s := newScope(l, inv, level)
	if id, ok := l.correlationID(payload); ok {
		s.keys.put(FieldCorrelationID, id)
	}
	if inv.Sampled {
		s.Debug("Invocation sampled for debug logging", zap.Float64(FieldSamplingRate, l.cfg.SamplingRate))
	}
	if l.cfg.LogEvent || inv.Sampled {
		s.logEvent(payload)
	}

	return NewContext(ctx, s), s
}

func (l *Logger) write(rec Record) {
	defer func() {
		if r := recover(); r != nil {
			l.failures.Add(1)
			l.diag.Warn("log sink panicked", zap.Any("panic", r))
		}
	}()

	if err := l.sink.Write(rec); err != nil {
		l.failures.Add(1)
		l.diag.Debug("log sink write failed", zap.Error(err))
	}
}

func (l *Logger) correlationID(payload json.RawMessage) (string, bool) {
	if l.correlation == nil || len(payload) == 0 {
		return "", false
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", false
	}
	v, _, err := l.correlation.Get(doc)
	if err != nil || v == nil {
		l.diag.Debug("correlation id not found", zap.String("path", l.cfg.CorrelationIDPath))
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}
