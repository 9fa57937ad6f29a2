package logger

import (
	"context"
	"sync/atomic"

	"powertools/invocation"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Scope is the logging context of one invocation. Its methods are safe for
// concurrent use and a nil *Scope discards everything.
type Scope struct {
	logger *Logger
	inv    *invocation.Invocation
	level  Level
	keys   *keySet
	zap    *zap.Logger
	closed atomic.Bool
}

func newScope(l *Logger, inv *invocation.Invocation, level Level) *Scope {
	s := &Scope{
		logger: l,
		inv:    inv,
		level:  level,
		keys:   newKeySet(),
	}
	s.zap = zap.New(&sinkCore{LevelEnabler: level, scope: s}, zap.ErrorOutput(zapcore.AddSync(discard{})))
	return s
}

// Level returns the effective level of the scope.
func (s *Scope) Level() Level {
	if s == nil {
		return InfoLevel
	}
	return s.level
}

// Zap returns the zap logger bound to the scope, for libraries that take a
// *zap.Logger.
func (s *Scope) Zap() *zap.Logger {
	if s == nil {
		return zap.NewNop()
	}
	return s.zap
}

// Append adds key to every following record of this invocation.
func (s *Scope) Append(key, value string) {
	if !s.usable("append") {
		return
	}
	s.keys.put(key, value)
}

// AppendPersistent adds key to every following record of this and later
// invocations of the process.
func (s *Scope) AppendPersistent(key, value string) {
	if !s.usable("append persistent") {
		return
	}
	s.logger.AppendPersistent(key, value)
}

// Remove drops key from the scope, and from the persistent keys if it was
// added there.
func (s *Scope) Remove(key string) {
	if !s.usable("remove") {
		return
	}
	s.keys.remove(key)
	s.logger.persistent.remove(key)
}

// Keys returns the keys currently attached to records, persistent keys
// included.
func (s *Scope) Keys() map[string]string {
	if s == nil {
		return map[string]string{}
	}
	out := map[string]any{}
	s.logger.persistent.copyTo(out)
	s.keys.copyTo(out)

	keys := make(map[string]string, len(out))
	for k, v := range out {
		keys[k] = v.(string)
	}
	return keys
}

func (s *Scope) Debug(msg string, fields ...zap.Field) { s.Log(DebugLevel, msg, fields...) }
func (s *Scope) Info(msg string, fields ...zap.Field)  { s.Log(InfoLevel, msg, fields...) }
func (s *Scope) Warn(msg string, fields ...zap.Field)  { s.Log(WarnLevel, msg, fields...) }
func (s *Scope) Error(msg string, fields ...zap.Field) { s.Log(ErrorLevel, msg, fields...) }

// Log emits one record at level. Records logged after Close still reach the
// sink, carrying only the invocation fields and persistent keys.
func (s *Scope) Log(level Level, msg string, fields ...zap.Field) {
	if s == nil {
		return
	}
	if ce := s.zap.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Close clears every key appended during the invocation. Persistent keys
// are kept. Closing twice is a no-op.
func (s *Scope) Close() {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.keys.clear()
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	return s != nil && s.closed.Load()
}

func (s *Scope) usable(op string) bool {
	if s == nil {
		return false
	}
	if s.closed.Load() {
		s.logger.diag.Warn("logging scope already closed, ignoring "+op,
			zap.String(FieldFunctionRequestID, s.inv.ID))
		return false
	}
	return true
}

// baseFields returns the invocation fields attached to every record.
func (s *Scope) baseFields() map[string]any {
	cfg := s.logger.cfg
	fields := map[string]any{
		FieldService:           cfg.Service,
		FieldColdStart:         s.inv.ColdStart,
		FieldFunctionRequestID: s.inv.ID,
	}
	if cfg.SamplingRate > 0 {
		fields[FieldSamplingRate] = cfg.SamplingRate
	}
	if s.inv.FunctionName != "" {
		fields[FieldFunctionName] = s.inv.FunctionName
	}
	if s.inv.FunctionVersion != "" {
		fields[FieldFunctionVersion] = s.inv.FunctionVersion
	}
	if s.inv.FunctionARN != "" {
		fields[FieldFunctionARN] = s.inv.FunctionARN
	}
	if s.inv.MemoryLimitMB > 0 {
		fields[FieldFunctionMemorySize] = s.inv.MemoryLimitMB
	}
	if s.inv.TraceID != "" {
		fields[FieldXRayTraceID] = s.inv.TraceID
	}
	return fields
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the scope of the current invocation, or nil.
func FromContext(ctx context.Context) *Scope {
	s, _ := ctx.Value(contextKey{}).(*Scope)
	return s
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
