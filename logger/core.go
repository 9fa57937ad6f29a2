package logger

import (
	"go.uber.org/zap/zapcore"
)

// sinkCore is a zapcore.Core that turns entries into Records for the
// scope's sink.
type sinkCore struct {
	zapcore.LevelEnabler
	scope  *Scope
	fields []zapcore.Field
}

func (c *sinkCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field(nil), c.fields...), fields...)
	return &clone
}

func (c *sinkCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *sinkCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	s := c.scope

	out := s.baseFields()
	s.logger.persistent.copyTo(out)
	s.keys.copyTo(out)

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	for k, v := range enc.Fields {
		out[k] = v
	}

	s.logger.write(Record{
		Time:    ent.Time,
		Level:   ent.Level,
		Message: ent.Message,
		Fields:  out,
	})
	return nil
}

func (c *sinkCore) Sync() error {
	return nil
}
