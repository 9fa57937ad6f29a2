// Package stdout writes logs, metrics and traces as JSON lines, the format
// the Lambda runtime forwards to CloudWatch Logs. Metrics use the Embedded
// Metric Format, so CloudWatch extracts them without any API call.
package stdout

import (
	"io"
	"os"
	"sort"
	"sync"

	"powertools/logger"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logEncoderConfig = zapcore.EncoderConfig{
	TimeKey:        logger.FieldTimestamp,
	LevelKey:       logger.FieldLevel,
	MessageKey:     logger.FieldMessage,
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.CapitalLevelEncoder,
	EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
	EncodeDuration: zapcore.MillisDurationEncoder,
}

// EncodeLog renders rec as one JSON line: level, timestamp and message
// first, then the fields sorted by name.
func EncodeLog(rec logger.Record) ([]byte, error) {
	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zapcore.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, rec.Fields[k]))
	}

	enc := zapcore.NewJSONEncoder(logEncoderConfig)
	buf, err := enc.EncodeEntry(zapcore.Entry{
		Level:   rec.Level,
		Time:    rec.Time,
		Message: rec.Message,
	}, fields)
	if err != nil {
		return nil, err
	}
	defer buf.Free()

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// LogSink writes every record to an io.Writer, one JSON line each.
type LogSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogSink creates a sink writing to w, or to stdout when w is nil.
func NewLogSink(w io.Writer) *LogSink {
	if w == nil {
		w = os.Stdout
	}
	return &LogSink{w: w}
}

// Write encodes and writes rec.
func (s *LogSink) Write(rec logger.Record) error {
	line, err := EncodeLog(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(line)
	return err
}
