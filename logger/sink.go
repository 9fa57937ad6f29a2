package logger

import (
	"sync"
	"time"
)

// Record is one structured log statement.
type Record struct {
	Time    time.Time
	Level   Level
	Message string
	// Fields holds every structured field of the record: the invocation
	// fields, persistent keys, scope keys and one-off fields, in increasing
	// order of precedence.
	Fields map[string]any
}

// Sink receives every record emitted by a Logger, one call per statement.
// Errors returned by Write are counted by the Logger and never reach the
// code that logged.
type Sink interface {
	Write(rec Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(rec Record) error

// Write calls f(rec).
func (f SinkFunc) Write(rec Record) error { return f(rec) }

// MemorySink keeps records in memory. It is safe for concurrent use.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends rec.
func (m *MemorySink) Write(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of the stored records.
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Reset discards all stored records.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
}
