package stdout

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"powertools/tracer"
)

// TraceExporter prints every closed segment tree as one JSON line. It is
// the trace exporter for local runs, where no tracing daemon listens.
type TraceExporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTraceExporter creates an exporter writing to w, or to stdout when w
// is nil.
func NewTraceExporter(w io.Writer) *TraceExporter {
	if w == nil {
		w = os.Stdout
	}
	return &TraceExporter{w: w}
}

// Export writes root and its subtree.
func (e *TraceExporter) Export(_ context.Context, root *tracer.SegmentData) error {
	line, err := json.Marshal(struct {
		Trace *tracer.SegmentData `json:"trace"`
	}{root})
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.w.Write(append(line, '\n'))
	return err
}
