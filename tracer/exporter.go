package tracer

import (
	"context"
	"sync"
)

// Exporter receives every completed root segment, once, with its subtree.
// Implementations must not block for long; remote exporters queue the tree
// and send it in the background.
type Exporter interface {
	Export(ctx context.Context, root *SegmentData) error
}

// ExporterFunc adapts a function to the Exporter interface.
type ExporterFunc func(ctx context.Context, root *SegmentData) error

// Export calls f(ctx, root).
func (f ExporterFunc) Export(ctx context.Context, root *SegmentData) error {
	return f(ctx, root)
}

// NopExporter discards every tree.
type NopExporter struct{}

// Export does nothing.
func (NopExporter) Export(context.Context, *SegmentData) error { return nil }

// MemoryExporter keeps exported trees in memory.
type MemoryExporter struct {
	mu    sync.Mutex
	roots []*SegmentData
}

// NewMemoryExporter returns an empty MemoryExporter.
func NewMemoryExporter() *MemoryExporter {
	return &MemoryExporter{}
}

// Export stores root.
func (m *MemoryExporter) Export(_ context.Context, root *SegmentData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roots = append(m.roots, root)
	return nil
}

// Roots returns the trees exported so far.
func (m *MemoryExporter) Roots() []*SegmentData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*SegmentData(nil), m.roots...)
}
