package mocks

import (
	"context"

	"powertools/logger"
	"powertools/metrics"
	"powertools/tracer"

	"github.com/stretchr/testify/mock"
)

// MockLogSink is a mock implementation of logger.Sink.
type MockLogSink struct {
	mock.Mock
}

var _ logger.Sink = (*MockLogSink)(nil)

// Write mocks writing one log record
func (m *MockLogSink) Write(rec logger.Record) error {
	args := m.Called(rec)
	return args.Error(0)
}

// MockExporter is a mock implementation of tracer.Exporter.
type MockExporter struct {
	mock.Mock
}

var _ tracer.Exporter = (*MockExporter)(nil)

// Export mocks exporting a closed segment tree
func (m *MockExporter) Export(ctx context.Context, root *tracer.SegmentData) error {
	args := m.Called(ctx, root)
	return args.Error(0)
}

// MockMetricsSink is a mock implementation of metrics.Sink.
type MockMetricsSink struct {
	mock.Mock
}

var _ metrics.Sink = (*MockMetricsSink)(nil)

// Export mocks exporting one metric record
func (m *MockMetricsSink) Export(ctx context.Context, rec metrics.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// Flush mocks flushing buffered records
func (m *MockMetricsSink) Flush(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
