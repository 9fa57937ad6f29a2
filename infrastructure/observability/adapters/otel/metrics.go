package otel

import (
	"context"
	"sync"

	"powertools/metrics"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// NamespaceAttribute carries the metric namespace on every measurement.
const NamespaceAttribute = "namespace"

// MetricsSink records every metric value on an OTel instrument: a counter
// for the Count unit, a histogram otherwise. The record's dimension values
// become attributes.
type MetricsSink struct {
	meter    metric.Meter
	provider metric.MeterProvider

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

// NewMetricsSink creates a sink recording on provider.
func NewMetricsSink(provider metric.MeterProvider) *MetricsSink {
	return &MetricsSink{
		meter:      provider.Meter(InstrumentationName),
		provider:   provider,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// Export records rec.
func (s *MetricsSink) Export(ctx context.Context, rec metrics.Record) error {
	attrs := make([]attribute.KeyValue, 0, len(rec.Dimensions)+1)
	attrs = append(attrs, attribute.String(NamespaceAttribute, rec.Namespace))
	for name, value := range rec.Dimensions {
		attrs = append(attrs, attribute.String(name, value))
	}
	opt := metric.WithAttributeSet(attribute.NewSet(attrs...))

	for _, m := range rec.Metrics {
		if m.Unit == metrics.Count {
			counter, err := s.counter(m)
			if err != nil {
				return err
			}
			for _, v := range m.Values {
				counter.Add(ctx, v, opt)
			}
			continue
		}

		hist, err := s.histogram(m)
		if err != nil {
			return err
		}
		for _, v := range m.Values {
			hist.Record(ctx, v, opt)
		}
	}
	return nil
}

// Flush forces the provider to export when it buffers.
func (s *MetricsSink) Flush(ctx context.Context) error {
	if f, ok := s.provider.(Flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func (s *MetricsSink) counter(m metrics.Metric) (metric.Float64Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[m.Name]; ok {
		return c, nil
	}
	c, err := s.meter.Float64Counter(m.Name, metric.WithUnit(ucumUnit(m.Unit)))
	if err != nil {
		return nil, err
	}
	s.counters[m.Name] = c
	return c, nil
}

func (s *MetricsSink) histogram(m metrics.Metric) (metric.Float64Histogram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.histograms[m.Name]; ok {
		return h, nil
	}
	h, err := s.meter.Float64Histogram(m.Name, metric.WithUnit(ucumUnit(m.Unit)))
	if err != nil {
		return nil, err
	}
	s.histograms[m.Name] = h
	return h, nil
}

// ucumUnit maps CloudWatch units to the UCUM codes OTel uses.
func ucumUnit(u metrics.Unit) string {
	switch u {
	case metrics.Seconds:
		return "s"
	case metrics.Milliseconds:
		return "ms"
	case metrics.Microseconds:
		return "us"
	case metrics.Bytes:
		return "By"
	case metrics.Kilobytes:
		return "kBy"
	case metrics.Megabytes:
		return "MBy"
	case metrics.Gigabytes:
		return "GBy"
	case metrics.Bits:
		return "bit"
	case metrics.Percent:
		return "%"
	case metrics.Count:
		return "{count}"
	case metrics.BytesPerSecond:
		return "By/s"
	case metrics.CountPerSecond:
		return "{count}/s"
	default:
		return "1"
	}
}
