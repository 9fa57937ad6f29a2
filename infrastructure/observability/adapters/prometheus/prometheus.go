// Package prometheus exposes metric records as Prometheus collectors so a
// long-running process (the local HTTP adapter serves /metrics) can be
// scraped instead of writing EMF.
//
// Metric names follow Prometheus conventions: the namespace and metric name
// are snake cased and joined, counters get a _total suffix and histograms
// the base unit. The dimension names of a record become label names.
package prometheus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"powertools/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// byteBuckets spans 1KB to 1GB.
var byteBuckets = []float64{
	1024,
	10240,
	102400,
	1048576,
	10485760,
	104857600,
	1073741824,
}

// MetricsSink registers one vector per metric name and label set on a
// registerer and updates it on every record.
type MetricsSink struct {
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewMetricsSink creates a sink registering on reg. A nil reg uses the
// default registry.
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &MetricsSink{
		registerer: reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Export updates the collectors of every metric in rec. Count metrics are
// added to a counter; everything else is observed on a histogram.
func (s *MetricsSink) Export(_ context.Context, rec metrics.Record) error {
	names, values := labels(rec.Dimensions)

	for _, m := range rec.Metrics {
		if m.Unit == metrics.Count {
			vec, err := s.counter(rec.Namespace, m, names)
			if err != nil {
				return err
			}
			c := vec.WithLabelValues(values...)
			for _, v := range m.Values {
				if v < 0 {
					continue
				}
				c.Add(v)
			}
			continue
		}

		vec, err := s.histogram(rec.Namespace, m, names)
		if err != nil {
			return err
		}
		o := vec.WithLabelValues(values...)
		for _, v := range m.Values {
			o.Observe(v)
		}
	}
	return nil
}

func (s *MetricsSink) counter(namespace string, m metrics.Metric, labelNames []string) (*prometheus.CounterVec, error) {
	name := MetricName(namespace, m.Name, m.Unit)
	key := name + "|" + strings.Join(labelNames, ",")

	s.mu.Lock()
	defer s.mu.Unlock()
	if vec, ok := s.counters[key]; ok {
		return vec, nil
	}

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: fmt.Sprintf("%s (%s) in %s", m.Name, m.Unit, namespace),
	}, labelNames)
	if err := s.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
		vec = existing
	}
	s.counters[key] = vec
	return vec, nil
}

func (s *MetricsSink) histogram(namespace string, m metrics.Metric, labelNames []string) (*prometheus.HistogramVec, error) {
	name := MetricName(namespace, m.Name, m.Unit)
	key := name + "|" + strings.Join(labelNames, ",")

	s.mu.Lock()
	defer s.mu.Unlock()
	if vec, ok := s.histograms[key]; ok {
		return vec, nil
	}

	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    fmt.Sprintf("%s (%s) in %s", m.Name, m.Unit, namespace),
		Buckets: buckets(m.Unit),
	}, labelNames)
	if err := s.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
		vec = existing
	}
	s.histograms[key] = vec
	return vec, nil
}

// MetricName builds the Prometheus name of a metric, e.g.
// ("ServerlessAirline", "SuccessfulBooking", Count) becomes
// serverless_airline_successful_booking_total.
func MetricName(namespace, name string, unit metrics.Unit) string {
	full := snake(namespace) + "_" + snake(name)
	if suffix := unitSuffix(unit); suffix != "" && !strings.HasSuffix(full, "_"+suffix) {
		full += "_" + suffix
	}
	return full
}

func unitSuffix(u metrics.Unit) string {
	switch u {
	case metrics.Count:
		return "total"
	case metrics.Seconds:
		return "seconds"
	case metrics.Milliseconds:
		return "milliseconds"
	case metrics.Microseconds:
		return "microseconds"
	case metrics.Bytes:
		return "bytes"
	case metrics.Percent:
		return "percent"
	default:
		return ""
	}
}

func buckets(u metrics.Unit) []float64 {
	switch u {
	case metrics.Milliseconds:
		out := make([]float64, len(prometheus.DefBuckets))
		for i, b := range prometheus.DefBuckets {
			out[i] = b * 1000
		}
		return out
	case metrics.Bytes:
		return byteBuckets
	case metrics.Percent:
		return prometheus.LinearBuckets(10, 10, 10)
	default:
		return prometheus.DefBuckets
	}
}

// labels returns the sanitized dimension names in sorted order and the
// matching values.
func labels(dims map[string]string) ([]string, []string) {
	byName := make(map[string]string, len(dims))
	names := make([]string, 0, len(dims))
	for k, v := range dims {
		name := snake(k)
		if _, dup := byName[name]; !dup {
			names = append(names, name)
		}
		byName[name] = v
	}
	sort.Strings(names)

	values := make([]string, len(names))
	for i, name := range names {
		values[i] = byName[name]
	}
	return names, values
}

// snake converts CamelCase and any character outside [a-zA-Z0-9_] into
// lower snake case.
func snake(s string) string {
	var b strings.Builder
	prevLower := false
	for i, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			prevLower = false
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if i == 0 && r >= '0' && r <= '9' {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			prevLower = true
		default:
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
			prevLower = false
		}
	}
	return strings.TrimRight(b.String(), "_")
}
