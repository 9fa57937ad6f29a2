package metrics

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Metric is one named metric with every value recorded for it.
type Metric struct {
	Name       string
	Unit       Unit
	Resolution Resolution
	Values     []float64
}

// Record is one flushed batch: a set of metrics sharing a namespace and a
// dimension value mapping.
type Record struct {
	Timestamp time.Time
	Namespace string
	Service   string
	// DimensionSets lists the dimension groupings, each an ordered list of
	// names whose values are found in Dimensions.
	DimensionSets [][]string
	Dimensions    map[string]string
	Metrics       []Metric
	// Metadata holds properties that are not dimensions, such as the
	// request id.
	Metadata map[string]any
	// Degraded is set when the record has no dimension set; backends may
	// reject it.
	Degraded bool
}

// Metric returns the metric called name.
func (r Record) Metric(name string) (Metric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Sink receives flushed records: once per record of a flush and once per
// single-metric emission.
type Sink interface {
	Export(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec Record) error

// Export calls f(ctx, rec).
func (f SinkFunc) Export(ctx context.Context, rec Record) error { return f(ctx, rec) }

// MemorySink keeps exported records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Export stores rec.
func (m *MemorySink) Export(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns the records exported so far.
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

type dimensionGroup struct {
	values map[string]string
	sets   [][]string
	seen   map[string]bool
}

// groupDimensionSets packs dimension sets into as few groups as possible
// such that no dimension takes two different values inside a group. Each
// group becomes its own record.
func groupDimensionSets(sets []DimensionSet) []*dimensionGroup {
	var groups []*dimensionGroup
	for _, set := range sets {
		if set.Len() == 0 {
			continue
		}
		key := strings.Join(set.names, "\x00")

		var target *dimensionGroup
		for _, g := range groups {
			if g.compatible(set) {
				target = g
				break
			}
		}
		if target == nil {
			target = &dimensionGroup{values: make(map[string]string), seen: make(map[string]bool)}
			groups = append(groups, target)
		}
		if target.seen[key] {
			continue
		}
		target.seen[key] = true
		target.sets = append(target.sets, set.Names())
		for _, name := range set.names {
			target.values[name] = set.values[name]
		}
	}
	return groups
}

func (g *dimensionGroup) compatible(set DimensionSet) bool {
	for _, name := range set.names {
		if v, ok := g.values[name]; ok && v != set.values[name] {
			return false
		}
	}
	return true
}

// chunkMetrics splits metrics into slices of at most MaxMetricsPerRecord.
func chunkMetrics(metrics []Metric) [][]Metric {
	var chunks [][]Metric
	for len(metrics) > MaxMetricsPerRecord {
		chunks = append(chunks, metrics[:MaxMetricsPerRecord])
		metrics = metrics[MaxMetricsPerRecord:]
	}
	if len(metrics) > 0 {
		chunks = append(chunks, metrics)
	}
	return chunks
}
