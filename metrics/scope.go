package metrics

import (
	"context"
	"sync"
	"time"

	"powertools/invocation"

	"go.uber.org/zap"
)

// Scope is the metric batch of one invocation, or of one single-metric
// emission. It is safe for concurrent use. After Flush every mutation is
// ignored with a warning.
type Scope struct {
	emitter *Emitter

	mu        sync.Mutex
	namespace string
	dims      []DimensionSet
	metrics   []*Metric
	index     map[string]int
	metadata  map[string]any
	flushed   bool
	flushErr  error
}

func (e *Emitter) newScope(namespace string, dims []DimensionSet) *Scope {
	return &Scope{
		emitter:   e,
		namespace: namespace,
		dims:      dims,
		index:     make(map[string]int),
		metadata:  make(map[string]any),
	}
}

func (s *Scope) setInvocation(inv *invocation.Invocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID != "" {
		s.metadata[RequestIDProperty] = inv.ID
	}
	if inv.TraceID != "" {
		s.metadata[TraceIDProperty] = inv.TraceID
	}
}

// PutMetric records value under name at standard resolution. Repeated puts
// of the same name accumulate values; the unit of the first put wins.
func (s *Scope) PutMetric(name string, value float64, unit Unit) {
	s.PutMetricWithResolution(name, value, unit, StandardResolution)
}

// PutMetricWithResolution is PutMetric with an explicit storage resolution.
func (s *Scope) PutMetricWithResolution(name string, value float64, unit Unit, resolution Resolution) {
	if s == nil {
		return
	}
	if unit == "" {
		unit = None
	}
	if err := validateMetric(name, value, unit); err != nil {
		s.emitter.diag.Warn("metric dropped", zap.Error(err))
		return
	}
	if resolution != HighResolution {
		resolution = StandardResolution
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.usable("PutMetric") {
		return
	}
	if i, ok := s.index[name]; ok {
		m := s.metrics[i]
		if m.Unit != unit {
			s.emitter.diag.Warn("metric unit differs from the first put, keeping the first",
				zap.String("metric", name), zap.String("unit", string(m.Unit)), zap.String("ignored", string(unit)))
		}
		m.Values = append(m.Values, value)
		return
	}
	s.index[name] = len(s.metrics)
	s.metrics = append(s.metrics, &Metric{Name: name, Unit: unit, Resolution: resolution, Values: []float64{value}})
}

// SetDimensions replaces every dimension set of the batch, including the
// default one.
func (s *Scope) SetDimensions(sets ...DimensionSet) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.usable("SetDimensions") {
		return
	}
	s.dims = s.dims[:0]
	for _, set := range sets {
		s.dims = append(s.dims, set.clone())
	}
}

// AddDimensions adds a dimension set to the batch.
func (s *Scope) AddDimensions(set DimensionSet) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.usable("AddDimensions") {
		return
	}
	s.dims = append(s.dims, set.clone())
}

// AddDimension adds name=value to the first dimension set, creating it if
// the batch has none.
func (s *Scope) AddDimension(name, value string) error {
	if s == nil {
		return nil
	}
	if err := ValidateDimension(name, value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.usable("AddDimension") {
		return nil
	}
	if len(s.dims) == 0 {
		s.dims = append(s.dims, DimensionSet{})
	}
	return s.dims[0].Add(name, value)
}

// AddMetadata attaches a non-dimension property to every record of the
// batch.
func (s *Scope) AddMetadata(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.usable("AddMetadata") {
		return
	}
	s.metadata[key] = value
}

// SetNamespace changes the namespace of this batch only.
func (s *Scope) SetNamespace(namespace string) error {
	if s == nil {
		return nil
	}
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.usable("SetNamespace") {
		return nil
	}
	s.namespace = namespace
	return nil
}

// Len returns the number of distinct metric names recorded.
func (s *Scope) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.metrics)
}

// Flushed reports whether Flush already ran.
func (s *Scope) Flushed() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushed
}

// Flush serializes the batch and hands it to the sink. Dimension sets with
// conflicting values go to separate records, and batches with more than
// MaxMetricsPerRecord names are split. Sink errors are counted and
// swallowed. Flush runs once; later calls return the first result without
// emitting anything.
func (s *Scope) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.flushed {
		err := s.flushErr
		s.mu.Unlock()
		return err
	}
	s.flushed = true
	records, err := s.buildRecordsLocked(time.Now())
	s.flushErr = err
	s.mu.Unlock()

	if s.emitter.cfg.Disabled {
		return err
	}
	for _, rec := range records {
		s.emitter.export(ctx, rec)
	}
	return err
}

func (s *Scope) buildRecordsLocked(now time.Time) ([]Record, error) {
	e := s.emitter
	if len(s.metrics) == 0 {
		if e.cfg.RaiseOnEmptyMetrics {
			return nil, ErrNoMetrics
		}
		e.diag.Warn("no metrics were emitted in this invocation")
		return nil, nil
	}

	metrics := make([]Metric, 0, len(s.metrics))
	for _, m := range s.metrics {
		metrics = append(metrics, Metric{
			Name:       m.Name,
			Unit:       m.Unit,
			Resolution: m.Resolution,
			Values:     append([]float64(nil), m.Values...),
		})
	}

	groups := groupDimensionSets(s.dims)
	if len(groups) == 0 {
		e.diag.Warn("metrics flushed without dimensions", zap.String("namespace", s.namespace))
		groups = []*dimensionGroup{{values: map[string]string{}}}
	}

	var records []Record
	for _, g := range groups {
		for _, chunk := range chunkMetrics(metrics) {
			rec := Record{
				Timestamp:     now,
				Namespace:     s.namespace,
				Service:       e.cfg.Service,
				DimensionSets: g.sets,
				Dimensions:    g.values,
				Metrics:       chunk,
				Metadata:      make(map[string]any, len(s.metadata)),
				Degraded:      len(g.sets) == 0,
			}
			for k, v := range s.metadata {
				rec.Metadata[k] = v
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

func (s *Scope) usable(op string) bool {
	if s.flushed {
		s.emitter.diag.Warn("metrics already flushed, ignoring "+op, zap.String("namespace", s.namespace))
		return false
	}
	return true
}
