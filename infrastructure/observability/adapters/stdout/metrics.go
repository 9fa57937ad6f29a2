package stdout

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"powertools/metrics"
)

// emfMetric is one entry of the Metrics list of an EMF directive.
type emfMetric struct {
	Name              string `json:"Name"`
	Unit              string `json:"Unit,omitempty"`
	StorageResolution int    `json:"StorageResolution,omitempty"`
}

type emfDirective struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []emfMetric `json:"Metrics"`
}

type emfMetadata struct {
	Timestamp         int64          `json:"Timestamp"`
	CloudWatchMetrics []emfDirective `json:"CloudWatchMetrics"`
}

// EncodeEMF renders rec in the CloudWatch Embedded Metric Format. Metric
// values, dimension values and metadata are top-level members; a metric
// recorded once is written as a number, more often as an array.
func EncodeEMF(rec metrics.Record) ([]byte, error) {
	doc := make(map[string]any, len(rec.Metadata)+len(rec.Dimensions)+len(rec.Metrics)+1)

	// Metadata first so dimensions and metric values win on a name clash.
	for k, v := range rec.Metadata {
		doc[k] = v
	}
	for k, v := range rec.Dimensions {
		doc[k] = v
	}

	directive := emfDirective{
		Namespace:  rec.Namespace,
		Dimensions: rec.DimensionSets,
		Metrics:    make([]emfMetric, 0, len(rec.Metrics)),
	}
	if directive.Dimensions == nil {
		directive.Dimensions = [][]string{}
	}

	for _, m := range rec.Metrics {
		def := emfMetric{Name: m.Name, Unit: string(m.Unit)}
		if m.Resolution == metrics.HighResolution {
			def.StorageResolution = int(metrics.HighResolution)
		}
		directive.Metrics = append(directive.Metrics, def)

		if len(m.Values) == 1 {
			doc[m.Name] = m.Values[0]
		} else {
			doc[m.Name] = m.Values
		}
	}

	doc["_aws"] = emfMetadata{
		Timestamp:         rec.Timestamp.UnixMilli(),
		CloudWatchMetrics: []emfDirective{directive},
	}
	return json.Marshal(doc)
}

// EMFSink prints every record as an EMF JSON line.
type EMFSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEMFSink creates a sink writing to w, or to stdout when w is nil.
func NewEMFSink(w io.Writer) *EMFSink {
	if w == nil {
		w = os.Stdout
	}
	return &EMFSink{w: w}
}

// Export writes rec.
func (s *EMFSink) Export(_ context.Context, rec metrics.Record) error {
	line, err := EncodeEMF(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(line, '\n'))
	return err
}
