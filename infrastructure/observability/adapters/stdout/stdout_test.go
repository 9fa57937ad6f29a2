package stdout

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"powertools/logger"
	"powertools/metrics"
	"powertools/tracer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSink_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(&buf)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Write(logger.Record{
		Time:    ts,
		Level:   logger.InfoLevel,
		Message: "Collecting payment",
		Fields: map[string]any{
			logger.FieldService:   "payments",
			logger.FieldColdStart: true,
			logger.FieldEvent:     json.RawMessage(`{"amount":42}`),
		},
	}))
	require.NoError(t, sink.Write(logger.Record{Time: ts, Level: logger.ErrorLevel, Message: "second"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "INFO", first["level"])
	assert.Equal(t, "Collecting payment", first["message"])
	assert.Equal(t, "2024-03-01T12:00:00Z", first["timestamp"])
	assert.Equal(t, "payments", first["service"])
	assert.Equal(t, true, first["cold_start"])
	assert.Equal(t, map[string]any{"amount": float64(42)}, first["event"])

	assert.Contains(t, lines[1], `"level":"ERROR"`)
}

func TestEncodeEMF(t *testing.T) {
	rec := metrics.Record{
		Timestamp:     time.UnixMilli(1700000000000),
		Namespace:     "ServerlessAirline",
		DimensionSets: [][]string{{"Service", "Environment"}},
		Dimensions:    map[string]string{"Service": "payments", "Environment": "prod"},
		Metrics: []metrics.Metric{
			{Name: "SuccessfulBooking", Unit: metrics.Count, Resolution: metrics.StandardResolution, Values: []float64{1}},
			{Name: "Latency", Unit: metrics.Milliseconds, Resolution: metrics.HighResolution, Values: []float64{12, 30}},
		},
		Metadata: map[string]any{metrics.RequestIDProperty: "req-1"},
	}

	raw, err := EncodeEMF(rec)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"_aws": {
			"Timestamp": 1700000000000,
			"CloudWatchMetrics": [{
				"Namespace": "ServerlessAirline",
				"Dimensions": [["Service", "Environment"]],
				"Metrics": [
					{"Name": "SuccessfulBooking", "Unit": "Count"},
					{"Name": "Latency", "Unit": "Milliseconds", "StorageResolution": 1}
				]
			}]
		},
		"Service": "payments",
		"Environment": "prod",
		"SuccessfulBooking": 1,
		"Latency": [12, 30],
		"function_request_id": "req-1"
	}`, string(raw))
}

func TestEncodeEMF_DegradedRecord(t *testing.T) {
	raw, err := EncodeEMF(metrics.Record{
		Timestamp: time.UnixMilli(1),
		Namespace: "ServerlessAirline",
		Metrics:   []metrics.Metric{{Name: "Orders", Unit: metrics.Count, Values: []float64{3}}},
		Degraded:  true,
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"Dimensions":[]`)
}

func TestEMFSink_FromEmitter(t *testing.T) {
	var buf bytes.Buffer
	emitter, err := metrics.NewEmitter(metrics.Config{
		Namespace: "ServerlessAirline",
		Service:   "payments",
	}, NewEMFSink(&buf))
	require.NoError(t, err)

	_, scope := emitter.OpenScope(context.Background(), nil)
	scope.PutMetric("Orders", 2, metrics.Count)
	require.NoError(t, scope.Flush(context.Background()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, float64(2), doc["Orders"])
	assert.Equal(t, "payments", doc["Service"])
	assert.Contains(t, doc, "_aws")
}

func TestTraceExporter(t *testing.T) {
	var buf bytes.Buffer
	tr := tracer.New(NewTraceExporter(&buf), tracer.WithService("payments"))

	err := tr.WithSegment(context.Background(), "charge", func(ctx context.Context) error {
		tr.PutAnnotation(ctx, "order_id", "o-1")
		return nil
	})
	require.NoError(t, err)

	var doc struct {
		Trace struct {
			Name        string         `json:"name"`
			Status      string         `json:"status"`
			Annotations map[string]any `json:"annotations"`
		} `json:"trace"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "## charge", doc.Trace.Name)
	assert.Equal(t, "OK", doc.Trace.Status)
	assert.Equal(t, "o-1", doc.Trace.Annotations["order_id"])
}

func TestTraceExporter_UnserializableInput(t *testing.T) {
	exporter := NewTraceExporter(&bytes.Buffer{})
	err := exporter.Export(context.Background(), &tracer.SegmentData{Name: "bad", Input: make(chan int)})
	assert.Error(t, err)
}
