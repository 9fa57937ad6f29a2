package cloudwatch

import (
	"context"

	"powertools/infrastructure/observability/adapters/breaker"
	"powertools/internal/async"
	"powertools/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// maxDatumsPerCall is the PutMetricData limit on data points per request.
const maxDatumsPerCall = 1000

// MetricsAPI is the part of the CloudWatch client the metrics sink uses.
type MetricsAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// datum is a metric datum with the namespace it belongs to.
type datum struct {
	namespace string
	datum     types.MetricDatum
}

// MetricsSink sends metric records with PutMetricData. Each metric is sent
// once per dimension set of its record.
type MetricsSink struct {
	client  MetricsAPI
	breaker *breaker.Breaker
	batcher *async.Batcher[datum]
}

// NewMetricsSink creates a sink calling client.
func NewMetricsSink(client MetricsAPI, opts ...Option) *MetricsSink {
	o := buildOptions("cloudwatch-metrics", maxDatumsPerCall, opts)
	s := &MetricsSink{
		client:  client,
		breaker: o.breaker,
	}
	s.batcher = async.New(o.batch, s.send)
	return s
}

// Export converts rec into metric data and queues them.
func (s *MetricsSink) Export(_ context.Context, rec metrics.Record) error {
	var dropped bool
	for _, d := range toDatums(rec) {
		if !s.batcher.Enqueue(datum{namespace: rec.Namespace, datum: d}) {
			dropped = true
		}
	}
	if dropped {
		return ErrQueueFull
	}
	return nil
}

// Flush sends the queued data.
func (s *MetricsSink) Flush(ctx context.Context) error {
	return s.batcher.Flush(ctx)
}

// Close sends the queued data and stops the sink.
func (s *MetricsSink) Close(ctx context.Context) error {
	return s.batcher.Close(ctx)
}

// Dropped returns the number of data points rejected by a full queue.
func (s *MetricsSink) Dropped() int64 { return s.batcher.Dropped() }

// Failures returns the number of data points lost to failed calls.
func (s *MetricsSink) Failures() int64 { return s.batcher.Failed() }

func toDatums(rec metrics.Record) []types.MetricDatum {
	sets := rec.DimensionSets
	if len(sets) == 0 {
		sets = [][]string{nil}
	}

	out := make([]types.MetricDatum, 0, len(sets)*len(rec.Metrics))
	for _, set := range sets {
		dims := make([]types.Dimension, 0, len(set))
		for _, name := range set {
			dims = append(dims, types.Dimension{
				Name:  aws.String(name),
				Value: aws.String(rec.Dimensions[name]),
			})
		}
		for _, m := range rec.Metrics {
			out = append(out, types.MetricDatum{
				MetricName:        aws.String(m.Name),
				Unit:              types.StandardUnit(m.Unit),
				StorageResolution: aws.Int32(int32(m.Resolution)),
				Timestamp:         aws.Time(rec.Timestamp),
				Dimensions:        dims,
				Values:            append([]float64(nil), m.Values...),
			})
		}
	}
	return out
}

// send issues one PutMetricData call per namespace, keeping the order in
// which namespaces first appear in the batch.
func (s *MetricsSink) send(ctx context.Context, batch []datum) error {
	var order []string
	byNamespace := make(map[string][]types.MetricDatum)
	for _, d := range batch {
		if _, ok := byNamespace[d.namespace]; !ok {
			order = append(order, d.namespace)
		}
		byNamespace[d.namespace] = append(byNamespace[d.namespace], d.datum)
	}

	return s.breaker.Do(ctx, func(ctx context.Context) error {
		for _, ns := range order {
			_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
				Namespace:  aws.String(ns),
				MetricData: byNamespace[ns],
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
