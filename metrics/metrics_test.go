package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"powertools/invocation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

func newTestEmitter(t *testing.T, cfg Config, opts ...Option) (*Emitter, *MemorySink) {
	t.Helper()
	if cfg.Namespace == "" {
		cfg.Namespace = "ServerlessAirline"
	}
	if cfg.Service == "" {
		cfg.Service = "payments"
	}
	sink := NewMemorySink()
	e, err := NewEmitter(cfg, sink, opts...)
	require.NoError(t, err)
	return e, sink
}

func TestNewEmitter_Validation(t *testing.T) {
	sink := NewMemorySink()

	_, err := NewEmitter(Config{Service: "payments"}, sink)
	assert.ErrorIs(t, err, ErrInvalidNamespace)

	_, err = NewEmitter(Config{Namespace: "bad namespace!", Service: "payments"}, sink)
	assert.ErrorIs(t, err, ErrInvalidNamespace)

	_, err = NewEmitter(Config{Namespace: "ServerlessAirline"}, sink)
	assert.ErrorIs(t, err, ErrInvalidService)

	_, err = NewEmitter(Config{Namespace: "ServerlessAirline", Service: "payments"}, nil)
	assert.Error(t, err)
}

func TestScope_PutMetricAccumulatesValues(t *testing.T) {
	e, sink := newTestEmitter(t, Config{})
	_, s := e.OpenScope(context.Background(), nil)

	s.PutMetric("Count", 1, Count)
	s.PutMetric("Count", 1, Count)
	s.PutMetric("Count", 1, Count)
	require.NoError(t, s.Flush(context.Background()))

	records := sink.Records()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "ServerlessAirline", rec.Namespace)
	assert.Equal(t, [][]string{{ServiceDimension}}, rec.DimensionSets)
	assert.Equal(t, map[string]string{ServiceDimension: "payments"}, rec.Dimensions)
	assert.False(t, rec.Degraded)

	m, ok := rec.Metric("Count")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 1, 1}, m.Values)
	assert.Equal(t, Count, m.Unit)
	assert.Equal(t, StandardResolution, m.Resolution)
}

func TestScope_ResolutionIsNormalized(t *testing.T) {
	e, sink := newTestEmitter(t, Config{})
	_, s := e.OpenScope(context.Background(), nil)

	s.PutMetricWithResolution("Latency", 12, Milliseconds, HighResolution)
	s.PutMetricWithResolution("Retries", 2, Count, Resolution(30))
	require.NoError(t, s.Flush(context.Background()))

	rec := sink.Records()[0]
	latency, ok := rec.Metric("Latency")
	require.True(t, ok)
	assert.Equal(t, HighResolution, latency.Resolution)

	retries, ok := rec.Metric("Retries")
	require.True(t, ok)
	assert.Equal(t, StandardResolution, retries.Resolution)
}

func TestScope_FirstUnitWins(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e, sink := newTestEmitter(t, Config{}, WithDiagnostics(zap.New(core)))
	_, s := e.OpenScope(context.Background(), nil)

	s.PutMetric("Latency", 12, Milliseconds)
	s.PutMetric("Latency", 1, Seconds)
	require.NoError(t, s.Flush(context.Background()))

	m, ok := sink.Records()[0].Metric("Latency")
	require.True(t, ok)
	assert.Equal(t, Milliseconds, m.Unit)
	assert.Equal(t, []float64{12, 1}, m.Values)
	assert.Equal(t, 1, logs.Len())
}

func TestScope_InvalidMetricIsDropped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e, _ := newTestEmitter(t, Config{}, WithDiagnostics(zap.New(core)))
	_, s := e.OpenScope(context.Background(), nil)

	s.PutMetric("", 1, Count)
	s.PutMetric("Bad", 1, Unit("Furlongs"))

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 2, logs.Len())
}

func TestScope_FlushIsIdempotent(t *testing.T) {
	e, sink := newTestEmitter(t, Config{})
	_, s := e.OpenScope(context.Background(), nil)
	s.PutMetric("Orders", 2, Count)

	require.NoError(t, s.Flush(context.Background()))
	require.NoError(t, s.Flush(context.Background()))

	assert.Len(t, sink.Records(), 1)
	assert.True(t, s.Flushed())
}

func TestScope_ConcurrentFlushEmitsOnce(t *testing.T) {
	e, sink := newTestEmitter(t, Config{})
	_, s := e.OpenScope(context.Background(), nil)
	s.PutMetric("Orders", 2, Count)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Flush(context.Background())
		}()
	}
	wg.Wait()

	assert.Len(t, sink.Records(), 1)
}

func TestScope_MutationAfterFlushIsIgnored(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e, sink := newTestEmitter(t, Config{}, WithDiagnostics(zap.New(core)))
	_, s := e.OpenScope(context.Background(), nil)
	s.PutMetric("Orders", 1, Count)
	require.NoError(t, s.Flush(context.Background()))

	s.PutMetric("Orders", 1, Count)
	s.AddMetadata("booking_id", "abc")

	require.Len(t, sink.Records(), 1)
	m, _ := sink.Records()[0].Metric("Orders")
	assert.Equal(t, []float64{1}, m.Values)
	assert.Equal(t, 2, logs.FilterMessageSnippet("already flushed").Len())
}

func TestScope_EmptyFlush(t *testing.T) {
	t.Run("warns by default", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		e, sink := newTestEmitter(t, Config{}, WithDiagnostics(zap.New(core)))
		_, s := e.OpenScope(context.Background(), nil)

		assert.NoError(t, s.Flush(context.Background()))
		assert.Empty(t, sink.Records())
		assert.Equal(t, 1, logs.FilterMessageSnippet("no metrics").Len())
	})

	t.Run("raises when configured", func(t *testing.T) {
		e, sink := newTestEmitter(t, Config{RaiseOnEmptyMetrics: true})
		_, s := e.OpenScope(context.Background(), nil)

		assert.ErrorIs(t, s.Flush(context.Background()), ErrNoMetrics)
		assert.ErrorIs(t, s.Flush(context.Background()), ErrNoMetrics)
		assert.Empty(t, sink.Records())
	})
}

func TestScope_DisabledDropsRecords(t *testing.T) {
	e, sink := newTestEmitter(t, Config{Disabled: true})
	_, s := e.OpenScope(context.Background(), nil)
	s.PutMetric("Orders", 1, Count)

	require.NoError(t, s.Flush(context.Background()))
	assert.Empty(t, sink.Records())
}

func TestScope_SetDimensionsReplacesDefaults(t *testing.T) {
	e, sink := newTestEmitter(t, Config{})
	_, s := e.OpenScope(context.Background(), nil)

	s.SetDimensions(MustDimensionSet("environment", "prod"))
	s.PutMetric("Orders", 1, Count)
	require.NoError(t, s.Flush(context.Background()))

	rec := sink.Records()[0]
	assert.Equal(t, [][]string{{"environment"}}, rec.DimensionSets)
	assert.Equal(t, map[string]string{"environment": "prod"}, rec.Dimensions)
}

func TestScope_AddDimensionsAppends(t *testing.T) {
	e, sink := newTestEmitter(t, Config{})
	_, s := e.OpenScope(context.Background(), nil)

	s.AddDimensions(MustDimensionSet("environment", "prod", "region", "eu-west-1"))
	s.PutMetric("Orders", 1, Count)
	require.NoError(t, s.Flush(context.Background()))

	rec := sink.Records()[0]
	assert.Equal(t, [][]string{{ServiceDimension}, {"environment", "region"}}, rec.DimensionSets)
	assert.Equal(t, "eu-west-1", rec.Dimensions["region"])
	assert.Equal(t, "payments", rec.Dimensions[ServiceDimension])
}

func TestScope_ConflictingDimensionValuesSplitRecords(t *testing.T) {
	e, sink := newTestEmitter(t, Config{})
	_, s := e.OpenScope(context.Background(), nil)

	s.SetDimensions(
		MustDimensionSet("environment", "prod"),
		MustDimensionSet("environment", "staging"),
		MustDimensionSet("environment", "prod", "region", "eu-west-1"),
	)
	s.PutMetric("Orders", 1, Count)
	require.NoError(t, s.Flush(context.Background()))

	records := sink.Records()
	require.Len(t, records, 2)
	assert.Equal(t, [][]string{{"environment"}, {"environment", "region"}}, records[0].DimensionSets)
	assert.Equal(t, "prod", records[0].Dimensions["environment"])
	assert.Equal(t, [][]string{{"environment"}}, records[1].DimensionSets)
	assert.Equal(t, "staging", records[1].Dimensions["environment"])
}

func TestScope_NoDimensionsIsDegraded(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e, sink := newTestEmitter(t, Config{}, WithDiagnostics(zap.New(core)))
	_, s := e.OpenScope(context.Background(), nil)

	s.SetDimensions()
	s.PutMetric("Orders", 1, Count)
	require.NoError(t, s.Flush(context.Background()))

	require.Len(t, sink.Records(), 1)
	assert.True(t, sink.Records()[0].Degraded)
	assert.Empty(t, sink.Records()[0].DimensionSets)
	assert.Equal(t, 1, logs.FilterMessageSnippet("without dimensions").Len())
}

func TestScope_LargeBatchIsChunked(t *testing.T) {
	e, sink := newTestEmitter(t, Config{})
	_, s := e.OpenScope(context.Background(), nil)

	for i := 0; i < MaxMetricsPerRecord+5; i++ {
		s.PutMetric(fmt.Sprintf("Metric%03d", i), float64(i), Count)
	}
	require.NoError(t, s.Flush(context.Background()))

	records := sink.Records()
	require.Len(t, records, 2)
	assert.Len(t, records[0].Metrics, MaxMetricsPerRecord)
	assert.Len(t, records[1].Metrics, 5)
	assert.Equal(t, "Metric100", records[1].Metrics[0].Name)
}

func TestEmitter_ColdStartMetric(t *testing.T) {
	e, sink := newTestEmitter(t, Config{CaptureColdStart: true})
	inv := &invocation.Invocation{
		ID:           "req-1",
		ColdStart:    true,
		TraceID:      "1-5759e988-bd862e3fe1be46a994272793",
		FunctionName: "book-flight",
	}

	_, s := e.OpenScope(context.Background(), inv)
	require.NoError(t, s.Flush(context.Background()))

	rec := sink.Records()[0]
	m, ok := rec.Metric(ColdStartMetric)
	require.True(t, ok)
	assert.Equal(t, []float64{1}, m.Values)
	assert.Equal(t, "req-1", rec.Metadata[RequestIDProperty])
	assert.Equal(t, inv.TraceID, rec.Metadata[TraceIDProperty])
	assert.Equal(t, "book-flight", rec.Metadata[FunctionNameProperty])

	// A warm invocation does not add the metric.
	_, warm := e.OpenScope(context.Background(), &invocation.Invocation{ID: "req-2"})
	assert.Equal(t, 0, warm.Len())
}

func TestEmitter_WithSingleMetric(t *testing.T) {
	e, sink := newTestEmitter(t, Config{})
	ctx, batch := e.OpenScope(context.Background(), nil)
	batch.PutMetric("Orders", 1, Count)

	err := e.WithSingleMetric(ctx, "Refunds", 3, Count, "operation", func(m *Scope) {
		require.NoError(t, m.SetNamespace("Refunds"))
		m.AddMetadata("booking_id", "abc")
	})
	require.NoError(t, err)

	// The single metric is emitted on its own, before the batch.
	records := sink.Records()
	require.Len(t, records, 1)
	single := records[0]
	assert.Equal(t, "Refunds", single.Namespace)
	assert.Equal(t, [][]string{{"operation"}}, single.DimensionSets)
	assert.Equal(t, "Refunds", single.Dimensions["operation"])
	assert.Equal(t, "abc", single.Metadata["booking_id"])
	_, hasOrders := single.Metric("Orders")
	assert.False(t, hasOrders)

	require.NoError(t, batch.Flush(ctx))
	records = sink.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "ServerlessAirline", records[1].Namespace)
	_, hasRefunds := records[1].Metric("Refunds")
	assert.False(t, hasRefunds)
}

func TestEmitter_WithSingleMetricFlushesOnPanic(t *testing.T) {
	e, sink := newTestEmitter(t, Config{})

	assert.Panics(t, func() {
		_ = e.WithSingleMetric(context.Background(), "Refunds", 1, Count, "operation", func(*Scope) {
			panic("boom")
		})
	})
	assert.Len(t, sink.Records(), 1)
}

func TestEmitter_SinkFailureIsSwallowed(t *testing.T) {
	sink := SinkFunc(func(context.Context, Record) error { return errors.New("throttled") })
	e, err := NewEmitter(Config{Namespace: "ServerlessAirline", Service: "payments"}, sink)
	require.NoError(t, err)

	_, s := e.OpenScope(context.Background(), nil)
	s.PutMetric("Orders", 1, Count)

	assert.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, int64(1), e.Failures())
	assert.Equal(t, int64(0), e.Exported())
}

func TestEmitter_SetDefaultDimensionsKeepsService(t *testing.T) {
	e, sink := newTestEmitter(t, Config{})
	e.SetDefaultDimensions(MustDimensionSet("environment", "prod"))

	_, s := e.OpenScope(context.Background(), nil)
	s.PutMetric("Orders", 1, Count)
	require.NoError(t, s.Flush(context.Background()))

	assert.Equal(t, [][]string{{ServiceDimension, "environment"}}, sink.Records()[0].DimensionSets)
}

func TestNilScopeIsSafe(t *testing.T) {
	var s *Scope
	assert.NotPanics(t, func() {
		s.PutMetric("Orders", 1, Count)
		s.AddMetadata("k", "v")
		s.SetDimensions()
		assert.NoError(t, s.Flush(context.Background()))
	})
	assert.Nil(t, FromContext(context.Background()))
}

func TestValidateDimension_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		name := rapid.StringMatching(`[a-zA-Z][a-zA-Z0-9_]{0,40}`).Draw(rt, "name")
		value := rapid.StringMatching(`[ -~]{0,60}`).Draw(rt, "value")

		err := ValidateDimension(name, value)
		if strings.TrimSpace(value) == "" {
			if !errors.Is(err, ErrInvalidDimension) {
				rt.Fatalf("blank value %q accepted", value)
			}
			return
		}
		if err != nil {
			rt.Fatalf("valid dimension %q=%q rejected: %v", name, value, err)
		}
	})
}

func TestDimensionSet_MaxDimensions(t *testing.T) {
	var d DimensionSet
	for i := 0; i < MaxDimensions; i++ {
		require.NoError(t, d.Add(fmt.Sprintf("d%d", i), "v"))
	}
	assert.ErrorIs(t, d.Add("one-too-many", "v"), ErrInvalidDimension)
	// Overwriting an existing name is still allowed.
	assert.NoError(t, d.Add("d0", "w"))
}

func TestValidateNamespace(t *testing.T) {
	assert.NoError(t, ValidateNamespace("ServerlessAirline"))
	assert.NoError(t, ValidateNamespace("AWS/Lambda_custom.v1#2"))
	assert.Error(t, ValidateNamespace(""))
	assert.Error(t, ValidateNamespace("with space"))
	assert.Error(t, ValidateNamespace(strings.Repeat("a", 256)))
}
