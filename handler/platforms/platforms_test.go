package platforms

import (
	"testing"

	"powertools/config"
	"powertools/handler"
	"powertools/invocation"
	"powertools/logger"
	"powertools/metrics"
	"powertools/tracer"

	"github.com/stretchr/testify/require"
)

type recorded struct {
	logs    *logger.MemorySink
	traces  *tracer.MemoryExporter
	metrics *metrics.MemorySink
}

// newTestHandler wires w to a chain over in-memory sinks.
func newTestHandler(t *testing.T, w handler.Worker, mutate func(cfg *config.Config)) (*handler.Handler, recorded) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ServiceName = "payments"
	cfg.Metrics.Namespace = "ServerlessAirline"
	if mutate != nil {
		mutate(cfg)
	}

	rec := recorded{
		logs:    logger.NewMemorySink(),
		traces:  tracer.NewMemoryExporter(),
		metrics: metrics.NewMemorySink(),
	}
	chain, err := handler.NewChain(cfg, handler.Sinks{Log: rec.logs, Trace: rec.traces, Metrics: rec.metrics},
		handler.WithProcess(invocation.NewProcess()))
	require.NoError(t, err)

	h := handler.NewHandler(w, chain)
	h.Use(handler.Validation(cfg.Handler.MaxRequestSize))
	return h, rec
}
