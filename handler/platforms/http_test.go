package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"powertools/config"
	"powertools/handler"
	"powertools/logger"
	"powertools/mocks"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHTTPAdapter_Invoke(t *testing.T) {
	for _, path := range []string{InvokePath, RuntimeInvokePath} {
		t.Run(path, func(t *testing.T) {
			mockWorker := &mocks.MockWorker{}
			mockWorker.On("Process", mock.Anything, mock.MatchedBy(func(req handler.Request) bool {
				return req.Source == SourceHTTP && req.ID == "test-123"
			})).Return(map[string]string{"result": "success"}, nil)

			h, rec := newTestHandler(t, mockWorker, nil)
			adapter := NewHTTPAdapter(h)

			req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(`{"test": "data"}`))
			req.Header.Set("X-Request-ID", "test-123")
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			adapter.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "test-123", w.Header().Get("X-Request-ID"))
			assert.JSONEq(t, `{"result":"success"}`, w.Body.String())
			mockWorker.AssertExpectations(t)
			assert.Len(t, rec.traces.Roots(), 1)
		})
	}
}

func TestHTTPAdapter_RequestIDBecomesInvocationID(t *testing.T) {
	h, rec := newTestHandler(t, handler.WorkerFunc("echo", func(ctx context.Context, req handler.Request) (any, error) {
		logger.FromContext(ctx).Info("handled")
		return req.Metadata, nil
	}), nil)

	req := httptest.NewRequest(http.MethodPost, InvokePath+"?debug=1", strings.NewReader(`{}`))
	req.Header.Set("X-Request-ID", "local-42")
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	NewHTTPAdapter(h).ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var metadata map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metadata))
	assert.Equal(t, "POST", metadata["http_method"])
	assert.Equal(t, "1", metadata["query_debug"])
	assert.Equal(t, "Bearer [REDACTED]", metadata["header_authorization"])

	require.Len(t, rec.logs.Records(), 1)
	assert.Equal(t, "local-42", rec.logs.Records()[0].Fields[logger.FieldFunctionRequestID])
}

func TestHTTPAdapter_TraceHeaderPropagates(t *testing.T) {
	h, rec := newTestHandler(t, handler.WorkerFunc("traced", func(context.Context, handler.Request) (any, error) {
		return nil, nil
	}), nil)

	req := httptest.NewRequest(http.MethodPost, InvokePath, strings.NewReader(`{}`))
	req.Header.Set("X-Amzn-Trace-Id", "Root=1-5759e988-bd862e3fe1be46a994272793;Parent=53995c3f42cd8ad8;Sampled=1")
	w := httptest.NewRecorder()
	NewHTTPAdapter(h).ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	root := rec.traces.Roots()[0]
	assert.Equal(t, "1-5759e988-bd862e3fe1be46a994272793", root.TraceID)
	assert.Equal(t, "53995c3f42cd8ad8", root.ParentID)
	assert.True(t, root.Sampled)
}

func TestHTTPAdapter_Errors(t *testing.T) {
	t.Run("worker error", func(t *testing.T) {
		mockWorker := &mocks.MockWorker{}
		mockWorker.ExpectProcessAny(nil, errors.New("card declined"))
		h, _ := newTestHandler(t, mockWorker, nil)

		w := httptest.NewRecorder()
		NewHTTPAdapter(h).ServeHTTP(w, httptest.NewRequest(http.MethodPost, InvokePath, strings.NewReader(`{}`)))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var body invokeError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "card declined", body.ErrorMessage)
	})

	t.Run("invalid json", func(t *testing.T) {
		mockWorker := &mocks.MockWorker{}
		h, _ := newTestHandler(t, mockWorker, nil)

		w := httptest.NewRecorder()
		NewHTTPAdapter(h).ServeHTTP(w, httptest.NewRequest(http.MethodPost, InvokePath, strings.NewReader(`{"a":`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockWorker.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
	})

	t.Run("body too large", func(t *testing.T) {
		mockWorker := &mocks.MockWorker{}
		h, _ := newTestHandler(t, mockWorker, func(cfg *config.Config) {
			cfg.Handler.MaxRequestSize = 8
		})

		w := httptest.NewRecorder()
		NewHTTPAdapter(h).ServeHTTP(w, httptest.NewRequest(http.MethodPost, InvokePath, strings.NewReader(`{"amount":42}`)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		mockWorker.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
	})

	t.Run("method not allowed", func(t *testing.T) {
		h, _ := newTestHandler(t, &mocks.MockWorker{}, nil)

		w := httptest.NewRecorder()
		NewHTTPAdapter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, InvokePath, nil))

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestHTTPAdapter_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		mockWorker := &mocks.MockWorker{}
		mockWorker.On("Health", mock.Anything).Return(nil)
		mockWorker.On("Name").Return("payments")
		h, _ := newTestHandler(t, mockWorker, nil)

		w := httptest.NewRecorder()
		NewHTTPAdapter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "payments", body["worker"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		mockWorker := &mocks.MockWorker{}
		mockWorker.On("Health", mock.Anything).Return(errors.New("queue unreachable"))
		h, _ := newTestHandler(t, mockWorker, nil)

		w := httptest.NewRecorder()
		NewHTTPAdapter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "queue unreachable")
	})

	t.Run("disabled", func(t *testing.T) {
		h, _ := newTestHandler(t, &mocks.MockWorker{}, func(cfg *config.Config) {
			cfg.Handler.EnableHealth = false
		})

		w := httptest.NewRecorder()
		NewHTTPAdapter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHTTPAdapter_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "orders_total", Help: "Orders."})
	registry.MustRegister(counter)
	counter.Inc()

	h, _ := newTestHandler(t, &mocks.MockWorker{}, nil)
	adapter := NewHTTPAdapter(h, WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	w := httptest.NewRecorder()
	adapter.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "orders_total 1")
}
