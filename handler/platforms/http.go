package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"powertools/handler"
	"powertools/invocation"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Invocation paths served by the HTTP adapter. RuntimeInvokePath is the
// path of the Lambda Runtime Interface Emulator, so local tooling that
// targets the emulator works unchanged.
const (
	InvokePath        = "/invoke"
	RuntimeInvokePath = "/2015-03-31/functions/function/invocations"
)

// SourceHTTP marks requests delivered by the HTTP adapter.
const SourceHTTP = "http"

// HTTPAdapter serves invocations over HTTP for local development and
// container deployments. Each POST is one invocation.
type HTTPAdapter struct {
	handler        *handler.Handler
	router         chi.Router
	metricsHandler http.Handler
}

// HTTPOption configures an HTTPAdapter.
type HTTPOption func(*HTTPAdapter)

// WithMetricsHandler serves h on /metrics instead of the default
// Prometheus registry.
func WithMetricsHandler(h http.Handler) HTTPOption {
	return func(a *HTTPAdapter) { a.metricsHandler = h }
}

// NewHTTPAdapter creates a new HTTP adapter with the provided handler.
func NewHTTPAdapter(h *handler.Handler, opts ...HTTPOption) *HTTPAdapter {
	a := &HTTPAdapter{handler: h, metricsHandler: promhttp.Handler()}
	for _, opt := range opts {
		opt(a)
	}
	a.router = a.routes()
	return a
}

func (a *HTTPAdapter) routes() chi.Router {
	cfg := a.handler.Config()
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	r.Post(InvokePath, a.handleInvoke)
	r.Post(RuntimeInvokePath, a.handleInvoke)

	if cfg.EnableHealth {
		for _, path := range []string{"/health", "/healthz", "/ready", "/readyz", "/live", "/livez"} {
			r.Get(path, a.handleHealth)
		}
	}
	if cfg.EnableMetrics && a.metricsHandler != nil {
		r.Handle("/metrics", a.metricsHandler)
	}
	return r
}

// ServeHTTP implements the http.Handler interface, allowing the adapter
// to be used with any standard HTTP server or router.
func (a *HTTPAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *HTTPAdapter) handleInvoke(w http.ResponseWriter, r *http.Request) {
	body, err := a.readBody(r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	req := a.buildRequest(r, body)
	w.Header().Set("X-Request-ID", req.ID)

	ctx := invocation.WithTraceHeader(r.Context(), r.Header.Get("X-Amzn-Trace-Id"))
	resp, err := a.handler.Handle(ctx, req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, handler.ErrInvalidPayload) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleHealth handles health check requests
func (a *HTTPAdapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := a.handler.Health(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "healthy",
		"worker": a.handler.Worker().Name(),
		"time":   time.Now().UTC(),
	})
}

// readBody reads the body up to HANDLER_MAX_REQUEST_SIZE bytes.
func (a *HTTPAdapter) readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()

	maxSize := a.handler.Config().MaxRequestSize
	if maxSize <= 0 {
		return io.ReadAll(r.Body)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > maxSize {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxSize)
	}
	return body, nil
}

// buildRequest creates a platform-agnostic request from HTTP request
func (a *HTTPAdapter) buildRequest(r *http.Request, body []byte) handler.Request {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = chimiddleware.GetReqID(r.Context())
	}

	return handler.Request{
		ID:        requestID,
		Source:    SourceHTTP,
		Payload:   json.RawMessage(body),
		Metadata:  extractMetadata(r),
		Timestamp: time.Now().UTC(),
	}
}

// extractMetadata builds metadata from HTTP request
func extractMetadata(r *http.Request) map[string]string {
	metadata := map[string]string{
		"http_method": r.Method,
		"http_path":   r.URL.Path,
		"http_host":   r.Host,
		"remote_addr": r.RemoteAddr,
	}

	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			metadata["query_"+key] = values[0]
		}
	}

	for _, header := range []string{"Content-Type", "User-Agent", "X-Amzn-Trace-Id", "Authorization"} {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		if header == "Authorization" {
			if strings.HasPrefix(value, "Bearer ") {
				value = "Bearer [REDACTED]"
			} else {
				value = "[REDACTED]"
			}
		}
		metadata["header_"+strings.ToLower(strings.ReplaceAll(header, "-", "_"))] = value
	}
	return metadata
}

// invokeError mirrors the error body of the Lambda runtime.
type invokeError struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorType    string `json:"errorType"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(invokeError{
		ErrorMessage: err.Error(),
		ErrorType:    fmt.Sprintf("%T", err),
	})
}

// Serve starts an HTTP server on addr and shuts it down when ctx is done.
func (a *HTTPAdapter) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
