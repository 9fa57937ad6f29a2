// Package handler runs a function's invocations through the logging,
// tracing and metrics interceptors.
//
// A Chain owns the process-wide observability state and wraps each
// invocation; a Handler binds a Worker and its middleware to a Chain; the
// Factory builds both from configuration. Platform adapters in the
// platforms package deliver events to Handler.Handle.
package handler

import (
	"context"

	"powertools/config"
)

// Handler is the main handler that wraps a Worker with the invocation
// chain and the middleware stack.
type Handler struct {
	worker      Worker
	chain       *Chain
	middlewares []Middleware
	config      *config.HandlerConfig
}

// NewHandler creates a new handler for worker on chain.
// This is the low-level constructor - most users should use the Factory instead.
func NewHandler(worker Worker, chain *Chain) *Handler {
	return &Handler{
		worker:      worker,
		chain:       chain,
		config:      &chain.Config().Handler,
		middlewares: []Middleware{},
	}
}

// Use adds middleware to the handler chain.
// Middleware is executed in the order it's added.
func (h *Handler) Use(middleware Middleware) {
	h.middlewares = append(h.middlewares, middleware)
}

// Handle processes a request through the interceptors, the middleware and
// the worker. When ctx carries no deadline, HANDLER_TIMEOUT applies.
func (h *Handler) Handle(ctx context.Context, req Request) (any, error) {
	if _, ok := ctx.Deadline(); !ok && h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	return h.chain.Invoke(ctx, h.buildHandlerChain(), req)
}

// buildHandlerChain builds the middleware chain with the worker at the end.
// Middleware is applied in reverse order so that the first middleware
// added is the outermost layer.
func (h *Handler) buildHandlerChain() HandlerFunc {
	handler := HandlerFunc(h.worker.Process)

	for i := len(h.middlewares) - 1; i >= 0; i-- {
		handler = h.middlewares[i](handler)
	}

	return handler
}

// Health checks the health of the worker.
func (h *Handler) Health(ctx context.Context) error {
	return h.worker.Health(ctx)
}

// Chain returns the invocation chain.
func (h *Handler) Chain() *Chain {
	return h.chain
}

// Config returns the handler configuration.
func (h *Handler) Config() *config.HandlerConfig {
	return h.config
}

// Worker returns the underlying worker.
func (h *Handler) Worker() Worker {
	return h.worker
}
