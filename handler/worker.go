package handler

import (
	"context"
)

// Worker defines the interface that each function must implement.
// This is the business logic of the function; it never deals with logging
// scopes, segments or metric batches directly but reaches them through the
// context it is given.
type Worker interface {
	// Name returns the worker name. It names the root trace segment.
	Name() string

	// Process handles one invocation. The response and the error are
	// returned to the platform unchanged.
	Process(ctx context.Context, request Request) (any, error)

	// Health checks if the worker is healthy and ready to process requests.
	// It is served by the HTTP adapter.
	Health(ctx context.Context) error
}

// WorkerFunc turns a HandlerFunc into a Worker with an always healthy
// health check.
func WorkerFunc(name string, fn HandlerFunc) Worker {
	return funcWorker{name: name, fn: fn}
}

type funcWorker struct {
	name string
	fn   HandlerFunc
}

func (w funcWorker) Name() string { return w.name }

func (w funcWorker) Process(ctx context.Context, request Request) (any, error) {
	return w.fn(ctx, request)
}

func (w funcWorker) Health(context.Context) error { return nil }
