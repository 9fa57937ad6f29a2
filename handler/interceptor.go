package handler

import (
	"context"

	"powertools/invocation"
)

// Outcome is how an invocation ended, as seen by the interceptors when they
// close. Exactly one of Err, Panic and TimedOut describes a failure; when
// none is set the handler returned Response.
type Outcome struct {
	Response any
	Err      error
	// Panic is the value recovered from the handler. The chain re-panics
	// with it once every interceptor is closed.
	Panic any
	// TimedOut is set when the runtime deadline was about to expire and the
	// handler had not returned.
	TimedOut bool
}

// Failed reports whether the invocation did not complete successfully.
func (o Outcome) Failed() bool {
	return o.Err != nil || o.Panic != nil || o.TimedOut
}

// Interceptor opens a per-invocation scope around the handler. Interceptors
// open in chain order and are closed in reverse order.
type Interceptor interface {
	Name() string
	// Open returns the context the rest of the chain runs with and the
	// closer of the scope. When Open fails the interceptors opened before
	// it are closed and the error is returned to the caller.
	Open(ctx context.Context, inv *invocation.Invocation, req Request) (context.Context, Closer, error)
}

// Closer ends the scope opened by an Interceptor. The chain calls it
// exactly once per invocation.
type Closer interface {
	Close(ctx context.Context, out Outcome) error
}

// CloserFunc adapts a function to the Closer interface.
type CloserFunc func(ctx context.Context, out Outcome) error

// Close calls f(ctx, out).
func (f CloserFunc) Close(ctx context.Context, out Outcome) error { return f(ctx, out) }

// InterceptorFunc builds an Interceptor from a name and an open function.
func InterceptorFunc(name string, open func(ctx context.Context, inv *invocation.Invocation, req Request) (context.Context, Closer, error)) Interceptor {
	return funcInterceptor{name: name, open: open}
}

type funcInterceptor struct {
	name string
	open func(ctx context.Context, inv *invocation.Invocation, req Request) (context.Context, Closer, error)
}

func (f funcInterceptor) Name() string { return f.name }

func (f funcInterceptor) Open(ctx context.Context, inv *invocation.Invocation, req Request) (context.Context, Closer, error) {
	return f.open(ctx, inv, req)
}
