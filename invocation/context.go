package invocation

import "context"

type contextKey struct{}

// NewContext returns a copy of ctx carrying inv.
func NewContext(ctx context.Context, inv *Invocation) context.Context {
	return context.WithValue(ctx, contextKey{}, inv)
}

// FromContext returns the Invocation stored in ctx, if any.
func FromContext(ctx context.Context) (*Invocation, bool) {
	inv, ok := ctx.Value(contextKey{}).(*Invocation)
	return inv, ok && inv != nil
}

// WithTraceHeader attaches an X-Ray trace header to ctx under the key the
// Lambda runtime uses, so adapters outside Lambda can propagate an incoming
// X-Amzn-Trace-Id header.
func WithTraceHeader(ctx context.Context, raw string) context.Context {
	if raw == "" {
		return ctx
	}
	//nolint:staticcheck // same untyped key as aws-lambda-go
	return context.WithValue(ctx, traceHeaderKey, raw)
}
