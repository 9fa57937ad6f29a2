package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"powertools/logger"

	"go.uber.org/zap"
)

// Middleware wraps the handler inside the interceptors, so it runs with
// the invocation's logging scope, segment and metric batch in its context.
type Middleware func(next HandlerFunc) HandlerFunc

// Recovery turns a panic into a *PanicError carrying the stack. The root
// segment is still closed with the FAULT status. Without it a panic closes
// the scopes and continues up to the runtime.
func Recovery() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (resp any, err error) {
			defer func() {
				if r := recover(); r != nil {
					stack := debug.Stack()
					logger.FromContext(ctx).Error("Panic recovered",
						zap.Any("panic", r), zap.ByteString("stack", stack))
					resp = nil
					err = &PanicError{Value: r, Stack: stack}
				}
			}()
			return next(ctx, req)
		}
	}
}

// Validation rejects payloads that are not JSON or exceed maxSize bytes
// before they reach the worker. A maxSize of zero disables the size check.
func Validation(maxSize int64) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (any, error) {
			if maxSize > 0 && int64(len(req.Payload)) > maxSize {
				return nil, fmt.Errorf("%w: %d bytes exceeds the limit of %d", ErrInvalidPayload, len(req.Payload), maxSize)
			}
			if len(req.Payload) > 0 && !json.Valid(req.Payload) {
				return nil, fmt.Errorf("%w: payload must be valid JSON", ErrInvalidPayload)
			}
			return next(ctx, req)
		}
	}
}

// Typed adapts a function taking and returning Go values to a HandlerFunc.
// The payload is decoded into In; the Out value is returned as the
// response.
func Typed[In, Out any](fn func(ctx context.Context, in In) (Out, error)) HandlerFunc {
	return func(ctx context.Context, req Request) (any, error) {
		var in In
		if len(req.Payload) > 0 {
			if err := req.Unmarshal(&in); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		}
		return fn(ctx, in)
	}
}
