// Package cloudwatch exports logs through PutLogEvents and metrics through
// PutMetricData. Both sinks queue in memory and send from a background
// goroutine; the chain flushes them at the end of every invocation.
package cloudwatch

import (
	"errors"

	"powertools/infrastructure/observability/adapters/breaker"
	"powertools/internal/async"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when an item is dropped because the send queue
// is full.
var ErrQueueFull = errors.New("cloudwatch: send queue full")

type options struct {
	diag    *zap.Logger
	breaker *breaker.Breaker
	batch   async.Options
}

// Option configures a sink.
type Option func(*options)

// WithDiagnostics sets the logger for send failures.
func WithDiagnostics(diag *zap.Logger) Option {
	return func(o *options) {
		if diag != nil {
			o.diag = diag
		}
	}
}

// WithBreaker guards every API call with b.
func WithBreaker(b *breaker.Breaker) Option {
	return func(o *options) { o.breaker = b }
}

// WithBatchOptions tunes the send queue.
func WithBatchOptions(batch async.Options) Option {
	return func(o *options) { o.batch = batch }
}

func buildOptions(name string, maxBatch int, opts []Option) options {
	o := options{diag: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.breaker == nil {
		o.breaker = breaker.New(breaker.DefaultConfig(name), o.diag)
	}
	if o.batch.MaxBatch <= 0 || o.batch.MaxBatch > maxBatch {
		o.batch.MaxBatch = maxBatch
	}
	diag := o.diag
	o.batch.OnError = func(err error, lost int) {
		diag.Warn("cloudwatch send failed", zap.String("sink", name), zap.Int("lost", lost), zap.Error(err))
	}
	return o
}
