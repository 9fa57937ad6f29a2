// Package async provides the bounded background queue that remote sinks use
// so that exporting never runs on the invocation's return path.
package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("async: batcher closed")

// SendFunc delivers one batch. It runs on the batcher's goroutine only.
type SendFunc[T any] func(ctx context.Context, batch []T) error

// Options tunes a Batcher. Zero fields take the defaults below.
type Options struct {
	// Capacity is the number of items that may wait in the queue.
	Capacity int
	// MaxBatch is the largest batch handed to SendFunc.
	MaxBatch int
	// Interval is how often a partial batch is sent.
	Interval time.Duration
	// SendTimeout bounds a single SendFunc call.
	SendTimeout time.Duration
	// OnError observes failed sends together with the size of the lost batch.
	OnError func(err error, lost int)
}

const (
	defaultCapacity    = 1024
	defaultMaxBatch    = 20
	defaultInterval    = 10 * time.Second
	defaultSendTimeout = 5 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Capacity <= 0 {
		o.Capacity = defaultCapacity
	}
	if o.MaxBatch <= 0 {
		o.MaxBatch = defaultMaxBatch
	}
	if o.Interval <= 0 {
		o.Interval = defaultInterval
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = defaultSendTimeout
	}
	return o
}

// Batcher buffers items and sends them in batches from a single goroutine.
// Enqueue never blocks: when the buffer is full the item is dropped and
// counted.
type Batcher[T any] struct {
	opts    Options
	send    SendFunc[T]
	items   chan T
	flushes chan chan struct{}
	quit    chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	dropped   atomic.Int64
	failed    atomic.Int64
}

// New starts a batcher that delivers through send.
func New[T any](opts Options, send SendFunc[T]) *Batcher[T] {
	opts = opts.withDefaults()
	b := &Batcher[T]{
		opts:    opts,
		send:    send,
		items:   make(chan T, opts.Capacity),
		flushes: make(chan chan struct{}),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Enqueue queues item and reports whether it was accepted.
func (b *Batcher[T]) Enqueue(item T) bool {
	select {
	case <-b.quit:
		b.dropped.Add(1)
		return false
	default:
	}

	select {
	case b.items <- item:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Flush sends everything queued so far and waits until it has been handed
// to SendFunc, or until ctx is done.
func (b *Batcher[T]) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case b.flushes <- ack:
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the goroutine.
func (b *Batcher[T]) Close(ctx context.Context) error {
	b.closeOnce.Do(func() { close(b.quit) })
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the number of items rejected because the queue was full
// or closed.
func (b *Batcher[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Failed returns the number of items lost to send errors.
func (b *Batcher[T]) Failed() int64 {
	return b.failed.Load()
}

func (b *Batcher[T]) run() {
	defer close(b.done)

	ticker := time.NewTicker(b.opts.Interval)
	defer ticker.Stop()

	batch := make([]T, 0, b.opts.MaxBatch)
	for {
		select {
		case item := <-b.items:
			batch = append(batch, item)
			if len(batch) >= b.opts.MaxBatch {
				batch = b.deliver(batch)
			}
		case ack := <-b.flushes:
			batch = b.drain(batch)
			batch = b.deliver(batch)
			close(ack)
		case <-ticker.C:
			batch = b.deliver(batch)
		case <-b.quit:
			batch = b.drain(batch)
			b.deliver(batch)
			return
		}
	}
}

// drain moves everything currently queued into batch, delivering full
// batches on the way.
func (b *Batcher[T]) drain(batch []T) []T {
	for {
		select {
		case item := <-b.items:
			batch = append(batch, item)
			if len(batch) >= b.opts.MaxBatch {
				batch = b.deliver(batch)
			}
		default:
			return batch
		}
	}
}

func (b *Batcher[T]) deliver(batch []T) []T {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.opts.SendTimeout)
	err := b.send(ctx, batch)
	cancel()

	if err != nil {
		b.failed.Add(int64(len(batch)))
		if b.opts.OnError != nil {
			b.opts.OnError(err, len(batch))
		}
	}
	return batch[:0]
}
