package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]int
	err     error
}

func (r *recorder) send(_ context.Context, batch []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]int(nil), batch...))
	return r.err
}

func (r *recorder) all() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func TestBatcher_FlushDeliversQueuedItems(t *testing.T) {
	rec := &recorder{}
	b := New(Options{MaxBatch: 3, Interval: time.Hour}, rec.send)
	defer b.Close(context.Background())

	for i := 1; i <= 7; i++ {
		require.True(t, b.Enqueue(i))
	}
	require.NoError(t, b.Flush(context.Background()))

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, rec.all())
	for _, batch := range rec.batches {
		assert.LessOrEqual(t, len(batch), 3)
	}
}

func TestBatcher_DropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	b := New(Options{Capacity: 1, MaxBatch: 1, Interval: time.Hour}, func(context.Context, []int) error {
		<-block
		return nil
	})

	// The first item is picked up by the goroutine and blocks in send,
	// the second fills the queue, the rest are dropped.
	b.Enqueue(1)
	assert.Eventually(t, func() bool { return b.Enqueue(2) }, time.Second, time.Millisecond)
	assert.False(t, b.Enqueue(3))
	assert.GreaterOrEqual(t, b.Dropped(), int64(1))

	close(block)
	require.NoError(t, b.Close(context.Background()))
}

func TestBatcher_SendErrorsAreCounted(t *testing.T) {
	rec := &recorder{err: errors.New("throttled")}
	var lost int
	b := New(Options{MaxBatch: 10, Interval: time.Hour, OnError: func(err error, n int) {
		lost += n
	}}, rec.send)

	b.Enqueue(1)
	b.Enqueue(2)
	require.NoError(t, b.Flush(context.Background()))
	require.NoError(t, b.Close(context.Background()))

	assert.Equal(t, int64(2), b.Failed())
	assert.Equal(t, 2, lost)
}

func TestBatcher_CloseDrainsAndRejects(t *testing.T) {
	rec := &recorder{}
	b := New(Options{Interval: time.Hour}, rec.send)

	b.Enqueue(1)
	require.NoError(t, b.Close(context.Background()))
	assert.Equal(t, []int{1}, rec.all())

	assert.False(t, b.Enqueue(2))
	assert.ErrorIs(t, b.Flush(context.Background()), ErrClosed)
	assert.NoError(t, b.Close(context.Background()))
}
