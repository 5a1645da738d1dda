package buffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// ErrIteratorDone is returned by Pop once a queue closed with CloseWrite has
// been drained.
var ErrIteratorDone = errors.New("iterator done")

// Queue is a thread-safe bounded FIFO queue.
//
// The queue is a circular buffer addressed by monotonically increasing head
// and tail counters. Waiters block on a notification channel that is closed
// and replaced on every state change, so that blocking calls can also observe
// context cancellation.
type Queue[T any] struct {
	notify chan struct{}

	mu         sync.Mutex
	buf        []T
	head, tail int64
	closeWrite bool
	closeErr   error

	dropped atomic.Int64
}

// NewQueue creates a queue holding at most size items. Size must be positive.
func NewQueue[T any](size int) *Queue[T] {
	if size <= 0 {
		panic("buffer: queue size must be positive")
	}
	return &Queue[T]{
		notify: make(chan struct{}),
		buf:    make([]T, size),
	}
}

// broadcastLocked wakes every goroutine waiting on the current notify channel.
func (q *Queue[T]) broadcastLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}

func (q *Queue[T]) fullLocked() bool {
	return q.tail-q.head == int64(len(q.buf))
}

func (q *Queue[T]) putLocked(v T) {
	q.buf[q.tail%int64(len(q.buf))] = v
	q.tail++
	q.broadcastLocked()
}

// TryPush appends v without blocking. It reports false, and counts the item
// as dropped, when the queue is full or closed.
func (q *Queue[T]) TryPush(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil || q.closeWrite || q.fullLocked() {
		q.dropped.Add(1)
		return false
	}
	q.putLocked(v)
	return true
}

// Push appends v, blocking while the queue is full.
//
// Returns an error wrapping io.ErrClosedPipe if the queue is closed for
// writing, the close error if the queue was closed with an error, or the
// context error if ctx is done first.
func (q *Queue[T]) Push(ctx context.Context, v T) error {
	for {
		q.mu.Lock()
		if q.closeErr != nil {
			q.mu.Unlock()
			return fmt.Errorf("buffer: push to closed queue: %w", q.closeErr)
		}
		if q.closeWrite {
			q.mu.Unlock()
			return fmt.Errorf("buffer: push to closed queue: %w", io.ErrClosedPipe)
		}
		if !q.fullLocked() {
			q.putLocked(v)
			q.mu.Unlock()
			return nil
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pop removes and returns the oldest item, blocking while the queue is empty.
//
// After CloseWrite, Pop keeps returning buffered items and then returns
// ErrIteratorDone. After CloseWithError, Pop fails immediately.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.closeErr != nil {
			q.mu.Unlock()
			return zero, fmt.Errorf("buffer: pop from closed queue: %w", q.closeErr)
		}
		if q.head < q.tail {
			i := q.head % int64(len(q.buf))
			v := q.buf[i]
			q.buf[i] = zero
			q.head++
			q.broadcastLocked()
			q.mu.Unlock()
			return v, nil
		}
		if q.closeWrite {
			q.mu.Unlock()
			return zero, ErrIteratorDone
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// CloseWrite stops accepting new items. Buffered items remain readable.
// Calling it more than once is a no-op.
func (q *Queue[T]) CloseWrite() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeWrite {
		return nil
	}
	q.closeWrite = true
	q.broadcastLocked()
	return nil
}

// CloseWithError closes both ends immediately. If err is nil,
// io.ErrClosedPipe is used. Only the first error is kept.
func (q *Queue[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr != nil {
		return nil
	}
	q.closeErr = err
	q.closeWrite = true
	q.broadcastLocked()
	return nil
}

// Close is CloseWithError(io.ErrClosedPipe).
func (q *Queue[T]) Close() error {
	return q.CloseWithError(io.ErrClosedPipe)
}

// Error returns the error the queue was closed with, if any.
func (q *Queue[T]) Error() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closeErr
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.tail - q.head)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Dropped returns how many items TryPush has rejected so far.
func (q *Queue[T]) Dropped() int64 {
	return q.dropped.Load()
}
