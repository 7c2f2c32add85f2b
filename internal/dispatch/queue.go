// Package dispatch provides the hand-off between the change listener and the
// sync consumer: an unbounded FIFO of artifact paths with one producer and one
// consumer.
package dispatch

import (
	"context"
	"sync"

	"github.com/stacklok/view-exporter/internal/resource"
)

// Queue is an unbounded FIFO of artifact paths.
//
// Emit never blocks, so a slow consumer cannot stall the producer. The queue
// grows without limit instead; there is no backpressure.
type Queue struct {
	mu     sync.Mutex
	items  []string
	closed bool
	signal chan struct{} // buffered, size 1
}

var _ resource.Sink = (*Queue)(nil)

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{
		items:  make([]string, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Emit appends path to the back of the queue.
// Paths emitted after Close are dropped.
func (q *Queue) Emit(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.items = append(q.items, path)

	// Non-blocking; the buffer of 1 coalesces wakeups
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Close marks the end of the stream. Items already queued remain available.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Next removes and returns the front path, blocking until one is available.
// It returns ok=false once the queue is closed and empty, or the context
// error if ctx is done first.
func (q *Queue) Next(ctx context.Context) (path string, ok bool, err error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			path = q.pop()
			q.mu.Unlock()
			return path, true, nil
		}
		if q.closed {
			q.mu.Unlock()
			return "", false, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-q.signal:
		}
	}
}

// Drain removes and returns every queued path in order without blocking
func (q *Queue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	items := q.items
	q.items = make([]string, 0, 64)
	return items
}

// Len returns the number of queued paths
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// pop removes the front item; q.mu must be held
func (q *Queue) pop() string {
	path := q.items[0]
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return path
}
