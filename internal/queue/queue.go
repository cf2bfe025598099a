// Package queue provides the unbounded FIFO used by every single-goroutine
// loop in shopkeep: the store actor, subscription mailboxes and the action bus.
package queue

import "sync"

// FIFO is a thread-safe unbounded first-in first-out queue.
//
// It is unbounded so a producer (an HTTP effect finishing, a store write
// notifying observers) never blocks on a slow consumer.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in consumer loops:
//
//	for {
//	    if v, ok := q.TryDequeue(); ok {
//	        handle(v)
//	        continue
//	    }
//	    select {
//	    case <-ctx.Done():
//	        return
//	    case <-q.Wait():
//	        if q.Closed() && q.Len() == 0 {
//	            return
//	        }
//	    }
//	}
type FIFO[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{} // buffered, size 1; closed on Close
}

// New creates an empty queue.
func New[T any]() *FIFO[T] {
	return &FIFO[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds v to the back of the queue.
// Safe from any goroutine. Returns false if the queue is closed.
func (q *FIFO[T]) Enqueue(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, v)

	// Non-blocking: a buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front item without blocking.
// Returns (zero, false) if the queue is empty. Items still queued when the
// queue is closed remain dequeueable.
func (q *FIFO[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]

	// Clear the slot so the backing array does not pin the item.
	q.items[0] = zero

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return v, true
}

// Dequeue blocks until an item is available or the queue is closed and
// drained, in which case it returns (zero, false).
func (q *FIFO[T]) Dequeue() (T, bool) {
	for {
		if v, ok := q.TryDequeue(); ok {
			return v, true
		}
		if q.Closed() && q.Len() == 0 {
			var zero T
			return zero, false
		}
		<-q.signal
	}
}

// Wait returns a channel that signals when items may be available.
// The channel is closed once the queue is closed.
func (q *FIFO[T]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *FIFO[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *FIFO[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and wakes every waiter.
// Calling Close more than once is a no-op.
func (q *FIFO[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
