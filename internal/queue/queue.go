// Package queue implements the bounded, blocking FIFO that backs every
// producer/consumer pipeline in this transport: the server's receive and
// send pipelines, and any other internal fan-in/fan-out stage that needs
// non-blocking enqueue with a blocking, cancellation-aware dequeue.
package queue

import "context"

// Queue is a fixed-capacity FIFO of T. The zero value is not usable; use
// New. A Queue is safe for concurrent use by multiple producers and
// consumers.
type Queue[T any] struct {
	ch chan T
}

// New creates a Queue with the given capacity, which must be > 0.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TryEnqueue stores item without blocking. It returns false if the queue is
// at capacity; the caller owns item in that case and must drop it or retry.
// This is the only load-shedding mechanism in the pipelines built on Queue.
func (q *Queue[T]) TryEnqueue(item T) bool {
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

// Dequeue blocks until an item is available, the queue is closed and
// drained, or ctx is done. ok is false only in the closed-and-drained case
// (the poison-pill condition) or when ctx is done; callers should treat
// either as "stop consuming."
func (q *Queue[T]) Dequeue(ctx context.Context) (item T, ok bool) {
	select {
	case item, ok = <-q.ch:
		return item, ok
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// IsEmpty reports whether the queue currently holds no items. Advisory: the
// result may be stale by the time the caller observes it.
func (q *Queue[T]) IsEmpty() bool { return len(q.ch) == 0 }

// IsFull reports whether the queue is currently at capacity. Advisory, as IsEmpty.
func (q *Queue[T]) IsFull() bool { return len(q.ch) == cap(q.ch) }

// Len returns the current advisory item count.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap returns the queue's fixed capacity.
func (q *Queue[T]) Cap() int { return cap(q.ch) }

// Close closes the queue so that blocked and future Dequeue calls observe
// ok=false once drained, then applies drop to every item still buffered.
// A closed channel state stands in for a shutdown sentinel value: Dequeue's
// ok return already distinguishes "real item" from "shutting down."
func (q *Queue[T]) Close(drop func(T)) {
	close(q.ch)
	if drop == nil {
		return
	}
	for item := range q.ch {
		drop(item)
	}
}
