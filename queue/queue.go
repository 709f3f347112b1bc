// Package queue implements the typed work queues input threads classify
// messages into (§4.4): new-txn, worker, checkpoint, and a sharded
// execution queue. Every queue is multi-producer, and each push posts to a
// semaphore so an idle consumer blocks instead of busy-spinning (§4.4,
// §5 "Suspension points").
package queue

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

// Queue is a multi-producer, single-or-multi-consumer unbounded ring
// buffer. gammazero/deque provides the amortized O(1) growable ring
// backing store; Queue adds the mutex and the semaphore wakeup so Pop can
// park a consumer goroutine instead of spinning when the queue is empty.
type Queue[T any] struct {
	mu    sync.Mutex
	items deque.Deque[T]
	sem   chan struct{}
}

// New constructs an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{sem: make(chan struct{}, 1)}
}

// Push appends v and wakes one blocked consumer, if any.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items.PushBack(v)
	q.mu.Unlock()
	select {
	case q.sem <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the front item without blocking. ok is false
// if the queue was empty.
func (q *Queue[T]) TryPop() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return v, false
	}
	return q.items.PopFront(), true
}

// Pop blocks until an item is available or ctx is cancelled (§5's
// cooperative-cancellation "stop flag checked at every loop head" maps
// onto ctx here). A consumer thread calls this once per loop iteration.
func (q *Queue[T]) Pop(ctx context.Context) (v T, ok bool) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, true
		}
		select {
		case <-q.sem:
			// Woken by a push; loop back and try again — another
			// consumer may have already drained it (multi-consumer
			// queues, e.g. the worker pool).
			continue
		case <-ctx.Done():
			return v, false
		}
	}
}

// Len reports the current queue depth, used for backpressure decisions
// (§4.5) and instantaneous-depth gauges (§11).
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
