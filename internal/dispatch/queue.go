package dispatch

import (
	"context"
	"sync"
)

// serialQueue is a bounded input queue drained by exactly one goroutine, so
// items are handled in arrival order and never concurrently with each other.
type serialQueue[T any] struct {
	mu      sync.RWMutex
	closed  bool
	queue   chan T
	process func(ctx context.Context, t T)
	done    chan struct{}
}

// newSerialQueue creates and starts a queue with capacity cap.
func newSerialQueue[T any](ctx context.Context, cap int, fn func(context.Context, T)) *serialQueue[T] {
	q := &serialQueue[T]{
		queue:   make(chan T, cap),
		process: fn,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(q.done)
		q.run(ctx)
	}()
	return q
}

func (q *serialQueue[T]) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-q.queue:
			if !ok {
				return
			}
			q.process(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues an item without blocking (returns false if full or drained).
func (q *serialQueue[T]) Submit(t T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.queue <- t:
		return true
	default:
		return false
	}
}

// Drain closes the queue and waits until the consumer has handled what was
// already queued (or its context ended).
func (q *serialQueue[T]) Drain() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	q.mu.Unlock()
	<-q.done
}

// QueueLen returns how many items are currently queued.
func (q *serialQueue[T]) QueueLen() int {
	return len(q.queue)
}

// QueueCap returns the total queue capacity.
func (q *serialQueue[T]) QueueCap() int {
	return cap(q.queue)
}
