// Package queue provides a mutex-guarded FIFO used to batch work between a
// producer and a periodic consumer.
package queue

import (
	"sync"
)

// Queue is a generic thread-safe queue. A bounded queue keeps the newest
// items, discarding the oldest ones once it holds limit items.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	limit int
}

// New creates a new empty queue. A limit of 0 means unbounded.
func New[T any](limit int) *Queue[T] {
	if limit < 0 {
		limit = 0
	}
	return &Queue[T]{
		items: make([]T, 0),
		limit: limit,
	}
}

// Push appends items and returns how many old items were discarded to stay
// within the limit.
func (q *Queue[T]) Push(items ...T) (discarded int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	if q.limit > 0 && len(q.items) > q.limit {
		discarded = len(q.items) - q.limit
		q.items = append(q.items[:0], q.items[discarded:]...)
	}
	return discarded
}

// Empty returns true if the queue has no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// GetAndEmpty returns all items and clears the queue.
func (q *Queue[T]) GetAndEmpty() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, cap(q.items))
	return result
}
