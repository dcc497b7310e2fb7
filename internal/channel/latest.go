package channel

import (
	"sync"
	"sync/atomic"
)

// Latest is a single-slot register. Store replaces whatever value is held
// and never blocks; readers either peek with Load or consume with Take.
// A pending value that is overwritten before it is taken is lost.
type Latest[T any] struct {
	v      atomic.Pointer[T]
	ready  chan struct{}
	done   chan struct{}
	closed sync.Once
}

// NewLatest creates an empty register
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Store replaces the held value and wakes a waiting reader. It reports
// whether an untaken value was overwritten.
func (l *Latest[T]) Store(v T) (overwrote bool) {
	old := l.v.Swap(&v)
	select {
	case l.ready <- struct{}{}:
	default:
	}
	return old != nil
}

// Load returns the held value without consuming it
func (l *Latest[T]) Load() (T, bool) {
	p := l.v.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Take returns the held value and empties the register
func (l *Latest[T]) Take() (T, bool) {
	p := l.v.Swap(nil)
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Ready is signalled after a Store. A signal may be spurious if the value
// was already taken.
func (l *Latest[T]) Ready() <-chan struct{} {
	return l.ready
}

// Done is closed by Close
func (l *Latest[T]) Done() <-chan struct{} {
	return l.done
}

// Close wakes readers blocked on Done. It is safe to call more than once.
// The held value stays readable.
func (l *Latest[T]) Close() {
	l.closed.Do(func() { close(l.done) })
}
