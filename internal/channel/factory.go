//go:build !debug

package channel

// New returns a buffered channel of the given size. Telemetry samples use it
// so that a slow backend never stalls the tick loop.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](size)
}
