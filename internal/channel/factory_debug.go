//go:build debug

package channel

// New ignores size and returns an unbuffered channel, so that debug builds
// surface every sample a slow consumer would drop.
func New[T any](size int) Channel[T] {
	return NewUnbuffered[T]()
}
