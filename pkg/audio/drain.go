package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when tearing down a session while its
// event stream is still live.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
