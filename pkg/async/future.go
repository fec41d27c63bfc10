// Package async runs a blocking call on its own goroutine and hands the
// caller a Future to collect the result later.
package async

import "context"

// Future is the pending result of a call started with Go.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go starts fn on a new goroutine. ctx is passed through to fn; cancelling it
// is how a caller abandons the work.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn(ctx)
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is ready or ctx is done. Abandoning a
// Future through ctx does not stop the underlying call.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
