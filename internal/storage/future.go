package storage

import (
	"context"
	"sync"
)

// Future is the eventual result of a storage operation. It completes
// exactly once.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future that has already finished with v and err.
func Completed[T any](v T, err error) *Future[T] {
	f := newFuture[T]()
	f.complete(v, err)
	return f
}

func (f *Future[T]) complete(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the result is ready or ctx ends. A cancelled ctx
// stops the wait only; the operation itself keeps running.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks until the result is ready.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// Err waits and returns only the error.
func (f *Future[T]) Err() error {
	_, err := f.Wait()
	return err
}
