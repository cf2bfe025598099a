// Package task wraps an in-flight computation with an explicit cancel.
//
// A Task delivers exactly one Result on Done, unless Cancel was called
// first. A canceled task never delivers: callers that need to know about
// cancellation must track it themselves (the epic does so with cancel
// actions). A canceled task cannot be restarted.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// Result is the outcome of a task.
type Result[T any] struct {
	Value T
	Err   error
}

// PanicError reports a computation that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Task is a cancelable in-flight computation.
type Task[T any] struct {
	stop     context.CancelFunc
	done     chan Result[T] // buffered, size 1
	finished chan struct{}

	mu       sync.Mutex
	canceled bool
}

func newTask[T any](stop context.CancelFunc) *Task[T] {
	return &Task[T]{
		stop:     stop,
		done:     make(chan Result[T], 1),
		finished: make(chan struct{}),
	}
}

// Run starts fn in its own goroutine. The context passed to fn is canceled
// when the task is canceled or parent ends. A panic in fn is delivered as
// a *PanicError.
func Run[T any](parent context.Context, fn func(ctx context.Context) (T, error)) *Task[T] {
	ctx, stop := context.WithCancel(parent)
	t := newTask[T](stop)

	go func() {
		defer close(t.finished)
		defer stop()

		var r Result[T]
		func() {
			defer func() {
				if p := recover(); p != nil {
					r = Result[T]{Err: &PanicError{Value: p, Stack: debug.Stack()}}
				}
			}()
			v, err := fn(ctx)
			r = Result[T]{Value: v, Err: err}
		}()
		t.settle(r)
	}()

	return t
}

// Wrap turns an existing result channel into a Task. The first value
// received is delivered; a channel closed without a value delivers an
// error.
func Wrap[T any](src <-chan Result[T]) *Task[T] {
	ctx, stop := context.WithCancel(context.Background())
	t := newTask[T](stop)

	go func() {
		defer close(t.finished)
		select {
		case r, ok := <-src:
			if !ok {
				r = Result[T]{Err: fmt.Errorf("task: source closed without a result")}
			}
			t.settle(r)
		case <-ctx.Done():
		}
	}()

	return t
}

func (t *Task[T]) settle(r Result[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled {
		return
	}
	t.done <- r
}

// Done delivers the result. It never delivers after Cancel.
func (t *Task[T]) Done() <-chan Result[T] {
	return t.done
}

// Cancel suppresses delivery and cancels the computation's context.
// Calling Cancel more than once, or after the result was delivered, has no
// further effect. A result already buffered but not yet received is
// discarded.
func (t *Task[T]) Cancel() {
	t.mu.Lock()
	if t.canceled {
		t.mu.Unlock()
		return
	}
	t.canceled = true
	select {
	case <-t.done:
	default:
	}
	t.mu.Unlock()

	t.stop()
}

// Canceled reports whether Cancel was called.
func (t *Task[T]) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// Finished is closed once the underlying computation has returned, whether
// or not its result was delivered.
func (t *Task[T]) Finished() <-chan struct{} {
	return t.finished
}

// Await waits for the result or ctx. A canceled task makes Await block
// until ctx ends.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	select {
	case r := <-t.done:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
