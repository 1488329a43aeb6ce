// Package async bridges host-side asynchronous work to script callers.
// CRC: crc-AsyncResult.md
package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTimeout is delivered to Match error handlers when the timeout elapses first.
var ErrTimeout = errors.New("operation timed out")

// Result is the terminal value of an operation: either Ok(Value) or Err(Err).
type Result[T any] struct {
	Value T
	Err   error
}

// Ok makes a successful Result.
func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

// Err makes a failed Result.
func Err[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Errf makes a failed Result from a format string.
func Errf[T any](format string, args ...interface{}) Result[T] {
	return Result[T]{Err: fmt.Errorf(format, args...)}
}

// IsOk reports whether the result carries a value.
func (r Result[T]) IsOk() bool {
	return r.Err == nil
}

// Message returns the error text, or "" for Ok.
func (r Result[T]) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// AsyncResult wraps a pending operation.
// It moves from pending to completed or failed exactly once.
type AsyncResult[T any] struct {
	done   chan struct{}
	once   sync.Once
	result Result[T]
}

// NewPending returns an unresolved AsyncResult and the function that resolves it.
// Only the first call to complete has any effect.
func NewPending[T any]() (*AsyncResult[T], func(T, error)) {
	a := &AsyncResult[T]{done: make(chan struct{})}
	return a, a.complete
}

// Go runs fn on a new goroutine and returns its eventual result.
func Go[T any](fn func() (T, error)) *AsyncResult[T] {
	a, complete := NewPending[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				complete(zero, fmt.Errorf("panic: %v", r))
			}
		}()
		complete(fn())
	}()
	return a
}

// Resolved returns an already completed AsyncResult.
func Resolved[T any](value T, err error) *AsyncResult[T] {
	a, complete := NewPending[T]()
	complete(value, err)
	return a
}

func (a *AsyncResult[T]) complete(value T, err error) {
	a.once.Do(func() {
		a.result = Result[T]{Value: value, Err: err}
		close(a.done)
	})
}

// Done is closed once the operation is terminal.
func (a *AsyncResult[T]) Done() <-chan struct{} {
	return a.done
}

// IsDone reports whether the operation is terminal without blocking.
func (a *AsyncResult[T]) IsDone() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the operation is terminal.
// Operation failures come back in the Result, never as a panic.
func (a *AsyncResult[T]) Wait() Result[T] {
	<-a.done
	return a.result
}

// WaitContext is Wait bounded by ctx; a cancelled ctx yields Err(ctx.Err()).
func (a *AsyncResult[T]) WaitContext(ctx context.Context) Result[T] {
	select {
	case <-a.done:
		return a.result
	case <-ctx.Done():
		return Err[T](ctx.Err())
	}
}

// Match registers both continuations. Exactly one of them runs, exactly once,
// on a goroutine other than the caller's. A timeout <= 0 waits forever.
// When the timeout wins, onErr receives ErrTimeout and a later completion is ignored.
func (a *AsyncResult[T]) Match(onOk func(T), onErr func(error), timeout time.Duration) {
	if onOk == nil || onErr == nil {
		panic("async: Match requires both handlers")
	}
	go func() {
		var expired <-chan time.Time
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			expired = timer.C
		}
		select {
		case <-a.done:
			if a.result.Err != nil {
				onErr(a.result.Err)
			} else {
				onOk(a.result.Value)
			}
		case <-expired:
			onErr(fmt.Errorf("%w after %v", ErrTimeout, timeout))
		}
	}()
}

// Map converts an AsyncResult's value once it completes.
func Map[T, U any](a *AsyncResult[T], fn func(T) (U, error)) *AsyncResult[U] {
	out, complete := NewPending[U]()
	go func() {
		r := a.Wait()
		if r.Err != nil {
			var zero U
			complete(zero, r.Err)
			return
		}
		complete(fn(r.Value))
	}()
	return out
}
