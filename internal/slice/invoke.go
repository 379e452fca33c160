package slice

import (
	"context"
	"fmt"
	"runtime/debug"
)

// PanicError carries a recovered panic out of component code.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Call runs fn on its own goroutine and returns as soon as fn finishes or ctx
// is done, whichever happens first. Panics inside fn are recovered and
// returned as *PanicError.
//
// When ctx wins, fn keeps running in the background until it returns and its
// result is dropped. Components that honour ctx stop promptly; those that do
// not cannot hold the caller past its deadline.
func Call[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}

	done := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
			done <- out
		}()
		out.val, out.err = fn(ctx)
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Invoke is Call for hooks that only return an error.
func Invoke(ctx context.Context, fn func(context.Context) error) error {
	_, err := Call(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
