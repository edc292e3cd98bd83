package routing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeadlineElapsed is returned by race when the timer wins
var ErrDeadlineElapsed = errors.New("deadline elapsed before the call completed")

// PanicError carries a value recovered from a panicking call
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("call panicked: %v", e.Value)
}

type outcome[T any] struct {
	value T
	err   error
}

// race runs fn against a timer and the caller's context. The first of the three
// to finish decides the result. When the timer or ctx wins, fn's context is
// canceled and its eventual result is dropped into a buffered channel nobody reads.
// A timeout <= 0 disables the timer.
func race[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		var out outcome[T]
		defer func() {
			if r := recover(); r != nil {
				out = outcome[T]{err: &PanicError{Value: r}}
			}
			done <- out
		}()
		out.value, out.err = fn(callCtx)
	}()

	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	var zero T
	select {
	case out := <-done:
		return out.value, out.err
	case <-timerC:
		return zero, ErrDeadlineElapsed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
