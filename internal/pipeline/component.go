package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type componentFunc[T any] func(ctx context.Context) (T, error)

type componentOutcome[T any] struct {
	value    T
	err      error
	panicked any
	failed   bool
}

// runComponent runs fn under its own timeout. It returns the value and an
// empty reason on success, or the zero value and the reason the component was
// degraded. A component that ignores its context is abandoned at the deadline.
func runComponent[T any](ctx context.Context, timeout time.Duration, fn componentFunc[T]) (T, string) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan componentOutcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- componentOutcome[T]{panicked: r, failed: true}
			}
		}()
		value, err := fn(ctx)
		done <- componentOutcome[T]{value: value, err: err, failed: err != nil}
	}()

	select {
	case outcome := <-done:
		switch {
		case outcome.panicked != nil:
			return zero, fmt.Sprintf("panic: %v", outcome.panicked)
		case outcome.failed && errors.Is(ctx.Err(), context.DeadlineExceeded):
			return zero, timeoutReason(timeout)
		case outcome.failed:
			return zero, fmt.Sprintf("error: %v", outcome.err)
		}
		return outcome.value, ""
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, timeoutReason(timeout)
		}
		return zero, "cancelled"
	}
}

func timeoutReason(timeout time.Duration) string {
	return fmt.Sprintf("timeout after %s", timeout)
}
