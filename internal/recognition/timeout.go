package recognition

import (
	"context"
	"fmt"
	"time"
)

type callResult[T any] struct {
	value T
	err   error
}

// withTimeout bounds one blocking stream call (open, initial send) when the
// backend stalls. The call keeps running in the background after a timeout.
func withTimeout[T any](ctx context.Context, timeout time.Duration, call func() (T, error)) (T, error) {
	if timeout <= 0 {
		return call()
	}

	resultCh := make(chan callResult[T], 1)
	go func() {
		v, err := call()
		resultCh <- callResult[T]{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, fmt.Errorf("timed out after %s", timeout)
	case r := <-resultCh:
		return r.value, r.err
	}
}
