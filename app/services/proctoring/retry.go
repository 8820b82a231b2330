package proctoring

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds how transient storage failures are retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries three times: 50ms, 100ms, 200ms.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  50 * time.Millisecond,
	MaxDelay:   time.Second,
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if d <= 0 || (p.MaxDelay > 0 && d > p.MaxDelay) {
		d = p.MaxDelay
	}
	return d
}

// retryValue runs fn until it succeeds, fails with a non-transient error,
// the retries are exhausted or ctx is done.
func retryValue[T any](ctx context.Context, p RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(p.delay(attempt))
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, fmt.Errorf("%s: %w (last error: %v)", op, ctx.Err(), lastErr)
			case <-t.C:
			}
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrTransientStorage) {
			return zero, err
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%s: giving up after %d attempts: %w", op, p.MaxRetries+1, lastErr)
}

func retry(ctx context.Context, p RetryPolicy, op string, fn func(context.Context) error) error {
	_, err := retryValue(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
