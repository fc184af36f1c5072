package reliability

import (
	"context"
	"errors"
	"time"
)

// Retryable marks an error as safe to retry.
type Retryable struct {
	Err error
}

func (e *Retryable) Error() string { return e.Err.Error() }
func (e *Retryable) Unwrap() error { return e.Err }

// MarkRetryable wraps err so Retry attempts the call again.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &Retryable{Err: err}
}

// Retry calls fn up to attempts times, sleeping with capped exponential backoff
// between calls that returned a Retryable error.
func Retry(ctx context.Context, attempts int, base, cap time.Duration, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		var r *Retryable
		if !errors.As(err, &r) || attempt == attempts-1 {
			return err
		}
		timer := time.NewTimer(ExponentialBackoff(attempt, base, cap))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
