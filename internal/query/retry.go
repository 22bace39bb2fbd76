package query

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultQueryRetry is the number of times a failed read is retried
	// before the failure is surfaced.
	DefaultQueryRetry = 1
	// DefaultMutationRetry is the number of times a failed write is retried.
	DefaultMutationRetry = 0
	// DefaultRetryDelay is the delay before the first retry. Each subsequent
	// delay doubles, up to MaxRetryDelay.
	DefaultRetryDelay = time.Second
	// MaxRetryDelay caps the delay between retries.
	MaxRetryDelay = 30 * time.Second
)

type retryPolicy struct {
	retries int
	delay   time.Duration
}

// retry invokes fn, retrying failures per the policy. It returns the number
// of failed attempts alongside the result. Cancellation is never retried.
func retry[T any](ctx context.Context, p retryPolicy, notify func(error, time.Duration), fn func(context.Context) (T, error)) (T, int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.delay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = MaxRetryDelay
	b.MaxElapsedTime = 0
	b.Reset()

	retries := max(p.retries, 0)
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	var (
		result   T
		failures int
	)
	op := func() error {
		v, err := fn(ctx)
		if err != nil {
			failures++
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = v
		return nil
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		var zero T
		return zero, failures, err
	}
	return result, failures, nil
}
