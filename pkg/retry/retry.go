// Package retry holds the two bounded-repetition helpers fleetadm uses:
// ExecWithRetries for idempotent calls against flaky services, and
// PollUntil for waiting on distributed state to converge.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/metrics"
)

// ExecWithRetries invokes fn up to retries+1 times, stopping at the first
// success. Every error is treated as retryable and there is no delay
// between attempts, so callers must only use it for idempotent calls.
// The error of the last attempt is returned.
func ExecWithRetries[T any](ctx context.Context, retries int, fn func(ctx context.Context) (T, error)) (T, error) {
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(retries)), ctx)

	attempt := 0
	return backoff.RetryWithData(func() (T, error) {
		attempt++
		if attempt > 1 {
			metrics.RetryAttemptsTotal.Inc()
		}
		return fn(ctx)
	}, b)
}

// Condition reports whether a wait is over. A returned error means "not
// yet" and is kept as the reason shown if the wait times out; wrap it
// with Stop to abort the wait immediately.
type Condition func(ctx context.Context) (bool, error)

var errNotReady = errors.New("condition not met")

// Stop marks err as fatal to a PollUntil wait
func Stop(err error) error {
	return backoff.Permanent(err)
}

// PollUntil evaluates cond up to maxAttempts times, interval apart,
// until it returns true. Running out of attempts yields an
// *errs.TimeoutError naming what; it is never silently ignored.
func PollUntil(ctx context.Context, what string, interval time.Duration, maxAttempts int, cond Condition) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	start := time.Now()
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(maxAttempts-1)), ctx)

	attempts := 0
	var last error
	err := backoff.Retry(func() error {
		attempts++
		metrics.PollAttemptsTotal.WithLabelValues(what).Inc()

		ok, err := cond(ctx)
		if err != nil {
			var perm *backoff.PermanentError
			if errors.As(err, &perm) {
				return err
			}
			last = err
			return err
		}
		if !ok {
			return errNotReady
		}
		return nil
	}, b)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, errNotReady) || errors.Is(err, last) {
		return &errs.TimeoutError{What: what, Attempts: attempts, Elapsed: time.Since(start), Last: last}
	}
	return err
}
