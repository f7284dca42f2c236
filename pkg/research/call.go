package research

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// callPolicy describes how one collaborator call is executed.
type callPolicy struct {
	timeout  time.Duration
	retry    RetryPolicy
	attempts int
	notify   func(err error, next time.Duration)
}

// invoke runs fn with a per-attempt timeout and, when attempts > 1, bounded
// exponential backoff between attempts. Cancellation of ctx is never retried.
func invoke[T any](ctx context.Context, p callPolicy, fn func(context.Context) (T, error)) (T, error) {
	attempt := func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return fn(callCtx)
	}

	if p.attempts <= 1 {
		return attempt()
	}

	b := backoff.NewExponentialBackOff()
	if p.retry.InitialInterval > 0 {
		b.InitialInterval = p.retry.InitialInterval
	}
	if p.retry.MaxInterval > 0 {
		b.MaxInterval = p.retry.MaxInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.attempts)),
	}
	if p.notify != nil {
		opts = append(opts, backoff.WithNotify(p.notify))
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := attempt()
		if err != nil && ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}
