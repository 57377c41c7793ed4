package engine

import (
	"context"
	"time"

	"github.com/envs-net/muc-banbot/muc"
)

// RetryPolicy is the shared discipline for outbound transport calls: a
// bounded number of attempts with a fixed delay between them, retrying only
// errors the predicate accepts. Rejected requests are never retried.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy retries timeouts up to 3 attempts, 2 seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       2 * time.Second,
		Retryable:   muc.IsRetryable,
	}
}

// Do runs op until it succeeds, returns a non-retryable error, or all
// attempts are used up. The context is only checked while waiting
// between attempts; an in-flight call is never cancelled.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if i < attempts-1 && p.Delay > 0 {
			select {
			case <-time.After(p.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}
