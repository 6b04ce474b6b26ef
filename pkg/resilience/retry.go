package resilience

import (
	"context"
	"time"
)

// RetryPolicy defines retry behavior for transient collaborator failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	// Retryable decides whether err is worth another attempt. Nil retries
	// everything except rate limits and open circuits.
	Retryable func(err error) bool
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

// Do runs fn until it succeeds, the attempts are exhausted, or ctx ends.
func (r RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for i := 0; i <= r.MaxRetries; i++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if i == r.MaxRetries || !r.retryable(err) {
			return err
		}
		timer := time.NewTimer(r.Backoff * time.Duration(i+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func (r RetryPolicy) retryable(err error) bool {
	if r.Retryable != nil {
		return r.Retryable(err)
	}
	return !IsRateLimit(err) && !IsCircuitOpen(err)
}
