package pricing

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy maps attempt count to delay for upstream price calls:
// exponential growth from BaseDelay, capped at MaxAttempts total attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Growth      float64
}

// DefaultRetryPolicy mirrors the upstream providers' observed behaviour:
// occasional rate limits that clear within a few seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		Growth:      2.0,
	}
}

// Do runs op under the policy, sleeping between failed attempts. The final
// attempt's error is returned once the budget is exhausted or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.Multiplier = p.Growth
	bo.RandomizationFactor = 0
	bo.MaxInterval = 5 * time.Minute
	bo.MaxElapsedTime = 0 // attempt count, not wall clock, bounds the loop

	return backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
}
