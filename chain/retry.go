package chain

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds retries of a single chain read: a maximum number
// of attempts with capped exponential backoff between them, under one
// overall timeout. Applied uniformly at the Reader boundary.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Timeout     time.Duration
}

// DefaultRetryPolicy matches the node read budget of one inbound
// request: a couple of quick retries, never more than a few seconds
// total.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
	Multiplier:  2,
	MaxDelay:    time.Second,
	Timeout:     5 * time.Second,
}

// Do runs op until it succeeds, attempts are exhausted, or the overall
// timeout or caller context expires. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (after %d attempts: %v)", err, i, lastErr)
			}
			return err
		}

		if lastErr = op(ctx); lastErr == nil {
			return nil
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (after %d attempts: %v)", ctx.Err(), i+1, lastErr)
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
