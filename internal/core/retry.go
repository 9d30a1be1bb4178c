package core

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy wraps calls to the job store, definition catalog, and broker.
// The orchestration logic itself performs no retries; once a policy reports
// exhaustion the error propagates to the caller.
type RetryPolicy interface {
	// Execute runs fn, retrying per the policy. The returned error is the
	// last attempt's error wrapped with the operation name.
	Execute(ctx context.Context, op string, fn func(context.Context) error) error
}

// NoRetryPolicy executes the call exactly once.
type NoRetryPolicy struct{}

// Execute runs fn a single time.
func (NoRetryPolicy) Execute(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ExponentialRetryPolicy retries with exponentially growing delays.
// Delay before retry n is Initial * 2^(n-1), capped at Max.
type ExponentialRetryPolicy struct {
	// Attempts is the total number of calls, including the first. Values
	// below 1 behave as 1.
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultRetryPolicy mirrors the resilience settings used across the platform:
// three attempts with a 100ms initial delay capped at 2s.
func DefaultRetryPolicy() *ExponentialRetryPolicy {
	return &ExponentialRetryPolicy{
		Attempts: 3,
		Initial:  100 * time.Millisecond,
		Max:      2 * time.Second,
	}
}

// Execute runs fn until it succeeds, attempts are exhausted, or the context
// is cancelled while waiting between attempts.
func (p *ExponentialRetryPolicy) Execute(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := p.Initial
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: %w", op, ctx.Err())
			}
		}

		delay *= 2
		if p.Max > 0 && delay > p.Max {
			delay = p.Max
		}
	}

	return fmt.Errorf("%s: %w", op, lastErr)
}
