package httpretry

import (
	"context"
	"fmt"
	"time"
)

// Retry runs op up to the policy's attempt ceiling, sleeping the backoff
// schedule between attempts. Unlike RetryClient it cannot see a status code,
// so every error is treated as transient. On exhaustion it returns a single
// aggregated error wrapping the last failure.
func Retry(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	policy = policy.normalized()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(policy.delayBefore(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		if err := op(ctx); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return err
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("retry: all %d attempts failed: %w", policy.MaxAttempts, lastErr)
}
