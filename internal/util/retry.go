// ABOUTME: Retry combinator with pluggable delay strategies
// ABOUTME: Shared by the migration upload paths and the remote store connect
package util

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// DelayFunc computes the wait before the given retry attempt (1-based)
type DelayFunc func(attempt int) time.Duration

// LinearBackoff returns a delay that grows linearly: base × attempt
func LinearBackoff(base time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return 0
		}
		return base * time.Duration(attempt)
	}
}

// ExponentialBackoff returns exponential backoff with jitter.
// Base delay is doubled each attempt, with random jitter up to 25%,
// capped at 30 seconds.
func ExponentialBackoff(base time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return 0
		}
		// Cap attempt to avoid overflow in bit shift
		if attempt > 30 {
			attempt = 30
		}
		backoff := base * time.Duration(1<<uint(attempt))
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		jitter := time.Duration(rand.Int64N(int64(backoff)/2)) - backoff/4
		return backoff + jitter
	}
}

// Retry runs op up to maxAttempts times, sleeping delay(attempt) between
// failures. It returns nil on the first success, the last error once
// attempts are exhausted, and ctx.Err() if the context is cancelled while
// waiting. maxAttempts below 1 is treated as 1.
func Retry(ctx context.Context, maxAttempts int, delay DelayFunc, op func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = op(); lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}
