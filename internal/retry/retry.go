// Package retry provides a reusable exponential backoff helper for transient
// broker and transport failures. Call sites parameterize attempts and delays;
// order placement must never be wrapped in it.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Config controls the backoff schedule for one call site.
type Config struct {
	MaxRetries     int           // retries after the first attempt
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig suits idempotent broker reads (price, balance).
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
}

// Retryable classifies an error as transient. A nil classifier retries
// everything.
type Retryable func(error) bool

// Do runs fn until it succeeds, the retries are exhausted, or ctx is done.
// The backoff grows by 1.5x per attempt with up to 25% random jitter, capped
// at MaxBackoff. The last error is returned wrapped with the attempt count.
func Do(ctx context.Context, cfg Config, retryable Retryable, fn func() error) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("operation canceled: %w", err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(withJitter(backoff)):
			backoff = nextBackoff(backoff, cfg.MaxBackoff)
		case <-ctx.Done():
			return fmt.Errorf("operation canceled during backoff: %w", ctx.Err())
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * 1.5)
	if next > max {
		next = max
	}
	return next
}

func withJitter(backoff time.Duration) time.Duration {
	maxJitter := int64(backoff / 4)
	if maxJitter <= 0 {
		return backoff
	}
	jitter, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
	if err != nil {
		return backoff
	}
	return backoff + time.Duration(jitter.Int64())
}
