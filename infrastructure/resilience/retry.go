// Package resilience provides fault tolerance helpers. The broker adapter
// uses BackoffForAttempt for redelivery backoff; the matcher engine does not
// use this package.
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff retry.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, adds randomness
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Retry executes fn with exponential backoff until it succeeds, ctx is
// cancelled, or MaxAttempts is exhausted.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(addJitter(delay, cfg.Jitter)):
			}
			delay = nextDelay(delay, cfg)
		}
	}
	return lastErr
}

// BackoffForAttempt computes the delay before redelivery attempt n (0-based),
// clamped to [minDelay, maxDelay]. Used by the broker adapter's redelivery
// counter (spec.md §4.2: "exponential backoff between 1s and 5min").
func BackoffForAttempt(attempt int, minDelay, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := minDelay
	for i := 0; i < attempt; i++ {
		delay = nextDelay(delay, RetryConfig{MaxDelay: maxDelay, Multiplier: 2.0})
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	if delay < minDelay {
		delay = minDelay
	}
	return delay
}

func nextDelay(delay time.Duration, cfg RetryConfig) time.Duration {
	next := time.Duration(float64(delay) * cfg.Multiplier)
	if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	return next
}

func addJitter(delay time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return delay
	}
	spread := float64(delay) * jitter
	offset := (rand.Float64()*2 - 1) * spread
	result := time.Duration(float64(delay) + offset)
	if result < 0 {
		return 0
	}
	return result
}
