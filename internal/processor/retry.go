package processor

import (
	"context"
	"time"
)

// RetryConfig controls the rate-limit backoff executor.
type RetryConfig struct {
	MaxRetries int
	Delay      time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		Delay:      500 * time.Millisecond,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	defaults := DefaultRetryConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.Delay <= 0 {
		c.Delay = defaults.Delay
	}
	return c
}

// Do runs fn, retrying only on rate-limit errors: wait the configured delay,
// double it, and try again while retries remain. Any other error propagates
// unchanged immediately.
func Do[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	delay := cfg.Delay

	var zero T
	for attempt := 0; ; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		if !IsRateLimit(err) || attempt >= cfg.MaxRetries {
			return zero, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
