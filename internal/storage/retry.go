package storage

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig bounds the exponential backoff applied to Transient-kind
// backend errors (spec §4.1: "Retries: exponential backoff on transient
// errors (bounded, default 3 attempts)").
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig matches the spec's stated default.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// WithRetry runs op, retrying while it returns a Transient-kind error, up to
// cfg.MaxAttempts total tries. Exhaustion surfaces the last error unchanged
// (still Transient-kind) per spec §7's propagation policy. Non-Transient
// errors are returned immediately without retry.
func WithRetry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg, attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	d := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	// Full jitter avoids synchronized retry storms across concurrent callers.
	return time.Duration(rand.Int63n(int64(d) + 1))
}
