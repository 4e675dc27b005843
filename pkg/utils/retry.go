// Package utils provides shared utility functions.
package utils

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
	}
}

func (cfg RetryConfig) backoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    cfg.InitialDelay,
		Max:    cfg.MaxDelay,
		Factor: cfg.Factor,
		Jitter: true,
	}
}

// Retry executes a function with jittered exponential backoff.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	b := cfg.backoff()
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			if attempt < cfg.MaxAttempts-1 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(b.Duration()):
				}
			}
		} else {
			return nil
		}
	}
	return lastErr
}

// RetryWithResult executes a function with jittered exponential backoff and
// returns its result.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	b := cfg.backoff()
	var lastErr error
	var zero T

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err != nil {
			lastErr = err
			if attempt < cfg.MaxAttempts-1 {
				select {
				case <-ctx.Done():
					return zero, ctx.Err()
				case <-time.After(b.Duration()):
				}
			}
		} else {
			return result, nil
		}
	}
	return zero, lastErr
}
