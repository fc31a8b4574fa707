// Package resilience provides retry with exponential backoff for operations
// against backing stores, such as opening the Redis or SQLite memory backend.
package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/itsneelabh/docrouter/core"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool

	// ShouldRetry decides whether an error is worth another attempt.
	// Nil retries every error.
	ShouldRetry func(error) bool

	// Logger receives one warning per failed attempt (optional)
	Logger core.Logger
	// Operation names the retried call in log output
	Operation string
}

// DefaultRetryConfig provides sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Retry executes fn until it succeeds or gives up. It gives up when the
// attempts run out, when ShouldRetry rejects the error and when ctx is done.
// Exhausted attempts wrap both core.ErrMaxRetriesExceeded and the last error.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.ShouldRetry != nil && !config.ShouldRetry(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == maxAttempts {
			break
		}

		// Exponential backoff from the second retry onwards
		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if config.MaxDelay > 0 && delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		wait := delay
		if config.JitterEnabled {
			wait += time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
		}

		if config.Logger != nil {
			config.Logger.WarnWithContext(ctx, "Operation failed, retrying", map[string]interface{}{
				"operation": config.Operation,
				"attempt":   attempt,
				"max":       maxAttempts,
				"delay_ms":  wait.Milliseconds(),
				"error":     err.Error(),
			})
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded for %w: %w", maxAttempts, lastErr, core.ErrMaxRetriesExceeded)
}
