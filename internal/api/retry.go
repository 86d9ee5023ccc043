package api

import (
	"context"
	"time"
)

// Default retry configuration values. A request hitting a retryable server
// error is attempted up to DefaultMaxAttempts times in total, waiting
// base*2, base*4, base*8, ... between successive attempts.
const (
	DefaultMaxAttempts   = 5
	DefaultBackoffBase   = 1 * time.Second
	DefaultBackoffFactor = 2
	DefaultTimeout       = 30 * time.Second
)

// retryStatuses is the fixed set of server-error status codes that are
// retried transparently. All other non-2xx responses surface immediately.
var retryStatuses = map[int]bool{
	500: true,
	502: true,
	503: true,
	504: true,
}

// RetryConfig holds the retry policy. It is configurable so tests can
// shorten the schedule; production callers use the defaults.
type RetryConfig struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffFactor int
}

// DefaultRetryConfig returns the production retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   DefaultMaxAttempts,
		BackoffBase:   DefaultBackoffBase,
		BackoffFactor: DefaultBackoffFactor,
	}
}

// delay returns the wait before the next attempt, where attempt is the
// 1-based number of attempts already made. With the defaults this yields
// 2s, 4s, 8s, 16s.
func (c RetryConfig) delay(attempt int) time.Duration {
	factor := c.BackoffFactor
	if factor <= 0 {
		factor = DefaultBackoffFactor
	}
	base := c.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= time.Duration(factor)
	}
	return d
}

func (c RetryConfig) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

// isRetryableStatus reports whether a status code is in the retryable set.
func isRetryableStatus(statusCode int) bool {
	return retryStatuses[statusCode]
}

// sleepWithContext waits for the duration or returns early on context
// cancellation.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
