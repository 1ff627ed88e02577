package backend

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures the resilience policy for one backend client,
// grounded on internal/agent.FailoverConfig's retry shape in the teacher.
type RetryConfig struct {
	MaxRetries     int
	BackoffSeconds float64
	RequestTimeout time.Duration
}

// DefaultRetryConfig mirrors sensible defaults used throughout the example
// pack's provider clients.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		BackoffSeconds: 0.5,
		RequestTimeout: 30 * time.Second,
	}
}

// isRetryableStatus reports whether an HTTP status code should be retried:
// 408, 429, and any 5xx, per spec §4.3.
func isRetryableStatus(status int) bool {
	if status == 408 || status == 429 {
		return true
	}
	return status >= 500 && status < 600
}

// backoffDelay computes the exponential-backoff-with-jitter delay before
// retry attempt n (1-indexed).
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	base := cfg.BackoffSeconds
	if base <= 0 {
		base = 0.5
	}
	delay := base * float64(uint(1)<<uint(attempt-1))
	jitter := delay * (0.5 + rand.Float64()*0.5)
	return time.Duration(jitter * float64(time.Second))
}

// sleepOrCancel waits for d, returning early if ctx is done.
func sleepOrCancel(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
