package warehouse

import (
	"context"
	"errors"
	"time"
)

const (
	defaultRetryAttempts = 3
	retryBaseDelay       = 200 * time.Millisecond
	retryMaxDelay        = 1 * time.Second
)

// retryable reports whether an error carries a retryable hint.
func retryable(err error) bool {
	var coded interface {
		CodeValue() string
		RetryableStatus() bool
	}
	if errors.As(err, &coded) {
		return coded.RetryableStatus()
	}
	return false
}

// withRetry runs fn up to attempts times, backing off linearly with a cap
// between attempts. Only errors classified retryable (connectivity, auth
// refresh races, timeouts) are retried; everything else returns at once.
// Load jobs must not go through this path.
func withRetry(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		backoff := time.Duration(attempt+1) * retryBaseDelay
		if backoff > retryMaxDelay {
			backoff = retryMaxDelay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}
