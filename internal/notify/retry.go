package notify

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"
)

// retryConfig controls webhook delivery retries with exponential backoff
// and jitter.
type retryConfig struct {
	// maxAttempts counts the first try. 1 means no retries.
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
	// jitterFraction spreads the delay by ±fraction to avoid thundering
	// herds when several runs finish together.
	jitterFraction float64
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		maxAttempts:    3,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     10 * time.Second,
		multiplier:     2.0,
		jitterFraction: 0.25,
	}
}

// withRetry runs deliver until it succeeds, returns a permanent error, or
// attempts run out. Context cancellation stops retries immediately.
func withRetry(ctx context.Context, cfg retryConfig, deliver func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		lastErr = deliver(ctx)
		if lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return lastErr
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt >= cfg.maxAttempts-1 {
			break
		}

		timer := time.NewTimer(backoffDelay(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

func backoffDelay(attempt int, cfg retryConfig) time.Duration {
	delay := float64(cfg.initialBackoff) * math.Pow(cfg.multiplier, float64(attempt))
	if delay > float64(cfg.maxBackoff) {
		delay = float64(cfg.maxBackoff)
	}
	if cfg.jitterFraction > 0 {
		jitterRange := delay * cfg.jitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// transientStatusError marks an HTTP response worth retrying (429, 5xx).
type transientStatusError struct {
	status int
	msg    string
}

func (e *transientStatusError) Error() string { return e.msg }

// isTransient reports whether the delivery failure looks temporary: a
// retryable HTTP status, a network timeout, or a connection-level error.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var se *transientStatusError
	if errors.As(err, &se) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"tls handshake timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// isRetryableStatus reports whether an HTTP status is safe to retry.
func isRetryableStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
