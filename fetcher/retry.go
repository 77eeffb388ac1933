package fetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy configures retries of transient fetch failures.
type RetryPolicy struct {
	MaxRetries int           // Retries after the first attempt; negative disables retries
	BaseDelay  time.Duration // Initial backoff delay
	MaxDelay   time.Duration // Backoff cap, also applied to Retry-After
}

// DefaultRetryPolicy returns 2 retries (3 attempts), 1s base delay and a
// 30s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// attemptResult is the outcome of one HTTP attempt.
type attemptResult struct {
	status     int
	retryAfter time.Duration
	err        error
}

// run calls attempt until it succeeds, fails permanently, or retries are
// exhausted. Backoff doubles per retry up to MaxDelay; a Retry-After hint
// from a 429 or 503 replaces the computed delay.
func (p RetryPolicy) run(ctx context.Context, attempt func(ctx context.Context) attemptResult) (attemptResult, int) {
	backoff := p.BaseDelay
	var last attemptResult
	attempts := 0

	for i := 0; i <= max(p.MaxRetries, 0); i++ {
		if i > 0 {
			wait := backoff
			if last.retryAfter > 0 {
				wait = last.retryAfter
			}
			if p.MaxDelay > 0 {
				wait = min(wait, p.MaxDelay)
			}
			select {
			case <-ctx.Done():
				if last.err == nil {
					last.err = ctx.Err()
				}
				return last, attempts
			case <-time.After(wait):
				backoff = min(backoff*2, max(p.MaxDelay, p.BaseDelay))
			}
		}

		attempts++
		last = attempt(ctx)
		if last.err == nil && last.status < 400 {
			return last, attempts
		}
		if !shouldRetry(last.status, last.err) {
			return last, attempts
		}
	}
	return last, attempts
}

// shouldRetry reports whether a failed attempt is transient: network
// errors, 429 and 5xx are retried; other 4xx responses are not.
func shouldRetry(status int, err error) bool {
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	case status >= 400:
		return false
	case err != nil:
		return isRetryableError(err)
	}
	return false
}

// isRetryableError checks the error chain first and falls back to matching
// well-known transient messages.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"temporary failure",
		"eof",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
