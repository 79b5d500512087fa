package crawler

import (
	"net/http"
	"time"
)

const (
	defaultBackoffBase      = 10 * time.Second
	defaultBackoffIncrement = 10 * time.Second
	// DefaultMaxStatusAttempts bounds requests answered with a retryable status.
	DefaultMaxStatusAttempts = 3
)

// BackoffPolicy grows the wait linearly after every failed attempt:
// Base, Base+Increment, Base+2*Increment, ... with no cap and no jitter.
// MaxAttempts of zero retries transport failures forever. MaxStatusAttempts
// bounds how often a 429 or 5xx answer is requested again before the page is
// handed back as is; zero or one means it is returned on first sight.
type BackoffPolicy struct {
	Base              time.Duration
	Increment         time.Duration
	MaxAttempts       int
	MaxStatusAttempts int
}

// DefaultBackoffPolicy returns the 10s/10s policy: transport failures are
// retried forever, retryable statuses three times in total.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:              defaultBackoffBase,
		Increment:         defaultBackoffIncrement,
		MaxStatusAttempts: DefaultMaxStatusAttempts,
	}
}

// Delay returns the wait before the next attempt after the given number of failures (0-based).
func (p BackoffPolicy) Delay(failures int) time.Duration {
	if failures < 0 {
		failures = 0
	}
	return p.Base + time.Duration(failures)*p.Increment
}

// ShouldRetry decides whether another attempt is allowed after attempt (1-based) failed.
// Transport timeouts count as ordinary failures; cancellation is the caller's context.
func (p BackoffPolicy) ShouldRetry(attempt int) bool {
	return p.MaxAttempts <= 0 || attempt < p.MaxAttempts
}

// ShouldRetryStatus decides whether a retryable status seen on the given
// number of responses (1-based) warrants another request.
func (p BackoffPolicy) ShouldRetryStatus(responses int) bool {
	return responses < p.MaxStatusAttempts
}

// retryableStatus reports HTTP statuses worth another attempt.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
