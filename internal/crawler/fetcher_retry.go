package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryingFetcher wraps a single-attempt Fetcher with a BackoffPolicy. With an
// unbounded policy it only returns an error when ctx is done or the failure
// is permanent.
type RetryingFetcher struct {
	base    Fetcher
	policy  BackoffPolicy
	sleeper Sleeper
	limiter Limiter
	logger  *zap.Logger
}

// NewRetryingFetcher builds a RetryingFetcher. sleeper, limiter and logger may be nil.
func NewRetryingFetcher(
	base Fetcher,
	policy BackoffPolicy,
	sleeper Sleeper,
	limiter Limiter,
	logger *zap.Logger,
) *RetryingFetcher {
	if sleeper == nil {
		sleeper = timerSleeper{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingFetcher{
		base:    base,
		policy:  policy,
		sleeper: sleeper,
		limiter: limiter,
		logger:  logger,
	}
}

// Fetch retries url until a usable response arrives. Transport failures are
// retried per MaxAttempts; a 429 or 5xx answer is retried per
// MaxStatusAttempts and then returned as the page. Errors wrapping
// ErrPermanentFetch are returned at once.
func (f *RetryingFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	statusResponses := 0
	for attempt := 1; ; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, url); err != nil {
				return Page{}, fmt.Errorf("wait before fetching %s: %w", url, err)
			}
		}

		page, err := f.base.Fetch(ctx, url)
		if err == nil && retryableStatus(page.StatusCode) {
			statusResponses++
			if !f.policy.ShouldRetryStatus(statusResponses) || !f.policy.ShouldRetry(attempt) {
				f.logger.Warn("giving up on retryable status",
					zap.String("url", url),
					zap.Int("status", page.StatusCode),
					zap.Int("attempt", attempt),
				)
				return page, nil
			}
			err = fmt.Errorf("%w: %d", ErrRetryableStatus, page.StatusCode)
		}
		if err == nil {
			return page, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Page{}, fmt.Errorf("fetch %s: %w", url, ctxErr)
		}
		if errors.Is(err, ErrPermanentFetch) {
			return Page{}, fmt.Errorf("fetch %s: %w", url, err)
		}
		if !f.policy.ShouldRetry(attempt) {
			return Page{}, fmt.Errorf("%w: %s after %d attempts: %v", ErrRetriesExhausted, url, attempt, err)
		}

		backoff := f.policy.Delay(attempt - 1)
		fetchRetries.Inc()
		f.logger.Warn("fetch failed; retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := f.sleeper.Sleep(ctx, backoff); err != nil {
			return Page{}, fmt.Errorf("fetch %s: %w", url, err)
		}
	}
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
