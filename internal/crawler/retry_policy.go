package crawler

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// RetryPolicy is a bounded retry loop with deterministic exponential backoff.
// MaxAttempts counts every navigation, the first one included.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// NewRetryPolicy builds a policy from the crawler configuration.
func NewRetryPolicy(cfg Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
}

// ShouldRetry decides whether another attempt follows the given result.
// attempt is the number of attempts already made.
func (p RetryPolicy) ShouldRetry(res NavigationResult, attempt int) bool {
	if res.Outcome != NavigationTransient {
		return false
	}
	if attempt >= p.MaxAttempts {
		return false
	}
	if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Backoff returns the wait before retrying after the failed attempt with the
// given zero-based index: BaseDelay * 2^attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// OutcomeForStatus maps an HTTP status to a navigation outcome. Zero means the
// engine reported no status (e.g. a cached or about: page) and counts as OK.
func OutcomeForStatus(code int) NavigationOutcome {
	switch {
	case code == 0, code >= 200 && code < 400:
		return NavigationOK
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return NavigationTransient
	default:
		return NavigationPermanent
	}
}

// OutcomeForError classifies a navigation error. A cancelled invocation is
// permanent so the retry loop stops; everything else, navigation timeouts
// included, is worth another attempt.
func OutcomeForError(err error) NavigationOutcome {
	switch {
	case err == nil:
		return NavigationOK
	case errors.Is(err, context.Canceled):
		return NavigationPermanent
	default:
		return NavigationTransient
	}
}
