// Package ratelimit enforces a minimum delay between requests to the same domain.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/product-url-crawler/internal/metrics"
)

// Limiter manages per-domain politeness gates. Each domain key owns its own
// token bucket, so waits on one domain never block another.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
	logger   *zap.Logger
}

// Config holds rate limiter configuration.
type Config struct {
	// Interval is the minimum spacing between two requests to one domain.
	// Zero disables throttling.
	Interval time.Duration
}

// New creates a new Limiter.
func New(cfg Config, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		interval: cfg.Interval,
		logger:   logger,
	}
}

// AwaitTurn blocks until domain may be fetched again. The first call for a
// domain returns immediately; later calls wait out whatever remains of the
// interval since the previous turn and never wait when it has already elapsed.
func (l *Limiter) AwaitTurn(ctx context.Context, domain string) error {
	key := strings.ToLower(strings.TrimSpace(domain))
	limiter := l.limiterFor(key)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", key, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(key, waited)
		l.logger.Debug("politeness delay", zap.String("domain", key), zap.Duration("waited", waited))
	}
	return nil
}

// Interval returns the configured politeness interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[key]
	if !ok {
		limit := rate.Inf
		if l.interval > 0 {
			limit = rate.Every(l.interval)
		}
		limiter = rate.NewLimiter(limit, 1)
		l.limiters[key] = limiter
	}
	return limiter
}
