// Package cache implements the cross-run URL dedup cache on top of a keyed
// upsert store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/clock/system"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
	"github.com/JakeFAU/product-url-crawler/internal/metrics"
)

// DefaultTTL is the validity window stamped on new entries when none is configured.
const DefaultTTL = 24 * time.Hour

// ErrNoStore is returned by New when no backing store is provided.
var ErrNoStore = errors.New("cache: nil store")

// Cache answers whether a URL has been observed before and records observations.
// Expiry is the store owner's concern; the TTL is only stamped on entries.
type Cache struct {
	store  crawler.URLCacheStore
	clock  crawler.Clock
	ttl    time.Duration
	logger *zap.Logger
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(clock crawler.Clock) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithTTL overrides the TTL stamped on entries.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a Cache over store.
func New(store crawler.URLCacheStore, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	c := &Cache{
		store:  store,
		clock:  system.New(),
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IsCached reports whether url has an entry. Store failures are logged and
// reported as a miss so traversal is never blocked by the cache.
func (c *Cache) IsCached(ctx context.Context, url string) bool {
	_, ok, err := c.store.Get(ctx, url)
	metrics.ObserveCacheOp("get", err)
	if err != nil {
		c.logger.Warn("url cache lookup failed; treating as miss",
			zap.String("url", url),
			zap.Error(err),
		)
		return false
	}
	return ok
}

// Record upserts the entry for url: a new entry starts at access_count 1, an
// existing one is incremented and its last_accessed refreshed. Errors are
// returned to the caller.
func (c *Cache) Record(ctx context.Context, url string, domain string) error {
	if strings.TrimSpace(url) == "" {
		return crawler.ErrEmptyURL
	}
	now := c.clock.Now().UTC()
	_, err := c.store.Upsert(ctx, crawler.CacheEntry{
		URL:          url,
		Domain:       domain,
		FirstSeen:    now,
		LastAccessed: now,
		AccessCount:  1,
		TTL:          c.ttl,
	})
	metrics.ObserveCacheOp("record", err)
	if err != nil {
		return fmt.Errorf("record %s: %w", url, err)
	}
	return nil
}

// Lookup returns the stored entry for url.
func (c *Cache) Lookup(ctx context.Context, url string) (crawler.CacheEntry, bool, error) {
	entry, ok, err := c.store.Get(ctx, url)
	if err != nil {
		return crawler.CacheEntry{}, false, fmt.Errorf("lookup %s: %w", url, err)
	}
	return entry, ok, nil
}

// Clear removes every entry from the backing store.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear url cache: %w", err)
	}
	c.logger.Info("url cache cleared")
	return nil
}
