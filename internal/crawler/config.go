package crawler

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// ErrInvalidConfig wraps every validation failure from Config.Validate.
var ErrInvalidConfig = errors.New("invalid crawler config")

// Config captures every knob that shapes a crawl invocation. Values come from
// the application config layer; DefaultConfig documents the defaults.
type Config struct {
	MaxDepth          int
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	BatchSize         int
	ConcurrencyLimit  int
	CrawlTimeout      time.Duration
	NavigationTimeout time.Duration
	MaxPagesPerDomain int
	// BlockedDomains are never crawled. Entries are hosts or "*.suffix" wildcards.
	BlockedDomains []string
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		MaxDepth:          2,
		MaxRetries:        3,
		RetryBaseDelay:    time.Second,
		RetryMaxDelay:     30 * time.Second,
		BatchSize:         32,
		ConcurrencyLimit:  runtime.GOMAXPROCS(0),
		CrawlTimeout:      10 * time.Minute,
		NavigationTimeout: 30 * time.Second,
		MaxPagesPerDomain: 500,
	}
}

// Validate checks for obviously bad configuration. It runs at construction so
// a bad value fails startup rather than a crawl.
func (c Config) Validate() error {
	switch {
	case c.MaxDepth < 0:
		return fmt.Errorf("%w: max_depth must be >= 0", ErrInvalidConfig)
	case c.MaxRetries < 1:
		return fmt.Errorf("%w: max_retries must be >= 1", ErrInvalidConfig)
	case c.RetryBaseDelay < 0:
		return fmt.Errorf("%w: retry_base_delay must be >= 0", ErrInvalidConfig)
	case c.RetryMaxDelay < c.RetryBaseDelay:
		return fmt.Errorf("%w: retry_max_delay must be >= retry_base_delay", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be > 0", ErrInvalidConfig)
	case c.ConcurrencyLimit <= 0:
		return fmt.Errorf("%w: concurrency_limit must be > 0", ErrInvalidConfig)
	case c.CrawlTimeout < 0:
		return fmt.Errorf("%w: crawl_timeout must be >= 0", ErrInvalidConfig)
	case c.NavigationTimeout <= 0:
		return fmt.Errorf("%w: navigation_timeout must be > 0", ErrInvalidConfig)
	case c.MaxPagesPerDomain < 0:
		return fmt.Errorf("%w: max_pages_per_domain must be >= 0", ErrInvalidConfig)
	}
	return nil
}
