package crawler

import (
	"context"
	"time"
)

// BrowserSession opens pages against a rendering engine.
type BrowserSession interface {
	Setup(ctx context.Context) error
	CreatePage(ctx context.Context) (Page, error)
	Cleanup() error
}

// Page is a single browser tab. Close must be called on every path.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) NavigationResult
	ExtractLinks(ctx context.Context) ([]string, error)
	Close() error
}

// URLCache answers "seen before" across crawl runs and records observations.
type URLCache interface {
	IsCached(ctx context.Context, url string) bool
	Record(ctx context.Context, url string, domain string) error
}

// URLCacheStore is the durable keyed upsert store behind a URLCache.
// Upsert must be atomic per URL: concurrent calls never lose an increment.
type URLCacheStore interface {
	Get(ctx context.Context, url string) (CacheEntry, bool, error)
	Upsert(ctx context.Context, observed CacheEntry) (CacheEntry, error)
	Clear(ctx context.Context) error
}

// RateLimiter gates requests per domain.
type RateLimiter interface {
	AwaitTurn(ctx context.Context, domain string) error
}

// BatchFunc processes one batch of URLs.
type BatchFunc func(ctx context.Context, batch []string) ([]string, error)

// BatchRunner runs a BatchFunc over items split into batches under a
// concurrency ceiling. A limit <= 0 uses the runner's configured ceiling.
type BatchRunner interface {
	Run(ctx context.Context, items []string, batchSize int, limit int, fn BatchFunc) []string
}

// PostProcessor stages a batch of discovered product URLs for a domain.
type PostProcessor interface {
	Process(ctx context.Context, runID string, domain string, urls []string) ([]string, error)
}

// ProductStore persists product records and crawl-history audit rows.
type ProductStore interface {
	GetByURL(ctx context.Context, url string) (Product, bool, error)
	Create(ctx context.Context, draft ProductDraft) (Product, error)
	LogCrawlAttempt(ctx context.Context, history CrawlHistory) error
}

// RunArchiver persists the summary of a finished crawl invocation.
type RunArchiver interface {
	Archive(ctx context.Context, archive RunArchive) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
