package crawler

import (
	"time"
)

// Classification is the verdict the URL classifier assigns to a link.
type Classification string

// Classification values. Irrelevant links match no pattern set and are
// handled like excluded ones: never enqueued, never recorded.
const (
	ClassProduct    Classification = "product"
	ClassCategory   Classification = "category"
	ClassExcluded   Classification = "excluded"
	ClassIrrelevant Classification = "irrelevant"
)

// FrontierEntry is one pending fetch in a domain's breadth-first traversal.
type FrontierEntry struct {
	URL   string
	Depth int
}

// NavigationOutcome tells the retry loop what to do with a navigation attempt.
type NavigationOutcome int

// Navigation outcomes.
const (
	NavigationOK NavigationOutcome = iota
	NavigationTransient
	NavigationPermanent
)

// String implements fmt.Stringer for log fields and metric labels.
func (o NavigationOutcome) String() string {
	switch o {
	case NavigationOK:
		return "ok"
	case NavigationTransient:
		return "transient"
	case NavigationPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// NavigationResult is returned by Page.Navigate instead of a bare error.
type NavigationResult struct {
	Outcome    NavigationOutcome
	StatusCode int
	FinalURL   string
	Err        error
}

// DomainResult is the per-domain output of a crawl invocation.
type DomainResult struct {
	Domain      string   `json:"domain"`
	ProductURLs []string `json:"product_urls"`
}

// CrawlOptions carries the per-invocation overrides accepted by Crawl.
// Zero values fall back to the orchestrator's configuration.
type CrawlOptions struct {
	MaxConcurrency int
	BatchSize      int
}

// CacheEntry is the persisted record of a URL observed by any crawl run.
type CacheEntry struct {
	URL          string        `json:"url"`
	Domain       string        `json:"domain"`
	FirstSeen    time.Time     `json:"first_seen"`
	LastAccessed time.Time     `json:"last_accessed"`
	AccessCount  int64         `json:"access_count"`
	TTL          time.Duration `json:"ttl"`
}

// Product is a persisted product page.
type Product struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Domain    string    `json:"domain"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductDraft is the input for creating a Product.
type ProductDraft struct {
	URL    string
	Domain string
}

// CrawlHistory is an audit row written for every product observed by a crawl run.
type CrawlHistory struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	RunID        string    `json:"run_id"`
	CrawledAt    time.Time `json:"crawled_at"`
	StatusCode   int       `json:"status_code"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// ProductBatchEvent is published once a batch of product URLs has been staged.
type ProductBatchEvent struct {
	RunID       string    `json:"run_id"`
	Domain      string    `json:"domain"`
	ProductURLs []string  `json:"product_urls"`
	StagedAt    time.Time `json:"staged_at"`
}

// RunArchive is the document written to the blob store after a crawl.
type RunArchive struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []DomainResult `json:"results"`
}
