// Package staging turns discovered product URLs into product records. It is
// the post-processing step the orchestrator hands each batch to: products are
// created on first sight, every observation is written to crawl history, and
// a batch event is published for downstream scrapers.
package staging

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/clock/system"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// DefaultTopic is the topic batch events are published to.
const DefaultTopic = "product-urls"

// ErrNoProductStore is returned by New without a product store.
var ErrNoProductStore = errors.New("staging: product store is required")

// Option customizes a Processor.
type Option func(*Processor)

// WithPublisher publishes a ProductBatchEvent per staged batch to topic.
func WithPublisher(p crawler.Publisher, topic string) Option {
	return func(proc *Processor) {
		proc.publisher = p
		if topic != "" {
			proc.topic = topic
		}
	}
}

// WithClock overrides the time source.
func WithClock(c crawler.Clock) Option {
	return func(p *Processor) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// Processor implements crawler.PostProcessor.
type Processor struct {
	products  crawler.ProductStore
	publisher crawler.Publisher
	topic     string
	clock     crawler.Clock
	logger    *zap.Logger
}

// New builds a Processor.
func New(products crawler.ProductStore, opts ...Option) (*Processor, error) {
	if products == nil {
		return nil, ErrNoProductStore
	}
	p := &Processor{
		products: products,
		topic:    DefaultTopic,
		clock:    system.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process stages urls and returns the ones that were persisted. URLs that
// fail individually are logged and left out; the batch fails only when
// nothing could be staged or the batch event could not be published.
func (p *Processor) Process(ctx context.Context, runID, domain string, urls []string) ([]string, error) {
	logger := p.logger.With(zap.String("run_id", runID), zap.String("domain", domain))
	staged := make([]string, 0, len(urls))
	var errs []error

	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return staged, fmt.Errorf("staging cancelled: %w", err)
		}
		product, err := p.ensureProduct(ctx, url, domain)
		if err != nil {
			logger.Warn("stage product failed", zap.String("url", url), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		err = p.products.LogCrawlAttempt(ctx, crawler.CrawlHistory{
			ProductID: product.ID,
			RunID:     runID,
			CrawledAt: p.clock.Now(),
			Success:   true,
		})
		if err != nil {
			logger.Warn("log crawl attempt failed", zap.String("url", url), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		staged = append(staged, url)
	}

	if len(staged) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("stage batch: %w", errors.Join(errs...))
	}
	if p.publisher != nil && len(staged) > 0 {
		id, err := p.publisher.Publish(ctx, p.topic, crawler.ProductBatchEvent{
			RunID:       runID,
			Domain:      domain,
			ProductURLs: staged,
			StagedAt:    p.clock.Now(),
		})
		if err != nil {
			return staged, fmt.Errorf("publish batch: %w", err)
		}
		logger.Debug("batch published", zap.String("message_id", id), zap.Int("urls", len(staged)))
	}
	return staged, nil
}

// ensureProduct returns the stored product for url, creating it if needed. A
// failed create is resolved by a second lookup since a concurrent batch may
// have inserted the same URL.
func (p *Processor) ensureProduct(ctx context.Context, url, domain string) (crawler.Product, error) {
	product, ok, err := p.products.GetByURL(ctx, url)
	if err != nil {
		return crawler.Product{}, fmt.Errorf("get product: %w", err)
	}
	if ok {
		return product, nil
	}
	product, createErr := p.products.Create(ctx, crawler.ProductDraft{URL: url, Domain: domain})
	if createErr == nil {
		return product, nil
	}
	product, ok, err = p.products.GetByURL(ctx, url)
	if err == nil && ok {
		return product, nil
	}
	return crawler.Product{}, fmt.Errorf("create product: %w", createErr)
}
