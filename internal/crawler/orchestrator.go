package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/product-url-crawler/internal/clock/system"
	"github.com/JakeFAU/product-url-crawler/internal/metrics"
)

// ErrMissingDependency is returned by NewOrchestrator when a required
// collaborator is nil.
var ErrMissingDependency = errors.New("crawler: missing dependency")

// Dependencies are the collaborators an Orchestrator drives. Session, Cache,
// Limiter and Runner are required; the rest are optional.
type Dependencies struct {
	Session  BrowserSession
	Cache    URLCache
	Limiter  RateLimiter
	Runner   BatchRunner
	Post     PostProcessor
	Archiver RunArchiver
	IDs      IDGenerator
	Clock    Clock
}

// Orchestrator runs breadth-first product discovery over a set of domains.
// Frontier and visited state live inside a single Crawl call; nothing leaks
// across invocations except what the URL cache persists.
type Orchestrator struct {
	cfg      Config
	retry    RetryPolicy
	session  BrowserSession
	cache    URLCache
	limiter  RateLimiter
	runner   BatchRunner
	post     PostProcessor
	archiver RunArchiver
	blocked  *domainBlocklist
	ids      IDGenerator
	clock    Clock
	pause    pauseController
	logger   *zap.Logger
}

// NewOrchestrator validates cfg and deps and wires an Orchestrator.
func NewOrchestrator(cfg Config, deps Dependencies, logger *zap.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Session == nil:
		return nil, fmt.Errorf("%w: browser session", ErrMissingDependency)
	case deps.Cache == nil:
		return nil, fmt.Errorf("%w: url cache", ErrMissingDependency)
	case deps.Limiter == nil:
		return nil, fmt.Errorf("%w: rate limiter", ErrMissingDependency)
	case deps.Runner == nil:
		return nil, fmt.Errorf("%w: batch runner", ErrMissingDependency)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = system.New()
	}
	return &Orchestrator{
		cfg:      cfg,
		retry:    NewRetryPolicy(cfg),
		session:  deps.Session,
		cache:    deps.Cache,
		limiter:  deps.Limiter,
		runner:   deps.Runner,
		post:     deps.Post,
		archiver: deps.Archiver,
		blocked:  newDomainBlocklist(cfg.BlockedDomains),
		ids:      deps.IDs,
		clock:    clock,
		pause:    timerPauseController{},
		logger:   logger,
	}, nil
}

// Crawl discovers product URLs for every domain and returns one result per
// requested domain, in request order. It never fails: a domain that could not
// be crawled, or was still running when the crawl timeout fired, yields an
// empty product list.
func (o *Orchestrator) Crawl(ctx context.Context, domains []string, opts CrawlOptions) []DomainResult {
	runID := o.newRunID()
	startedAt := o.clock.Now()
	logger := o.logger.With(zap.String("run_id", runID))

	keys := o.allowedDomains(logger, uniqueDomainKeys(domains))
	found := make(map[string][]string, len(keys))

	if len(keys) > 0 {
		found = o.crawlAll(ctx, logger, keys, opts)
		o.postProcess(ctx, logger, runID, keys, found, opts)
	}

	results := make([]DomainResult, 0, len(domains))
	for _, d := range domains {
		key := DomainKey(d)
		if key == "" {
			key = strings.TrimSpace(d)
		}
		urls := append([]string{}, found[key]...)
		results = append(results, DomainResult{Domain: key, ProductURLs: urls})
	}

	o.archive(ctx, logger, RunArchive{
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: o.clock.Now(),
		Results:    results,
	})
	logger.Info("crawl finished",
		zap.Int("domains", len(keys)),
		zap.Duration("elapsed", o.clock.Now().Sub(startedAt)),
	)
	return results
}

func (o *Orchestrator) crawlAll(
	ctx context.Context,
	logger *zap.Logger,
	keys []string,
	opts CrawlOptions,
) map[string][]string {
	found := make(map[string][]string, len(keys))

	crawlCtx := ctx
	if o.cfg.CrawlTimeout > 0 {
		var cancel context.CancelFunc
		crawlCtx, cancel = context.WithTimeout(ctx, o.cfg.CrawlTimeout)
		defer cancel()
	}

	if err := o.session.Setup(crawlCtx); err != nil {
		logger.Error("browser session setup failed", zap.Error(err))
		for range keys {
			metrics.ObserveDomain("failed")
		}
		return found
	}
	defer func() {
		if err := o.session.Cleanup(); err != nil {
			logger.Warn("browser session cleanup failed", zap.Error(err))
		}
	}()

	limit := opts.MaxConcurrency
	if limit <= 0 {
		limit = o.cfg.ConcurrencyLimit
	}
	sem := semaphore.NewWeighted(int64(limit))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, key := range keys {
		if err := sem.Acquire(crawlCtx, 1); err != nil {
			logger.Warn("crawl deadline reached before domain started", zap.String("domain", key))
			metrics.ObserveDomain("timeout")
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			products, drained := o.crawlDomain(crawlCtx, logger, key)
			if !drained {
				metrics.ObserveDomain("timeout")
				return
			}
			metrics.ObserveDomain("drained")
			mu.Lock()
			found[key] = products
			mu.Unlock()
		}()
	}
	wg.Wait()
	return found
}

// crawlDomain runs the BFS state machine for one domain. It reports drained
// as false when the invocation was cancelled before the frontier emptied.
func (o *Orchestrator) crawlDomain(ctx context.Context, logger *zap.Logger, domain string) ([]string, bool) {
	logger = logger.With(zap.String("domain", domain))
	seed, err := SeedURL(domain)
	if err != nil {
		logger.Warn("invalid seed", zap.Error(err))
		return nil, true
	}

	queue := newFrontier(FrontierEntry{URL: seed, Depth: 0})
	visited := newVisitedSet()
	state := &domainState{
		domain:  domain,
		queue:   queue,
		visited: visited,
		seen:    make(map[string]struct{}),
	}

	fetched := 0
	for queue.len() > 0 {
		if ctx.Err() != nil {
			logger.Warn("crawl cancelled before domain drained",
				zap.Int("visited", visited.Len()),
				zap.Int("pending", queue.len()),
			)
			return nil, false
		}
		entry, _ := queue.pop()
		if entry.Depth > o.cfg.MaxDepth || !visited.MarkIfNew(entry.URL) {
			continue
		}
		if o.cfg.MaxPagesPerDomain > 0 && fetched >= o.cfg.MaxPagesPerDomain {
			logger.Info("page budget exhausted", zap.Int("max_pages", o.cfg.MaxPagesPerDomain))
			break
		}
		fetched++

		links, res, err := o.fetch(ctx, domain, entry.URL)
		if err != nil {
			logger.Warn("crawl abandoned before domain drained",
				zap.String("url", entry.URL),
				zap.Int("visited", visited.Len()),
				zap.Int("pending", queue.len()),
				zap.Error(err),
			)
			return nil, false
		}
		if res.Outcome != NavigationOK {
			visited.MarkFailed(entry.URL)
			logger.Warn("giving up on url",
				zap.String("url", entry.URL),
				zap.Int("depth", entry.Depth),
				zap.String("outcome", res.Outcome.String()),
				zap.Int("status", res.StatusCode),
				zap.Error(res.Err),
			)
			continue
		}
		o.handleLinks(ctx, logger, state, entry, links)
	}
	if ctx.Err() != nil {
		return nil, false
	}

	logger.Info("domain drained",
		zap.Int("visited", visited.Len()),
		zap.Int("failed", visited.Failed()),
		zap.Int("products", len(state.products)),
	)
	return state.products, true
}

type domainState struct {
	domain   string
	queue    *frontier
	visited  *visitedSet
	products []string
	seen     map[string]struct{}
}

// handleLinks classifies the links of one fetched page, collecting products and
// enqueueing categories one level deeper.
func (o *Orchestrator) handleLinks(
	ctx context.Context,
	logger *zap.Logger,
	st *domainState,
	parent FrontierEntry,
	links []string,
) {
	for _, raw := range links {
		link, err := Normalize(raw, st.domain)
		if err != nil || !InDomain(link, st.domain) {
			continue
		}
		switch Classify(link) {
		case ClassProduct:
			if IsListingURL(link) {
				continue
			}
			if _, dup := st.seen[link]; dup {
				continue
			}
			st.seen[link] = struct{}{}
			metrics.ObserveProductURL(st.domain, o.cache.IsCached(ctx, link))
			if err := o.cache.Record(ctx, link, st.domain); err != nil {
				logger.Warn("cache record failed; keeping product", zap.String("url", link), zap.Error(err))
			}
			st.products = append(st.products, link)
		case ClassCategory:
			child := FrontierEntry{URL: link, Depth: parent.Depth + 1}
			if child.Depth > o.cfg.MaxDepth || st.visited.Has(link) {
				continue
			}
			if !st.queue.push(child) {
				continue
			}
			if err := o.cache.Record(ctx, link, st.domain); err != nil {
				logger.Warn("cache record failed", zap.String("url", link), zap.Error(err))
			}
		}
	}
}

// postProcess hands each domain's products to the batch runner once.
// Failures are logged by the runner; the discovered list is the result either way.
func (o *Orchestrator) postProcess(
	ctx context.Context,
	logger *zap.Logger,
	runID string,
	keys []string,
	found map[string][]string,
	opts CrawlOptions,
) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = o.cfg.BatchSize
	}
	for _, domain := range keys {
		products := found[domain]
		if len(products) == 0 {
			continue
		}
		if ctx.Err() != nil {
			logger.Warn("skipping post-processing", zap.String("domain", domain), zap.Error(ctx.Err()))
			continue
		}
		fn := func(_ context.Context, batch []string) ([]string, error) { return batch, nil }
		if o.post != nil {
			fn = func(ctx context.Context, batch []string) ([]string, error) {
				return o.post.Process(ctx, runID, domain, batch)
			}
		}
		processed := o.runner.Run(ctx, products, batchSize, opts.MaxConcurrency, fn)
		logger.Info("post-processing complete",
			zap.String("domain", domain),
			zap.Int("discovered", len(products)),
			zap.Int("processed", len(processed)),
		)
	}
}

func (o *Orchestrator) archive(ctx context.Context, logger *zap.Logger, doc RunArchive) {
	if o.archiver == nil {
		return
	}
	uri, err := o.archiver.Archive(context.WithoutCancel(ctx), doc)
	if err != nil {
		logger.Warn("archive run failed", zap.Error(err))
		return
	}
	logger.Info("run archived", zap.String("uri", uri))
}

func (o *Orchestrator) newRunID() string {
	if o.ids == nil {
		return fmt.Sprintf("run-%d", o.clock.Now().UnixNano())
	}
	id, err := o.ids.NewID()
	if err != nil {
		o.logger.Warn("generate run id", zap.Error(err))
		return fmt.Sprintf("run-%d", o.clock.Now().UnixNano())
	}
	return id
}

// allowedDomains drops blocklisted domains; they still get an empty result.
func (o *Orchestrator) allowedDomains(logger *zap.Logger, keys []string) []string {
	if o.blocked == nil {
		return keys
	}
	out := keys[:0]
	for _, key := range keys {
		if o.blocked.Blocked(key) {
			logger.Info("domain is blocklisted", zap.String("domain", key))
			metrics.ObserveDomain("blocked")
			continue
		}
		out = append(out, key)
	}
	return out
}

// uniqueDomainKeys returns the distinct non-empty domain keys in first-seen order.
func uniqueDomainKeys(domains []string) []string {
	seen := make(map[string]struct{}, len(domains))
	keys := make([]string, 0, len(domains))
	for _, d := range domains {
		key := DomainKey(d)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}
