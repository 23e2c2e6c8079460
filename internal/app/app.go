// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/archive"
	"github.com/JakeFAU/product-url-crawler/internal/browser"
	"github.com/JakeFAU/product-url-crawler/internal/browser/headless"
	"github.com/JakeFAU/product-url-crawler/internal/browser/hybrid"
	"github.com/JakeFAU/product-url-crawler/internal/browser/rod"
	"github.com/JakeFAU/product-url-crawler/internal/browser/static"
	"github.com/JakeFAU/product-url-crawler/internal/cache"
	"github.com/JakeFAU/product-url-crawler/internal/clock/system"
	"github.com/JakeFAU/product-url-crawler/internal/config"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
	"github.com/JakeFAU/product-url-crawler/internal/governor"
	"github.com/JakeFAU/product-url-crawler/internal/hash/sha256"
	"github.com/JakeFAU/product-url-crawler/internal/id/uuid"
	"github.com/JakeFAU/product-url-crawler/internal/metrics"
	"github.com/JakeFAU/product-url-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/product-url-crawler/internal/publisher/memory"
	pubsubpub "github.com/JakeFAU/product-url-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/product-url-crawler/internal/staging"
	"github.com/JakeFAU/product-url-crawler/internal/storage/badger"
	"github.com/JakeFAU/product-url-crawler/internal/storage/gcs"
	"github.com/JakeFAU/product-url-crawler/internal/storage/local"
	memstore "github.com/JakeFAU/product-url-crawler/internal/storage/memory"
	"github.com/JakeFAU/product-url-crawler/internal/storage/postgres"
	"github.com/JakeFAU/product-url-crawler/internal/storage/redis"
)

// Closer releases a resource owned by the App.
type Closer interface {
	Close() error
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// App holds all the shared, long-lived services for the application.
// It is built once at startup and handed to the command that needs it.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	orchestrator *crawler.Orchestrator
	closers      []namedCloser
}

type namedCloser struct {
	name   string
	closer Closer
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Orchestrator returns the wired crawl engine.
func (a *App) Orchestrator() *crawler.Orchestrator {
	return a.orchestrator
}

// New instantiates every backend named by cfg and wires the orchestrator.
// It fails fast: anything opened before the failure is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			if closeErr := a.Close(); closeErr != nil {
				logger.Warn("close partially built app", zap.Error(closeErr))
			}
		}
	}()

	logger.Info("initializing application services",
		zap.String("engine", cfg.Browser.Engine),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("products", cfg.Products.Backend),
		zap.String("publisher", cfg.Publisher.Backend),
		zap.String("archive", cfg.Archive.Backend),
	)

	session, err := a.buildSession()
	if err != nil {
		return nil, err
	}
	urlCache, err := a.buildCache(ctx)
	if err != nil {
		return nil, err
	}
	post, err := a.buildPostProcessor(ctx)
	if err != nil {
		return nil, err
	}
	archiver, err := a.buildArchiver(ctx)
	if err != nil {
		return nil, err
	}
	gov, err := governor.New(cfg.Crawler.ConcurrencyLimit, logger.Named("governor"))
	if err != nil {
		return nil, fmt.Errorf("build governor: %w", err)
	}

	deps := crawler.Dependencies{
		Session: session,
		Cache:   urlCache,
		Limiter: ratelimit.New(ratelimit.Config{Interval: cfg.Crawler.RateLimitInterval}, logger.Named("ratelimit")),
		Runner:  gov,
		IDs:     uuid.New(),
		Clock:   system.New(),
	}
	// Optional collaborators stay nil interfaces when disabled.
	if post != nil {
		deps.Post = post
	}
	if archiver != nil {
		deps.Archiver = archiver
	}

	a.orchestrator, err = crawler.NewOrchestrator(cfg.EngineConfig(), deps, logger.Named("crawler"))
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) addCloser(name string, c Closer) {
	a.closers = append(a.closers, namedCloser{name: name, closer: c})
}

func (a *App) buildSession() (crawler.BrowserSession, error) {
	b := a.cfg.Browser
	staticSession := func() crawler.BrowserSession {
		return static.New(static.Config{UserAgent: a.cfg.Crawler.UserAgent}, a.logger.Named("static"))
	}
	renderSession := func(engine string) (crawler.BrowserSession, error) {
		switch engine {
		case config.EngineChromedp:
			s, err := headless.New(headless.Config{
				MaxParallel: b.MaxParallel,
				UserAgent:   a.cfg.Crawler.UserAgent,
				SettleDelay: b.SettleDelay,
				ExecPath:    b.ExecPath,
				NoSandbox:   b.NoSandbox,
			}, a.logger.Named("chromedp"))
			if err != nil {
				return nil, fmt.Errorf("build chromedp session: %w", err)
			}
			return s, nil
		case config.EngineRod:
			return rod.New(rod.Config{
				MaxPages:  b.RecycleAfter,
				Bin:       b.ExecPath,
				UserAgent: a.cfg.Crawler.UserAgent,
				NoSandbox: b.NoSandbox,
			}, a.logger.Named("rod")), nil
		default:
			return nil, fmt.Errorf("unknown render engine %q", engine)
		}
	}

	switch b.Engine {
	case config.EngineStatic:
		return staticSession(), nil
	case config.EngineChromedp, config.EngineRod:
		return renderSession(b.Engine)
	case config.EngineHybrid:
		render, err := renderSession(b.Renderer)
		if err != nil {
			return nil, err
		}
		detector := browser.NewDetector(b.DetectorMinBytes, b.DetectorSelectors)
		s, err := hybrid.New(staticSession(), render, detector, a.logger.Named("hybrid"))
		if err != nil {
			return nil, fmt.Errorf("build hybrid session: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q", b.Engine)
	}
}

func (a *App) buildCache(ctx context.Context) (*cache.Cache, error) {
	c := a.cfg.Cache
	var store crawler.URLCacheStore

	switch c.Backend {
	case config.BackendMemory:
		store = memstore.NewURLCacheStore()
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, poolConfig(c.Postgres))
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		a.addCloser("cache postgres pool", closerFunc(func() error { pool.Close(); return nil }))
		pg, err := postgres.NewURLCacheStore(pool, c.Table)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		store = pg
	case config.BackendRedis:
		rs, err := redis.Connect(ctx, redis.Config{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		a.addCloser("redis cache", rs)
		store = rs
	case config.BackendBadger:
		bs, err := badger.Open(c.Badger.Dir, a.logger)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		a.addCloser("badger cache", bs)
		store = bs
	default:
		return nil, fmt.Errorf("unknown cache backend %q", c.Backend)
	}

	urlCache, err := cache.New(store, cache.WithTTL(c.TTL), cache.WithLogger(a.logger.Named("cache")))
	if err != nil {
		return nil, fmt.Errorf("build url cache: %w", err)
	}
	return urlCache, nil
}

func (a *App) buildPostProcessor(ctx context.Context) (*staging.Processor, error) {
	p := a.cfg.Products
	var products crawler.ProductStore

	switch p.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory:
		products = memstore.NewProductStore()
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, poolConfig(p.Postgres))
		if err != nil {
			return nil, fmt.Errorf("products: %w", err)
		}
		a.addCloser("products postgres pool", closerFunc(func() error { pool.Close(); return nil }))
		ps, err := postgres.NewProductStore(pool, p.ProductTable, p.HistoryTable)
		if err != nil {
			return nil, fmt.Errorf("products: %w", err)
		}
		if err := ps.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("products: %w", err)
		}
		products = ps
	default:
		return nil, fmt.Errorf("unknown products backend %q", p.Backend)
	}

	opts := []staging.Option{staging.WithLogger(a.logger.Named("staging"))}
	switch a.cfg.Publisher.Backend {
	case config.BackendNone:
	case config.BackendMemory:
		opts = append(opts, staging.WithPublisher(memory.New(), a.cfg.Publisher.Topic))
	case config.BackendPubSub:
		pub, err := pubsubpub.Connect(ctx, a.cfg.Publisher.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("publisher: %w", err)
		}
		a.addCloser("pubsub publisher", pub)
		opts = append(opts, staging.WithPublisher(pub, a.cfg.Publisher.Topic))
	default:
		return nil, fmt.Errorf("unknown publisher backend %q", a.cfg.Publisher.Backend)
	}

	processor, err := staging.New(products, opts...)
	if err != nil {
		return nil, fmt.Errorf("build staging processor: %w", err)
	}
	return processor, nil
}

func (a *App) buildArchiver(ctx context.Context) (*archive.Writer, error) {
	c := a.cfg.Archive
	var blobs crawler.BlobStore

	switch c.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory:
		blobs = memstore.NewBlobStore()
	case config.BackendLocal:
		ls, err := local.New(local.Config{BaseDir: c.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		blobs = ls
	case config.BackendGCS:
		gs, err := gcs.Connect(ctx, gcs.Config{Bucket: c.GCSBucket}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		a.addCloser("gcs blob store", gs)
		blobs = gs
	default:
		return nil, fmt.Errorf("unknown archive backend %q", c.Backend)
	}

	w, err := archive.New(blobs, sha256.New(), c.Prefix, a.logger.Named("archive"))
	if err != nil {
		return nil, fmt.Errorf("build archive writer: %w", err)
	}
	return w, nil
}

func poolConfig(c config.PostgresConfig) postgres.PoolConfig {
	return postgres.PoolConfig{
		DSN:             c.DSN,
		MaxConns:        c.MaxConns,
		MinConns:        c.MinConns,
		MaxConnLifetime: c.MaxConnLifetime,
	}
}

// Close releases backends in reverse order of creation and flushes the logger.
// Every closer runs even when an earlier one fails.
func (a *App) Close() error {
	a.logger.Info("shutting down application services")
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.closer.Close(); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	// Sync commonly fails on stderr-backed loggers; it is best-effort.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
