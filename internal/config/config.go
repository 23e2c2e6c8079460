// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// Backend names accepted by the pluggable sections.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBadger   = "badger"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPubSub   = "pubsub"

	EngineStatic   = "static"
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
	EngineHybrid   = "hybrid"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Products  ProductsConfig  `mapstructure:"products"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlerConfig governs the crawl engine.
type CrawlerConfig struct {
	MaxDepth          int           `mapstructure:"max_depth"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
	BatchSize         int           `mapstructure:"batch_size"`
	ConcurrencyLimit  int           `mapstructure:"concurrency_limit"`
	CrawlTimeout      time.Duration `mapstructure:"crawl_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	MaxPagesPerDomain int           `mapstructure:"max_pages_per_domain"`
	RateLimitInterval time.Duration `mapstructure:"rate_limit_interval"`
	UserAgent         string        `mapstructure:"user_agent"`
	BlockedDomains    []string      `mapstructure:"blocked_domains"`
}

// BrowserConfig selects and tunes the page engine.
type BrowserConfig struct {
	Engine   string `mapstructure:"engine"`
	Renderer string `mapstructure:"renderer"`
	// MaxParallel bounds open chromedp tabs.
	MaxParallel int           `mapstructure:"max_parallel"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	ExecPath    string        `mapstructure:"exec_path"`
	NoSandbox   bool          `mapstructure:"no_sandbox"`
	// RecycleAfter is the page count after which rod restarts Chrome.
	RecycleAfter      int64    `mapstructure:"recycle_after"`
	DetectorMinBytes  int      `mapstructure:"detector_min_bytes"`
	DetectorSelectors []string `mapstructure:"detector_selectors"`
}

// PostgresConfig is shared by every Postgres-backed section.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// RedisConfig configures the Redis URL cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// BadgerConfig configures the embedded URL cache. An empty Dir keeps it in memory.
type BadgerConfig struct {
	Dir string `mapstructure:"dir"`
}

// CacheConfig selects the cross-run URL cache backend.
type CacheConfig struct {
	Backend  string         `mapstructure:"backend"`
	TTL      time.Duration  `mapstructure:"ttl"`
	Table    string         `mapstructure:"table"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Badger   BadgerConfig   `mapstructure:"badger"`
}

// ProductsConfig selects where staged products are persisted.
type ProductsConfig struct {
	Backend      string         `mapstructure:"backend"`
	ProductTable string         `mapstructure:"product_table"`
	HistoryTable string         `mapstructure:"history_table"`
	Postgres     PostgresConfig `mapstructure:"postgres"`
}

// PublisherConfig holds metadata for batch notifications.
type PublisherConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ArchiveConfig sets where run summaries are written.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// Load builds a Config from disk and environment. With an empty path the
// usual locations are searched for config.{yaml,json,toml}; a missing file is
// not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/product-url-crawler/")
		v.AddConfigPath("$HOME/.product-url-crawler")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := crawler.DefaultConfig()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	v.SetDefault("crawler.max_depth", def.MaxDepth)
	v.SetDefault("crawler.max_retries", def.MaxRetries)
	v.SetDefault("crawler.retry_base_delay", def.RetryBaseDelay)
	v.SetDefault("crawler.retry_max_delay", def.RetryMaxDelay)
	v.SetDefault("crawler.batch_size", def.BatchSize)
	v.SetDefault("crawler.concurrency_limit", runtime.GOMAXPROCS(0))
	v.SetDefault("crawler.crawl_timeout", def.CrawlTimeout)
	v.SetDefault("crawler.navigation_timeout", def.NavigationTimeout)
	v.SetDefault("crawler.max_pages_per_domain", def.MaxPagesPerDomain)
	v.SetDefault("crawler.rate_limit_interval", "2s")
	v.SetDefault("crawler.user_agent", "product-url-crawler/1.0 (+https://github.com/JakeFAU/product-url-crawler)")
	v.SetDefault("crawler.blocked_domains", []string{})

	v.SetDefault("browser.engine", EngineChromedp)
	v.SetDefault("browser.renderer", EngineChromedp)
	v.SetDefault("browser.max_parallel", 4)
	v.SetDefault("browser.settle_delay", "500ms")
	v.SetDefault("browser.recycle_after", 75)
	v.SetDefault("browser.detector_min_bytes", 2048)

	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.table", "url_cache")
	v.SetDefault("cache.postgres.max_conns", 8)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.prefix", "urlcache:")

	v.SetDefault("products.backend", BackendNone)
	v.SetDefault("products.product_table", "products")
	v.SetDefault("products.history_table", "crawl_history")
	v.SetDefault("products.postgres.max_conns", 8)

	v.SetDefault("publisher.backend", BackendNone)
	v.SetDefault("publisher.topic", "product-urls")

	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.prefix", "runs")
	v.SetDefault("archive.local_dir", "data/runs")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := c.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("crawler: %w", err)
	}
	if c.Crawler.RateLimitInterval < 0 {
		return fmt.Errorf("crawler.rate_limit_interval must be >= 0")
	}

	switch c.Browser.Engine {
	case EngineStatic, EngineChromedp, EngineRod:
	case EngineHybrid:
		if c.Browser.Renderer != EngineChromedp && c.Browser.Renderer != EngineRod {
			return fmt.Errorf("browser.renderer must be chromedp or rod, got %q", c.Browser.Renderer)
		}
	default:
		return fmt.Errorf("browser.engine %q is not supported", c.Browser.Engine)
	}
	if c.Browser.MaxParallel < 0 {
		return fmt.Errorf("browser.max_parallel must be >= 0")
	}

	switch c.Cache.Backend {
	case BackendMemory, BackendBadger:
	case BackendPostgres:
		if c.Cache.Postgres.DSN == "" {
			return fmt.Errorf("cache.postgres.dsn is required for the postgres cache")
		}
	case BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be >= 0")
	}

	switch c.Products.Backend {
	case BackendNone, BackendMemory:
	case BackendPostgres:
		if c.Products.Postgres.DSN == "" {
			return fmt.Errorf("products.postgres.dsn is required for the postgres product store")
		}
	default:
		return fmt.Errorf("products.backend %q is not supported", c.Products.Backend)
	}

	switch c.Publisher.Backend {
	case BackendNone, BackendMemory:
	case BackendPubSub:
		if c.Publisher.ProjectID == "" {
			return fmt.Errorf("publisher.project_id is required for pubsub")
		}
	default:
		return fmt.Errorf("publisher.backend %q is not supported", c.Publisher.Backend)
	}
	if c.Publisher.Backend != BackendNone && c.Products.Backend == BackendNone {
		return fmt.Errorf("publisher requires products.backend to be set")
	}

	switch c.Archive.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir is required for the local archive")
		}
	case BackendGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	return nil
}

// EngineConfig projects the crawler section onto the engine's Config.
func (c Config) EngineConfig() crawler.Config {
	return crawler.Config{
		MaxDepth:          c.Crawler.MaxDepth,
		MaxRetries:        c.Crawler.MaxRetries,
		RetryBaseDelay:    c.Crawler.RetryBaseDelay,
		RetryMaxDelay:     c.Crawler.RetryMaxDelay,
		BatchSize:         c.Crawler.BatchSize,
		ConcurrencyLimit:  c.Crawler.ConcurrencyLimit,
		CrawlTimeout:      c.Crawler.CrawlTimeout,
		NavigationTimeout: c.Crawler.NavigationTimeout,
		MaxPagesPerDomain: c.Crawler.MaxPagesPerDomain,
		BlockedDomains:    c.Crawler.BlockedDomains,
	}
}
