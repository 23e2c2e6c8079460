package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// URLCacheStore persists URL cache entries in a Postgres table keyed by url.
type URLCacheStore struct {
	pool  Pool
	table string
}

// NewURLCacheStore constructs a store from an existing pool.
func NewURLCacheStore(pool Pool, table string) (*URLCacheStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableOrDefault(table, "url_cache")
	if err != nil {
		return nil, err
	}
	return &URLCacheStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the cache table if it does not exist.
func (s *URLCacheStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url           TEXT PRIMARY KEY,
	domain        TEXT NOT NULL,
	first_seen    TIMESTAMPTZ NOT NULL,
	last_accessed TIMESTAMPTZ NOT NULL,
	access_count  BIGINT NOT NULL DEFAULT 1 CHECK (access_count >= 1),
	ttl_seconds   BIGINT NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Get returns the entry for url.
func (s *URLCacheStore) Get(ctx context.Context, url string) (crawler.CacheEntry, bool, error) {
	query := fmt.Sprintf(`
SELECT url, domain, first_seen, last_accessed, access_count, ttl_seconds
FROM %s WHERE url = $1`, s.table)
	entry, err := scanEntry(s.pool.QueryRow(ctx, query, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.CacheEntry{}, false, nil
	}
	if err != nil {
		return crawler.CacheEntry{}, false, fmt.Errorf("select cache entry: %w", err)
	}
	return entry, true, nil
}

// Upsert inserts observed or atomically increments the existing row's
// access_count. The increment happens inside the conflict clause so parallel
// writers never lose an update.
func (s *URLCacheStore) Upsert(ctx context.Context, observed crawler.CacheEntry) (crawler.CacheEntry, error) {
	query := fmt.Sprintf(`
INSERT INTO %[1]s (url, domain, first_seen, last_accessed, access_count, ttl_seconds)
VALUES ($1, $2, $3, $4, 1, $5)
ON CONFLICT (url) DO UPDATE SET
	last_accessed = EXCLUDED.last_accessed,
	access_count  = %[1]s.access_count + 1
RETURNING url, domain, first_seen, last_accessed, access_count, ttl_seconds`, s.table)
	entry, err := scanEntry(s.pool.QueryRow(ctx, query,
		observed.URL,
		observed.Domain,
		observed.FirstSeen,
		observed.LastAccessed,
		int64(observed.TTL/time.Second),
	))
	if err != nil {
		return crawler.CacheEntry{}, fmt.Errorf("upsert cache entry: %w", err)
	}
	return entry, nil
}

// Clear deletes every row.
func (s *URLCacheStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", s.table)); err != nil {
		return fmt.Errorf("truncate %s: %w", s.table, err)
	}
	return nil
}

func scanEntry(row pgx.Row) (crawler.CacheEntry, error) {
	var (
		entry      crawler.CacheEntry
		ttlSeconds int64
	)
	if err := row.Scan(
		&entry.URL,
		&entry.Domain,
		&entry.FirstSeen,
		&entry.LastAccessed,
		&entry.AccessCount,
		&ttlSeconds,
	); err != nil {
		return crawler.CacheEntry{}, fmt.Errorf("scan: %w", err)
	}
	entry.TTL = time.Duration(ttlSeconds) * time.Second
	return entry, nil
}
