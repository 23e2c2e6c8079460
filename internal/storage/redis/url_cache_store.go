// Package redis stores URL cache entries as Redis hashes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// DefaultPrefix namespaces cache keys.
const DefaultPrefix = "url_cache:"

const (
	fieldURL          = "url"
	fieldDomain       = "domain"
	fieldFirstSeen    = "first_seen"
	fieldLastAccessed = "last_accessed"
	fieldAccessCount  = "access_count"
	fieldTTLSeconds   = "ttl_seconds"
)

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// URLCacheStore keeps one hash per URL. Upserts run inside MULTI/EXEC so the
// counter increment and the timestamp refresh are applied together.
type URLCacheStore struct {
	client goredis.UniversalClient
	prefix string
}

// Connect dials Redis and verifies the connection with PING.
func Connect(ctx context.Context, cfg Config) (*URLCacheStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}
	return NewURLCacheStore(client, cfg.Prefix), nil
}

// NewURLCacheStore wraps an existing client.
func NewURLCacheStore(client goredis.UniversalClient, prefix string) *URLCacheStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &URLCacheStore{client: client, prefix: prefix}
}

// Get returns the entry for url.
func (s *URLCacheStore) Get(ctx context.Context, url string) (crawler.CacheEntry, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(url)).Result()
	if err != nil {
		return crawler.CacheEntry{}, false, fmt.Errorf("hgetall: %w", err)
	}
	if len(fields) == 0 {
		return crawler.CacheEntry{}, false, nil
	}
	entry, err := parseEntry(fields)
	if err != nil {
		return crawler.CacheEntry{}, false, err
	}
	return entry, true, nil
}

// Upsert creates the hash on first sight and increments access_count otherwise.
func (s *URLCacheStore) Upsert(ctx context.Context, observed crawler.CacheEntry) (crawler.CacheEntry, error) {
	key := s.key(observed.URL)
	var all *goredis.MapStringStringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSetNX(ctx, key, fieldURL, observed.URL)
		pipe.HSetNX(ctx, key, fieldDomain, observed.Domain)
		pipe.HSetNX(ctx, key, fieldFirstSeen, formatTime(observed.FirstSeen))
		pipe.HSetNX(ctx, key, fieldTTLSeconds, strconv.FormatInt(int64(observed.TTL/time.Second), 10))
		pipe.HSet(ctx, key, fieldLastAccessed, formatTime(observed.LastAccessed))
		pipe.HIncrBy(ctx, key, fieldAccessCount, 1)
		all = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return crawler.CacheEntry{}, fmt.Errorf("upsert %s: %w", observed.URL, err)
	}
	return parseEntry(all.Val())
}

// Clear deletes every key under the configured prefix.
func (s *URLCacheStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 500).Result()
		if err != nil {
			return fmt.Errorf("scan %s*: %w", s.prefix, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("del cache keys: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close releases the client.
func (s *URLCacheStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

func (s *URLCacheStore) key(url string) string {
	return s.prefix + strconv.FormatUint(xxhash.Sum64String(url), 16)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var errMalformedEntry = errors.New("malformed cache entry")

func parseEntry(fields map[string]string) (crawler.CacheEntry, error) {
	entry := crawler.CacheEntry{
		URL:    fields[fieldURL],
		Domain: fields[fieldDomain],
	}
	if entry.URL == "" {
		return crawler.CacheEntry{}, fmt.Errorf("%w: missing url", errMalformedEntry)
	}
	var err error
	if entry.FirstSeen, err = time.Parse(time.RFC3339Nano, fields[fieldFirstSeen]); err != nil {
		return crawler.CacheEntry{}, fmt.Errorf("%w: first_seen: %w", errMalformedEntry, err)
	}
	if entry.LastAccessed, err = time.Parse(time.RFC3339Nano, fields[fieldLastAccessed]); err != nil {
		return crawler.CacheEntry{}, fmt.Errorf("%w: last_accessed: %w", errMalformedEntry, err)
	}
	if entry.AccessCount, err = strconv.ParseInt(fields[fieldAccessCount], 10, 64); err != nil {
		return crawler.CacheEntry{}, fmt.Errorf("%w: access_count: %w", errMalformedEntry, err)
	}
	ttl, err := strconv.ParseInt(fields[fieldTTLSeconds], 10, 64)
	if err != nil {
		return crawler.CacheEntry{}, fmt.Errorf("%w: ttl_seconds: %w", errMalformedEntry, err)
	}
	entry.TTL = time.Duration(ttl) * time.Second
	return entry, nil
}
