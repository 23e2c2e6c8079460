// Package badger stores URL cache entries in an embedded BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	badgerdb "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

const (
	keyPrefix          = "url:"
	maxConflictRetries = 10
)

// URLCacheStore keeps JSON-encoded entries keyed by URL. It survives restarts
// without any external service.
type URLCacheStore struct {
	db     *badgerdb.DB
	logger *zap.Logger
}

// Open opens (or creates) a store at dir. An empty dir opens an in-memory
// database, which tests use.
func Open(dir string, logger *zap.Logger) (*URLCacheStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badgerdb.DefaultOptions(dir).
		WithLogger(zapAdapter{logger.Named("badger").Sugar()}).
		WithNumVersionsToKeep(1)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create badger dir %s: %w", dir, err)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &URLCacheStore{db: db, logger: logger}, nil
}

// Close flushes and closes the database.
func (s *URLCacheStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	return nil
}

// Get returns the entry for url.
func (s *URLCacheStore) Get(_ context.Context, url string) (crawler.CacheEntry, bool, error) {
	var (
		entry crawler.CacheEntry
		found bool
	)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + url))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return crawler.CacheEntry{}, false, fmt.Errorf("get %s: %w", url, err)
	}
	return entry, found, nil
}

// Upsert runs read-modify-write in one transaction. Badger aborts a
// transaction with ErrConflict when another writer touched the key, and the
// whole read-modify-write is retried, so increments are never lost.
func (s *URLCacheStore) Upsert(_ context.Context, observed crawler.CacheEntry) (crawler.CacheEntry, error) {
	key := []byte(keyPrefix + observed.URL)
	var result crawler.CacheEntry
	err := s.update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badgerdb.ErrKeyNotFound):
			result = observed
			result.AccessCount = 1
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &result)
			}); err != nil {
				return err
			}
			result.AccessCount++
			result.LastAccessed = observed.LastAccessed
		}
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return crawler.CacheEntry{}, fmt.Errorf("upsert %s: %w", observed.URL, err)
	}
	return result, nil
}

// Clear drops every cache key.
func (s *URLCacheStore) Clear(_ context.Context) error {
	if err := s.db.DropPrefix([]byte(keyPrefix)); err != nil {
		return fmt.Errorf("drop cache prefix: %w", err)
	}
	return nil
}

func (s *URLCacheStore) update(fn func(txn *badgerdb.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
		s.logger.Debug("badger transaction conflict, retrying", zap.Int("attempt", i+1))
	}
	return fmt.Errorf("transaction conflict not resolved after %d retries", maxConflictRetries)
}

// zapAdapter satisfies badger.Logger.
type zapAdapter struct {
	s *zap.SugaredLogger
}

func (a zapAdapter) Errorf(format string, args ...any)   { a.s.Errorf(format, args...) }
func (a zapAdapter) Warningf(format string, args ...any) { a.s.Warnf(format, args...) }
func (a zapAdapter) Infof(format string, args ...any)    { a.s.Debugf(format, args...) }
func (a zapAdapter) Debugf(format string, args ...any)   { a.s.Debugf(format, args...) }
