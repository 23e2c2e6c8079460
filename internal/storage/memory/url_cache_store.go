package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// URLCacheStore is a mutex-guarded URL cache backend. It does not survive
// restarts; use it for tests and one-off CLI runs.
type URLCacheStore struct {
	mu      sync.RWMutex
	entries map[string]crawler.CacheEntry
}

// NewURLCacheStore constructs an empty URLCacheStore.
func NewURLCacheStore() *URLCacheStore {
	return &URLCacheStore{entries: make(map[string]crawler.CacheEntry)}
}

// Get returns the entry for url.
func (s *URLCacheStore) Get(_ context.Context, url string) (crawler.CacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[url]
	return entry, ok, nil
}

// Upsert inserts observed or bumps the existing entry's counter.
func (s *URLCacheStore) Upsert(_ context.Context, observed crawler.CacheEntry) (crawler.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[observed.URL]
	if !ok {
		if observed.AccessCount < 1 {
			observed.AccessCount = 1
		}
		s.entries[observed.URL] = observed
		return observed, nil
	}
	entry.AccessCount++
	entry.LastAccessed = observed.LastAccessed
	s.entries[observed.URL] = entry
	return entry, nil
}

// Clear drops all entries.
func (s *URLCacheStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]crawler.CacheEntry)
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries.
func (s *URLCacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
