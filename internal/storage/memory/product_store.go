package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// ErrProductExists is returned when Create sees a URL that is already stored.
var ErrProductExists = errors.New("product already exists")

// ProductStore provides an in-memory implementation for development/testing.
type ProductStore struct {
	mu      sync.RWMutex
	nextID  int64
	byURL   map[string]crawler.Product
	history []crawler.CrawlHistory
}

// NewProductStore constructs a ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{byURL: make(map[string]crawler.Product)}
}

// GetByURL fetches a product by URL.
func (s *ProductStore) GetByURL(_ context.Context, url string) (crawler.Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byURL[url]
	return p, ok, nil
}

// Create stores a new active product.
func (s *ProductStore) Create(_ context.Context, draft crawler.ProductDraft) (crawler.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byURL[draft.URL]; exists {
		return crawler.Product{}, ErrProductExists
	}
	s.nextID++
	now := time.Now().UTC()
	p := crawler.Product{
		ID:        s.nextID,
		URL:       draft.URL,
		Domain:    draft.Domain,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byURL[draft.URL] = p
	return p, nil
}

// LogCrawlAttempt appends a crawl-history row.
func (s *ProductStore) LogCrawlAttempt(_ context.Context, history crawler.CrawlHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history.ID = int64(len(s.history) + 1)
	s.history = append(s.history, history)
	return nil
}

// History returns a copy of all crawl-history rows.
func (s *ProductStore) History() []crawler.CrawlHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.CrawlHistory, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of stored products.
func (s *ProductStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byURL)
}
