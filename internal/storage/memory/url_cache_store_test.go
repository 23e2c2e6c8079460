package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

func TestURLCacheStoreUpsertIncrements(t *testing.T) {
	t.Parallel()

	store := NewURLCacheStore()
	ctx := context.Background()
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	created, err := store.Upsert(ctx, crawler.CacheEntry{URL: "https://shop.example/p/1", Domain: "shop.example", FirstSeen: first, LastAccessed: first, AccessCount: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.AccessCount)

	later := first.Add(time.Hour)
	updated, err := store.Upsert(ctx, crawler.CacheEntry{URL: "https://shop.example/p/1", Domain: "shop.example", FirstSeen: later, LastAccessed: later, AccessCount: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.AccessCount)
	assert.Equal(t, first, updated.FirstSeen)
	assert.Equal(t, later, updated.LastAccessed)
	assert.Equal(t, 1, store.Len())
}

func TestURLCacheStoreConcurrentUpserts(t *testing.T) {
	t.Parallel()

	store := NewURLCacheStore()
	ctx := context.Background()
	const writers = 64

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Upsert(ctx, crawler.CacheEntry{URL: "https://shop.example/p/1", AccessCount: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entry, ok, err := store.Get(ctx, "https://shop.example/p/1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(writers), entry.AccessCount)
}

func TestURLCacheStoreClear(t *testing.T) {
	t.Parallel()

	store := NewURLCacheStore()
	ctx := context.Background()
	_, err := store.Upsert(ctx, crawler.CacheEntry{URL: "https://shop.example/p/1"})
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx))

	_, ok, err := store.Get(ctx, "https://shop.example/p/1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProductStoreCreateAndHistory(t *testing.T) {
	t.Parallel()

	store := NewProductStore()
	ctx := context.Background()

	p, err := store.Create(ctx, crawler.ProductDraft{URL: "https://shop.example/p/1", Domain: "shop.example"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.True(t, p.IsActive)

	_, err = store.Create(ctx, crawler.ProductDraft{URL: "https://shop.example/p/1", Domain: "shop.example"})
	require.ErrorIs(t, err, ErrProductExists)

	got, ok, err := store.GetByURL(ctx, "https://shop.example/p/1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p, got)

	require.NoError(t, store.LogCrawlAttempt(ctx, crawler.CrawlHistory{ProductID: p.ID, RunID: "run-1", Success: true}))
	history := store.History()
	require.Len(t, history, 1)
	assert.Equal(t, int64(1), history[0].ID)
	assert.Equal(t, "run-1", history[0].RunID)
}
