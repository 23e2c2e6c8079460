package staging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-url-crawler/internal/clock/system"
	"github.com/JakeFAU/product-url-crawler/internal/crawler"
	"github.com/JakeFAU/product-url-crawler/internal/publisher/memory"
	memstore "github.com/JakeFAU/product-url-crawler/internal/storage/memory"
)

func TestNewRequiresProductStore(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.ErrorIs(t, err, ErrNoProductStore)
}

func TestProcessCreatesProductsOnceAndLogsEveryObservation(t *testing.T) {
	t.Parallel()

	store := memstore.NewProductStore()
	pub := memory.New()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p, err := New(store, WithPublisher(pub, "staged"), WithClock(system.NewManual(now)))
	require.NoError(t, err)
	ctx := context.Background()

	urls := []string{"https://shop.example/p/1", "https://shop.example/p/2"}
	staged, err := p.Process(ctx, "run-1", "shop.example", urls)
	require.NoError(t, err)
	assert.Equal(t, urls, staged)

	staged, err = p.Process(ctx, "run-2", "shop.example", urls[:1])
	require.NoError(t, err)
	assert.Equal(t, urls[:1], staged)

	assert.Equal(t, 2, store.Len())
	history := store.History()
	require.Len(t, history, 3)
	assert.Equal(t, "run-2", history[2].RunID)
	assert.Equal(t, now, history[2].CrawledAt)
	assert.True(t, history[2].Success)

	first, ok, err := store.GetByURL(ctx, urls[0])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, history[2].ProductID)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "staged", msgs[0].Topic)
	event, ok := msgs[0].Payload.(crawler.ProductBatchEvent)
	require.True(t, ok)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, "shop.example", event.Domain)
	assert.Equal(t, urls, event.ProductURLs)
}

type flakyStore struct {
	*memstore.ProductStore
	failURL string
}

func (f flakyStore) GetByURL(ctx context.Context, url string) (crawler.Product, bool, error) {
	if url == f.failURL {
		return crawler.Product{}, false, errors.New("connection reset")
	}
	return f.ProductStore.GetByURL(ctx, url)
}

func TestProcessSkipsFailingURLs(t *testing.T) {
	t.Parallel()

	store := flakyStore{ProductStore: memstore.NewProductStore(), failURL: "https://shop.example/p/bad"}
	p, err := New(store)
	require.NoError(t, err)

	staged, err := p.Process(context.Background(), "run-1", "shop.example",
		[]string{"https://shop.example/p/1", "https://shop.example/p/bad"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example/p/1"}, staged)

	_, err = p.Process(context.Background(), "run-1", "shop.example", []string{"https://shop.example/p/bad"})
	require.Error(t, err)
}

func TestProcessPublishFailureFailsBatch(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.FailWith(errors.New("topic not found"))
	p, err := New(memstore.NewProductStore(), WithPublisher(pub, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultTopic, p.topic)

	staged, err := p.Process(context.Background(), "run-1", "shop.example", []string{"https://shop.example/p/1"})
	require.Error(t, err)
	assert.Equal(t, []string{"https://shop.example/p/1"}, staged)
}

type racingStore struct {
	*memstore.ProductStore
	gets int
}

func (r *racingStore) GetByURL(ctx context.Context, url string) (crawler.Product, bool, error) {
	r.gets++
	if r.gets == 1 {
		// Another batch inserts the product between lookup and create.
		if _, err := r.ProductStore.Create(ctx, crawler.ProductDraft{URL: url, Domain: "shop.example"}); err != nil {
			return crawler.Product{}, false, err
		}
		return crawler.Product{}, false, nil
	}
	return r.ProductStore.GetByURL(ctx, url)
}

func TestProcessResolvesConcurrentCreate(t *testing.T) {
	t.Parallel()

	store := &racingStore{ProductStore: memstore.NewProductStore()}
	p, err := New(store)
	require.NoError(t, err)

	staged, err := p.Process(context.Background(), "run-1", "shop.example", []string{"https://shop.example/p/1"})
	require.NoError(t, err)
	assert.Len(t, staged, 1)
	assert.Equal(t, 1, store.Len())
}

func TestProcessHonorsCancellation(t *testing.T) {
	t.Parallel()

	p, err := New(memstore.NewProductStore())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Process(ctx, "run-1", "shop.example", []string{"https://shop.example/p/1"})
	require.ErrorIs(t, err, context.Canceled)
}
