package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want Classification
	}{
		{"product path", "https://shop.example/p/101", ClassProduct},
		{"products path", "https://shop.example/products/blue-shoe", ClassProduct},
		{"amazon style", "https://shop.example/Widget/dp/B000123", ClassProduct},
		{"item segment", "https://shop.example/item-blue-shoe", ClassProduct},
		{"numeric id page", "https://shop.example/blue-running-shoe-123456.html", ClassProduct},
		{"category", "https://shop.example/category/shoes", ClassCategory},
		{"collection", "https://shop.example/collections/summer", ClassCategory},
		{"department", "https://shop.example/women/dresses", ClassCategory},
		{"login excluded", "https://shop.example/login", ClassExcluded},
		{"cart excluded", "https://shop.example/cart", ClassExcluded},
		{"image excluded", "https://shop.example/img/p/101.jpg", ClassExcluded},
		{"exclusion beats product", "https://shop.example/account/products/1", ClassExcluded},
		{"product beats category", "https://shop.example/category/shoes/p/101", ClassProduct},
		{"home is irrelevant", "https://shop.example", ClassIrrelevant},
		{"about is irrelevant", "https://shop.example/about-us", ClassIrrelevant},
		{"case insensitive", "HTTPS://SHOP.EXAMPLE/LOGIN", ClassExcluded},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Classify(tc.url))
		})
	}
}

func TestClassifyShortNumbersAreNotProducts(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ClassIrrelevant, Classify("https://shop.example/summer-2024"))
}

func TestIsListingURL(t *testing.T) {
	t.Parallel()

	assert.True(t, IsListingURL("https://shop.example/products/all"))
	assert.True(t, IsListingURL("https://shop.example/products?page=2"))
	assert.True(t, IsListingURL("https://shop.example/product/list?sort=price"))
	assert.True(t, IsListingURL("https://shop.example/items?p=3"))
	assert.True(t, IsListingURL("https://shop.example/products/page/4"))
	assert.False(t, IsListingURL("https://shop.example/p/101"))
	assert.False(t, IsListingURL("https://shop.example/products/blue-shoe?color=red"))
}

func FuzzClassifyIsTotal(f *testing.F) {
	f.Add("https://shop.example/p/1")
	f.Add("")
	f.Add("::::")
	f.Fuzz(func(t *testing.T, raw string) {
		switch Classify(raw) {
		case ClassProduct, ClassCategory, ClassExcluded, ClassIrrelevant:
		default:
			t.Fatalf("unexpected classification for %q", raw)
		}
	})
}
