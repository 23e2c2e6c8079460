package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainBlocklist(t *testing.T) {
	t.Parallel()

	t.Run("exact match", func(t *testing.T) {
		bl := newDomainBlocklist([]string{"Marketplace.example"})
		require.NotNil(t, bl)
		assert.True(t, bl.Blocked("marketplace.example"))
		assert.True(t, bl.Blocked("https://www.marketplace.example/"))
		assert.False(t, bl.Blocked("eu.marketplace.example"))
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		bl := newDomainBlocklist([]string{"*.test", ".internal", "*.test"})
		require.NotNil(t, bl)
		assert.Len(t, bl.suffixes, 2)
		assert.True(t, bl.Blocked("shop.test"))
		assert.True(t, bl.Blocked("a.b.internal"))
		assert.True(t, bl.Blocked("test"))
		assert.False(t, bl.Blocked("shop.example"))
	})

	t.Run("empty patterns", func(t *testing.T) {
		assert.Nil(t, newDomainBlocklist([]string{" ", "*."}))
	})

	t.Run("nil blocklist", func(t *testing.T) {
		var bl *domainBlocklist
		assert.False(t, bl.Blocked("anything.example"))
	})
}
