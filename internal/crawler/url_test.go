package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"relative path", "/p/101", "https://shop.example/p/101"},
		{"relative without slash", "p/101", "https://shop.example/p/101"},
		{"bare host", "shop.example/p/101", "https://shop.example/p/101"},
		{"protocol relative", "//shop.example/p/101", "https://shop.example/p/101"},
		{"uppercase host", "HTTPS://Shop.Example/P/101", "https://shop.example/P/101"},
		{"default https port", "https://shop.example:443/p/1", "https://shop.example/p/1"},
		{"default http port", "http://shop.example:80/p/1", "http://shop.example/p/1"},
		{"custom port kept", "https://shop.example:8443/p/1", "https://shop.example:8443/p/1"},
		{"fragment dropped", "/p/1#reviews", "https://shop.example/p/1"},
		{"trailing slash", "/category/shoes/", "https://shop.example/category/shoes"},
		{"root", "/", "https://shop.example"},
		{"query kept", "/p/1?color=red", "https://shop.example/p/1?color=red"},
		{"dot segments", "/a/../p/1", "https://shop.example/p/1"},
		{"other host", "https://other.example/p/1", "https://other.example/p/1"},
		{"encoded slash kept", "https://shop.example/%2F", "https://shop.example/%2F"},
		{"encoded slash before trailing slash", "/a%2Fb/", "https://shop.example/a%2Fb"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tc.raw, "shop.example")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeWWWBaseDomain(t *testing.T) {
	t.Parallel()

	got, err := Normalize("/p/1", "www.shop.example")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/p/1", got)

	got, err = Normalize("https://www.shop.example/p/1", "shop.example")
	require.NoError(t, err)
	assert.Equal(t, "https://www.shop.example/p/1", got, "absolute links keep their host")
}

func TestNormalizeRejects(t *testing.T) {
	t.Parallel()

	_, err := Normalize("   ", "shop.example")
	require.ErrorIs(t, err, ErrEmptyURL)

	_, err = Normalize("mailto:sales@shop.example", "shop.example")
	require.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = Normalize("javascript:void(0)", "shop.example")
	require.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"/p/101/", "HTTP://SHOP.example:80/Category/", "//shop.example/p/1?x=1#y",
		"https://shop.example/a%20b/", "shop.example", "/p/1?", "https://shop.example/%2F",
		"/a%2Fb//",
	}
	for _, in := range inputs {
		once, err := Normalize(in, "shop.example")
		require.NoError(t, err, in)
		twice, err := Normalize(once, "shop.example")
		require.NoError(t, err, in)
		assert.Equal(t, once, twice, in)
	}
}

func FuzzNormalizeIdempotent(f *testing.F) {
	f.Add("/p/101/")
	f.Add("https://Shop.Example:443/a/b/#c")
	f.Add("?q=1")
	f.Fuzz(func(t *testing.T, raw string) {
		once, err := Normalize(raw, "shop.example")
		if err != nil {
			return
		}
		twice, err := Normalize(once, "shop.example")
		if err != nil {
			t.Fatalf("normalized %q failed to re-normalize: %v", once, err)
		}
		if once != twice {
			t.Fatalf("not idempotent: %q -> %q -> %q", raw, once, twice)
		}
	})
}

func TestDomainKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "shop.example", DomainKey("shop.example"))
	assert.Equal(t, "shop.example", DomainKey(" SHOP.example "))
	assert.Equal(t, "shop.example", DomainKey("https://shop.example/"))
	assert.Equal(t, "shop.example", DomainKey("shop.example:8080/path"))
	assert.Equal(t, "shop.example", DomainKey("www.shop.example"))
	assert.Equal(t, "shop.example", DomainKey("https://WWW.Shop.Example/sale"))
	assert.Equal(t, "wwwshop.example", DomainKey("wwwshop.example"))
	assert.Equal(t, "", DomainKey(""))
}

func TestSeedURL(t *testing.T) {
	t.Parallel()

	seed, err := SeedURL("https://Shop.Example/")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example", seed)

	seed, err = SeedURL("www.shop.example")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example", seed)

	_, err = SeedURL("")
	require.Error(t, err)
}

func TestInDomain(t *testing.T) {
	t.Parallel()

	assert.True(t, InDomain("https://shop.example/p/1", "shop.example"))
	assert.True(t, InDomain("https://www.shop.example/p/1", "shop.example"))
	assert.True(t, InDomain("https://shop.example/p/1", "www.shop.example"))
	assert.False(t, InDomain("https://cdn.shop.example/p/1", "shop.example"))
	assert.False(t, InDomain("https://other.example/p/1", "shop.example"))
}
