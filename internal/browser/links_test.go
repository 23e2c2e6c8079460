package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAnchorsResolvesAndDeduplicates(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<a href="/p/101">Shoe</a>
		<a href="category/shoes">Shoes</a>
		<a href="https://other.example/p/1">Partner</a>
		<a href="#top">Top</a>
		<a href="javascript:void(0)">Menu</a>
		<a href="/p/101">Shoe again</a>
		<a>no href</a>
		<a href="  /login  ">Login</a>
	</body></html>`

	links, err := ExtractAnchors([]byte(html), "https://shop.example/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://shop.example/p/101",
		"https://shop.example/category/shoes",
		"https://other.example/p/1",
		"https://shop.example/login",
	}, links)
}

func TestExtractAnchorsHonorsBaseHref(t *testing.T) {
	t.Parallel()

	html := `<html><head><base href="https://shop.example/en/"></head>
		<body><a href="p/7">x</a></body></html>`

	links, err := ExtractAnchors([]byte(html), "https://shop.example/landing")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example/en/p/7"}, links)
}

func TestExtractAnchorsWithoutPageURL(t *testing.T) {
	t.Parallel()

	links, err := ExtractAnchors([]byte(`<a href="/p/1">x</a>`), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/1"}, links)
}

func TestDetectorNeedsJS(t *testing.T) {
	t.Parallel()

	d := NewDetector(0, nil)
	anchors := strings.Repeat(`<a href="/p/1">product</a>`, 200)

	assert.False(t, d.NeedsJS(404, nil), "only 200s are promoted")
	assert.True(t, d.NeedsJS(200, []byte("  ")))
	assert.True(t, d.NeedsJS(200, []byte(`<div id="root"></div>`+anchors)))
	assert.True(t, d.NeedsJS(200, []byte(`<html><script>var a=1;var b=2;var c=3;</script><p>hi</p></html>`)))
	assert.True(t, d.NeedsJS(200, []byte(`<html><body><p>loading</p></body></html>`)))
	assert.False(t, d.NeedsJS(200, []byte(`<html><body>`+anchors+`</body></html>`)))
}

func TestDetectorRequiredSelectors(t *testing.T) {
	t.Parallel()

	d := NewDetector(16, []string{"nav", " ", "footer"})
	anchors := strings.Repeat(`<a href="/p/1">product</a>`, 10)

	assert.True(t, d.NeedsJS(200, []byte(`<html><body><nav></nav>`+anchors+`</body></html>`)))
	assert.False(t, d.NeedsJS(200, []byte(`<html><body><nav></nav>`+anchors+`<footer></footer></body></html>`)))
}

func TestNilDetector(t *testing.T) {
	t.Parallel()

	var d *Detector
	assert.False(t, d.NeedsJS(200, nil))
}
