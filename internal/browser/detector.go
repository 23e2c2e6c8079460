package browser

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMinBodyBytes is the body size below which script-heavy pages are
// treated as client-rendered.
const DefaultMinBodyBytes = 2048

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// Detector decides whether a statically fetched page must be rendered by a
// real browser before its links can be trusted.
type Detector struct {
	minBodyBytes int
	selectors    []string
}

// NewDetector builds a Detector. selectors, when set, must all be present in
// the static HTML or the page is promoted.
func NewDetector(minBodyBytes int, selectors []string) *Detector {
	if minBodyBytes <= 0 {
		minBodyBytes = DefaultMinBodyBytes
	}
	clean := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		if sel = strings.TrimSpace(sel); sel != "" {
			clean = append(clean, sel)
		}
	}
	return &Detector{minBodyBytes: minBodyBytes, selectors: clean}
}

// NeedsJS reports whether the static response looks client-rendered. Only
// successful responses are ever promoted.
func (d *Detector) NeedsJS(status int, body []byte) bool {
	if d == nil || status != http.StatusOK {
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if len(body) < d.minBodyBytes && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	if len(body) < d.minBodyBytes && !bytes.Contains(bytes.ToLower(body), []byte("<a ")) {
		return true
	}
	return d.missingSelectors(body)
}

func (d *Detector) missingSelectors(body []byte) bool {
	if len(d.selectors) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	for _, sel := range d.selectors {
		if doc.Find(sel).Length() == 0 {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether <script> elements cover at least a
// quarter of the document.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			coverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		end := strings.Index(lower[contentStart:], closeTag)
		next := total
		if end != -1 {
			next = contentStart + end + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return coverage*100/total >= 25
}
