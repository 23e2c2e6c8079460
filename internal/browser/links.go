// Package browser holds what the page engines share: anchor extraction from
// rendered HTML and the heuristic that decides when static HTML is not enough.
package browser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractAnchors returns the absolute href of every anchor in body, resolved
// against pageURL (or the document's <base href>), in document order without
// duplicates. Fragment-only and script links are skipped.
func ExtractAnchors(body []byte, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && base != nil {
		if resolved, perr := base.Parse(strings.TrimSpace(href)); perr == nil {
			base = resolved
		}
	}

	seen := make(map[string]struct{})
	links := make([]string, 0, 64)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		lower := strings.ToLower(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(lower, "javascript:") {
			return
		}
		abs := href
		if base != nil {
			if u, perr := base.Parse(href); perr == nil {
				abs = u.String()
			}
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links, nil
}
