package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrEmptyURL is returned when a link has no usable content.
	ErrEmptyURL = errors.New("empty url")
	// ErrUnsupportedScheme is returned for mailto:, javascript: and similar links.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// Normalize canonicalizes rawURL relative to baseDomain. It adds a scheme when
// missing, resolves relative references against https://{baseDomain}, lowercases
// scheme and host, drops default ports and fragments, and strips trailing
// slashes. Normalize(Normalize(u, d), d) == Normalize(u, d).
func Normalize(rawURL, baseDomain string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", ErrEmptyURL
	}
	base := &url.URL{Scheme: "https", Host: DomainKey(baseDomain), Path: "/"}

	switch {
	case strings.HasPrefix(raw, "//"):
		raw = "https:" + raw
	case !hasScheme(raw) && looksLikeHost(raw, base.Host):
		raw = "https://" + raw
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u := base.ResolveReference(ref)

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	if u.Host == "" {
		return "", ErrEmptyURL
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	if u.RawQuery == "" {
		u.ForceQuery = false
	}

	// Only literal slashes are trimmed; an encoded %2F names a different resource.
	escaped := strings.TrimRight(u.EscapedPath(), "/")
	path, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("unescape path: %w", err)
	}
	u.Path = path
	u.RawPath = escaped

	return u.String(), nil
}

// DomainKey reduces a seed (bare host or URL) to its lowercase host without
// a leading "www.", so both spellings of a shop share one key.
func DomainKey(seed string) string {
	s := strings.TrimSpace(strings.ToLower(seed))
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			return stripWWW(u.Hostname())
		}
	}
	s = strings.TrimPrefix(s, "//")
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}
	if host, _, found := strings.Cut(s, ":"); found {
		s = host
	}
	return stripWWW(s)
}

// SeedURL returns the normalized entry point for a domain.
func SeedURL(domain string) (string, error) {
	return Normalize("https://"+DomainKey(domain)+"/", domain)
}

// InDomain reports whether normalizedURL belongs to domain. A leading "www."
// on either side is ignored.
func InDomain(normalizedURL, domain string) bool {
	u, err := url.Parse(normalizedURL)
	if err != nil {
		return false
	}
	return stripWWW(u.Hostname()) == stripWWW(DomainKey(domain))
}

func stripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func hasScheme(raw string) bool {
	idx := strings.Index(raw, ":")
	if idx <= 0 {
		return false
	}
	for i, r := range raw[:idx] {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if isAlpha {
			continue
		}
		if i > 0 && ((r >= '0' && r <= '9') || r == '+' || r == '-' || r == '.') {
			continue
		}
		return false
	}
	// host:port without a scheme, e.g. "shop.example:8080/p/1".
	rest := raw[idx+1:]
	return rest == "" || !isDigit(rest[0])
}

func looksLikeHost(raw, baseHost string) bool {
	if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, ".") {
		return false
	}
	first := strings.ToLower(raw)
	if idx := strings.IndexAny(first, "/?#"); idx >= 0 {
		first = first[:idx]
	}
	if host, _, found := strings.Cut(first, ":"); found {
		first = host
	}
	if first == "" || baseHost == "" {
		return false
	}
	return stripWWW(first) == stripWWW(baseHost)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
