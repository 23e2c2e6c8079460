package crawler

import (
	"regexp"
	"strings"
)

// Pattern sets are matched against the lowercased URL.
var (
	excludedPatterns = []string{
		"login", "logout", "signin", "sign-in", "signup", "sign-up", "register",
		"/account", "/my-account", "password",
		"/cart", "/basket", "checkout",
		"search", "wishlist",
		"/help", "/faq", "/contact", "customer-service",
		"privacy", "/terms", "/legal",
		"/careers", "/track-order", "/returns", "/store-locator",
		".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".css", ".zip",
	}

	productPatterns = []string{
		"/product/", "/products/", "/p/", "/pd/", "/dp/",
		"/item/", "/items/", "/detail/", "/details/",
		"/goods/", "/buy/", "/sku/",
	}

	// productSegment matches positional patterns: a path segment that begins
	// with a product marker followed by an identifier, e.g. /p-12345 or
	// /item-blue-shoe, or a trailing numeric product id page.
	productSegment = regexp.MustCompile(`/(p|pd|item|prod|product)-[a-z0-9]|/[a-z0-9-]+-\d{5,}(\.html?)?(\?|$)`)

	categoryPatterns = []string{
		"category", "categories", "/c/", "/cat/",
		"dept", "department",
		"collection", "/shop/", "/browse/", "/catalog",
		"/men", "/women", "/kids", "/sale", "/new-arrivals",
	}

	// listingPatterns mark pagination and generic listing pages that broad
	// product patterns tend to pick up.
	listingPatterns = []string{
		"/page/", "page=", "?p=", "&p=", "pagination",
		"sort=", "sortby=", "order=", "orderby=",
		"filter=", "/filter/", "facet=", "view=list", "view=grid",
		"/list", "listing", "/all-products", "/products/all",
		"limit=", "offset=", "per_page=",
	}
)

// Classify assigns a URL to product, category, excluded or irrelevant.
// Exclusion dominates; product wins over category.
func Classify(rawURL string) Classification {
	lower := strings.ToLower(rawURL)
	switch {
	case containsAny(lower, excludedPatterns):
		return ClassExcluded
	case containsAny(lower, productPatterns) || productSegment.MatchString(pathAndQuery(lower)):
		return ClassProduct
	case containsAny(lower, categoryPatterns):
		return ClassCategory
	default:
		return ClassIrrelevant
	}
}

// IsListingURL reports whether a URL looks like a paginated or generic listing
// page. Product-classified links matching it are dropped.
func IsListingURL(rawURL string) bool {
	return containsAny(strings.ToLower(rawURL), listingPatterns)
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

func pathAndQuery(lower string) string {
	if idx := strings.Index(lower, "://"); idx >= 0 {
		rest := lower[idx+3:]
		if slash := strings.IndexAny(rest, "/?"); slash >= 0 {
			return rest[slash:]
		}
		return ""
	}
	return lower
}
