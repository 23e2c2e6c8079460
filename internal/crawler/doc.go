// Package crawler discovers product page URLs on e-commerce sites.
//
// An Orchestrator runs a bounded breadth-first traversal per domain: pages
// are fetched through a BrowserSession, links are normalized and classified
// as product, category or excluded, categories feed the frontier one level
// deeper, and products are recorded in a cross-run URL cache. Per-domain
// politeness, retries with backoff and the batch post-processing of results
// are delegated to collaborators defined in interfaces.go.
package crawler
