// Package metrics exposes Prometheus collectors for the crawl engine.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerProductURLsTotal       *prometheus.CounterVec
	crawlerCacheOpsTotal          *prometheus.CounterVec
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	crawlerDomainsTotal           *prometheus.CounterVec
	governorBatchesTotal          *prometheus.CounterVec
	governorInFlightBatches       prometheus.Gauge
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of page fetches, labeled by site and navigation outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerProductURLsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_product_urls_total",
				Help: "Product URLs discovered, labeled by site and whether the cache already knew them.",
			},
			[]string{"site", "cache"},
		)

		crawlerCacheOpsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_url_cache_operations_total",
				Help: "URL cache operations, labeled by operation and result.",
			},
			[]string{"op", "result"},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		crawlerDomainsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_domains_total",
				Help: "Domain crawls finished, labeled by terminal state.",
			},
			[]string{"state"},
		)

		governorBatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_batches_total",
				Help: "Batches processed by the concurrency governor, labeled by status.",
			},
			[]string{"status"},
		)

		governorInFlightBatches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "governor_in_flight_batches",
				Help: "Number of batches currently executing.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method, route pattern and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts a navigation attempt.
func ObservePage(site string, outcome string) {
	Init()
	crawlerPagesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveProductURL counts a discovered product URL. known reports whether the
// URL cache had seen it in an earlier run.
func ObserveProductURL(site string, known bool) {
	Init()
	label := "fresh"
	if known {
		label = "known"
	}
	crawlerProductURLsTotal.WithLabelValues(SanitizeSite(site), label).Inc()
}

// ObserveCacheOp counts a URL cache read or write.
func ObserveCacheOp(op string, err error) {
	Init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	crawlerCacheOpsTotal.WithLabelValues(op, result).Inc()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(SanitizeSite(domain)).Observe(duration.Seconds())
}

// ObserveDomain counts a finished domain crawl.
func ObserveDomain(state string) {
	Init()
	crawlerDomainsTotal.WithLabelValues(state).Inc()
}

// ObserveBatch counts a governor batch by status.
func ObserveBatch(status string) {
	Init()
	governorBatchesTotal.WithLabelValues(status).Inc()
}

// IncInFlightBatches increments the in-flight batch gauge.
func IncInFlightBatches() {
	Init()
	governorInFlightBatches.Inc()
}

// DecInFlightBatches decrements the in-flight batch gauge.
func DecInFlightBatches() {
	Init()
	governorInFlightBatches.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
