// Package metrics exposes Prometheus collectors for the catalog service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapePagesTotal             *prometheus.CounterVec
	scrapeRunsTotal              *prometheus.CounterVec
	scrapeRequestDurationSeconds prometheus.Histogram
	cacheReadsTotal              *prometheus.CounterVec
	scrapeActive                 prometheus.Gauge
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapePagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_scrape_pages_total",
				Help: "Total number of detail pages fetched, labeled by outcome.",
			},
			[]string{"status"},
		)

		scrapeRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_scrape_runs_total",
				Help: "Total number of refresh runs, labeled by outcome.",
			},
			[]string{"status"},
		)

		scrapeRequestDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_scrape_request_duration_seconds",
				Help:    "Histogram of upstream page fetch latencies.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		cacheReadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_cache_reads_total",
				Help: "Total number of snapshot cache reads, labeled by result.",
			},
			[]string{"result"},
		)

		scrapeActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_scrape_active",
				Help: "Whether a refresh run is currently in progress.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScrapePage records one detail page fetch outcome.
func ObserveScrapePage(status string, duration time.Duration) {
	scrapePagesTotal.WithLabelValues(status).Inc()
	scrapeRequestDurationSeconds.Observe(duration.Seconds())
}

// ObserveScrapeRun records the outcome of a whole refresh run.
func ObserveScrapeRun(status string) {
	scrapeRunsTotal.WithLabelValues(status).Inc()
}

// ObserveCacheRead records a snapshot cache read result (hit, miss, stale).
func ObserveCacheRead(result string) {
	cacheReadsTotal.WithLabelValues(result).Inc()
}

// SetScrapeActive flips the in-progress gauge.
func SetScrapeActive(active bool) {
	if active {
		scrapeActive.Set(1)
	} else {
		scrapeActive.Set(0)
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
