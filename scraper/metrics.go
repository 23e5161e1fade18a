package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry           *prometheus.Registry
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	ProductsScraped    prometheus.Counter
	ProductsSkipped    prometheus.Counter
	RetriesTotal       prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	CategoriesCrawled  prometheus.Counter
	StaleProductsTotal prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	scraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_products_scraped_total",
			Help: "Total number of products persisted to the store.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_products_skipped_total",
			Help: "Total number of products skipped for lacking a usable price.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts made by workers.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	categories := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_categories_crawled_total",
			Help: "Total number of categories enumerated.",
		},
	)
	stale := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_stale_products_total",
			Help: "Total number of products marked stale during reconciliation.",
		},
	)

	registry.MustRegister(requests, requestDuration, scraped, skipped, retries, errorsTotal, categories, stale)

	return &Metrics{
		Registry:           registry,
		RequestsTotal:      requests,
		RequestDuration:    requestDuration,
		ProductsScraped:    scraped,
		ProductsSkipped:    skipped,
		RetriesTotal:       retries,
		ErrorsTotal:        errorsTotal,
		CategoriesCrawled:  categories,
		StaleProductsTotal: stale,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncScraped increments the persisted products counter.
func (m *Metrics) IncScraped() {
	if m == nil {
		return
	}
	m.ProductsScraped.Inc()
}

// IncSkipped increments the skipped products counter.
func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.ProductsSkipped.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCategories increments the enumerated categories counter.
func (m *Metrics) IncCategories() {
	if m == nil {
		return
	}
	m.CategoriesCrawled.Inc()
}

// AddStale records products marked stale during reconciliation.
func (m *Metrics) AddStale(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.StaleProductsTotal.Add(float64(n))
}
