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
	OffersScrapedTotal prometheus.Counter
	RetriesTotal       prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
}

// NewMetrics registers the scraper collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Search page requests by phase.",
		}, []string{"phase"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "Latency of search page requests.",
			Buckets: prometheus.DefBuckets,
		}),
		OffersScrapedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_offers_scraped_total",
			Help: "Offer cards extracted and sent to the pipeline.",
		}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Retry attempts scheduled.",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Failed search page requests by error type.",
		}, []string{"error_type"}),
	}
	m.Registry.MustRegister(m.RequestsTotal, m.RequestDuration, m.OffersScrapedTotal, m.RetriesTotal, m.ErrorsTotal)
	return m
}

// The helpers below are no-ops on a nil *Metrics.

func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncItems counts one extracted offer.
func (m *Metrics) IncItems() {
	if m == nil {
		return
	}
	m.OffersScrapedTotal.Inc()
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
