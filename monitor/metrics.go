package monitor

import (
	"time"

	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for alerting and visibility.
type Metrics struct {
	Registry        *prometheus.Registry
	AlertsCreated   *prometheus.CounterVec
	AlertDuplicates prometheus.Counter
	OffersLoaded    prometheus.Gauge
	RunsDetected    prometheus.Gauge
	VisibleOffers   prometheus.Gauge
	HiddenOffers    prometheus.Gauge
	CycleDuration   prometheus.Histogram
	CycleFailures   prometheus.Counter
}

// NewMetrics registers all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_alerts_created_total",
			Help: "Alerts appended to the alert store by type.",
		}, []string{"alert_type"}),
		AlertDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_alert_duplicates_total",
			Help: "Candidate alerts skipped because their key was already stored.",
		}),
		OffersLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_offers_loaded",
			Help: "Rows loaded from the offer store in the last analysis.",
		}),
		RunsDetected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_runs_detected",
			Help: "Scrape runs found in the offer store in the last analysis.",
		}),
		VisibleOffers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_visible_offers",
			Help: "Offers present in the latest run.",
		}),
		HiddenOffers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_hidden_offers",
			Help: "Offers present in the previous run but not the latest.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_cycle_duration_seconds",
			Help:    "Duration of scrape and analysis cycles.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_cycle_failures_total",
			Help: "Cycles that ended with an error.",
		}),
	}
	m.Registry.MustRegister(
		m.AlertsCreated, m.AlertDuplicates, m.OffersLoaded, m.RunsDetected,
		m.VisibleOffers, m.HiddenOffers, m.CycleDuration, m.CycleFailures,
	)
	return m
}

func (m *Metrics) observeAlerts(created []models.Alert, duplicates int) {
	for _, a := range created {
		m.AlertsCreated.WithLabelValues(string(a.AlertType)).Inc()
	}
	m.AlertDuplicates.Add(float64(duplicates))
}

func (m *Metrics) observeVisibility(stats models.VisibilityStats) {
	m.VisibleOffers.Set(float64(stats.VisibleCount))
	m.HiddenOffers.Set(float64(stats.HiddenCount))
}

func (m *Metrics) observeCycle(d time.Duration, err error) {
	m.CycleDuration.Observe(d.Seconds())
	if err != nil {
		m.CycleFailures.Inc()
	}
}
