// Package monitor ties the scraper, the alert store and the visibility
// tracker into one scrape-and-analyse cycle.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aluiziolira/go-travel-monitor/alerts"
	"github.com/aluiziolira/go-travel-monitor/config"
	"github.com/aluiziolira/go-travel-monitor/delta"
	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/aluiziolira/go-travel-monitor/pipeline"
	"github.com/aluiziolira/go-travel-monitor/runs"
	"github.com/aluiziolira/go-travel-monitor/scraper"
	"github.com/aluiziolira/go-travel-monitor/store"
	"github.com/aluiziolira/go-travel-monitor/visibility"
	"github.com/prometheus/client_golang/prometheus"
)

// Monitor owns the on-disk stores of one deployment.
type Monitor struct {
	cfg    *config.Config
	logger *slog.Logger

	alerts  *alerts.FileStore
	dedup   *alerts.Deduplicator
	tracker *visibility.Tracker

	metrics        *Metrics
	scraperMetrics *scraper.Metrics
	transport      http.RoundTripper

	// cycles must not interleave: both append to the same files.
	mu sync.Mutex
}

// Analysis is the outcome of one Analyze call.
type Analysis struct {
	Offers            int
	Runs              int
	Price             alerts.Result
	Missing           []models.Alert
	Visibility        visibility.Change
	VisibilityUpdated bool
	Stats             models.VisibilityStats
}

// New opens the alert store and the visibility state named in cfg.
func New(cfg *config.Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	fs := alerts.NewFileStore(cfg.AlertsFile, cfg.MaxAlerts, logger)
	return &Monitor{
		cfg:            cfg,
		logger:         logger,
		alerts:         fs,
		dedup:          alerts.NewDeduplicator(fs, cfg.RunGap, logger),
		tracker:        visibility.NewTracker(cfg.VisibilityFile, cfg.RunGap, logger),
		metrics:        NewMetrics(),
		scraperMetrics: scraper.NewMetrics(),
	}
}

// SetTransport routes scraper traffic through rt.
func (m *Monitor) SetTransport(rt http.RoundTripper) {
	m.transport = rt
}

// Tracker exposes the visibility tracker.
func (m *Monitor) Tracker() *visibility.Tracker { return m.tracker }

// Metrics exposes the monitor collectors.
func (m *Monitor) Metrics() *Metrics { return m.metrics }

// Gatherers combines the monitor and scraper registries for one endpoint.
func (m *Monitor) Gatherers() prometheus.Gatherers {
	return prometheus.Gatherers{m.metrics.Registry, m.scraperMetrics.Registry}
}

// Alerts returns every stored alert in append order.
func (m *Monitor) Alerts() []models.Alert {
	return m.alerts.Load()
}

// Offers loads the offer store.
func (m *Monitor) Offers() []models.Offer {
	offers, _ := store.LoadOffers(m.cfg.DataFile, m.logger)
	return offers
}

// Scrape crawls the configured search and appends the offers it finds to the
// offer store.
func (m *Monitor) Scrape(ctx context.Context) (*models.ScraperResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scrape(ctx)
}

func (m *Monitor) scrape(ctx context.Context) (*models.ScraperResult, error) {
	s, err := scraper.NewScraperWithMetrics(m.cfg, m.scraperMetrics)
	if err != nil {
		return nil, fmt.Errorf("initialise scraper: %w", err)
	}
	s.SetLogger(m.logger)
	s.SetTransport(m.transport)

	writer, err := pipeline.NewOfferWriter(m.cfg.DataFile, m.cfg.JSONMirrorFile)
	if err != nil {
		return nil, fmt.Errorf("open offer store: %w", err)
	}

	var images *store.ImageMap
	if m.cfg.ImageMapFile != "" {
		images = store.LoadImageMap(m.cfg.ImageMapFile, m.logger)
	}

	p := pipeline.NewPipeline(ctx, writer, m.cfg)
	p.SetLogger(m.logger)
	p.SetImageMap(images)
	p.Start(m.cfg.Parallelism)
	if m.cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, runErr := s.Run(ctx, p)
	closeErr := p.Close()
	if closeErr == nil && p.Processed() > 0 {
		if err := writer.Validate(); err != nil {
			closeErr = fmt.Errorf("validate offer store: %w", err)
		}
	}
	if err := writer.Close(); err != nil && closeErr == nil {
		closeErr = fmt.Errorf("close offer store: %w", err)
	}
	if runErr != nil {
		return nil, fmt.Errorf("scrape: %w", runErr)
	}
	result.TotalCount = int(p.Processed())
	if closeErr != nil {
		return result, closeErr
	}

	if images != nil {
		if err := images.Save(); err != nil {
			m.logger.Warn("save image map", slog.String("path", m.cfg.ImageMapFile), slog.Any("error", err))
		}
	}

	m.logger.Info("scrape finished",
		slog.Int("offers", result.TotalCount),
		slog.Int("pages", result.PageCount),
		slog.Int("errors", result.ErrorCount),
		slog.Duration("elapsed", result.EndTime.Sub(result.StartTime)),
	)
	return result, nil
}

// Analyze reloads the offer store, records new price alerts and, when
// checkMissing is set, missing hotel alerts, then updates offer visibility.
func (m *Monitor) Analyze(ctx context.Context, checkMissing bool) (*Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyze(ctx, checkMissing)
}

func (m *Monitor) analyze(ctx context.Context, checkMissing bool) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	offers, stats := store.LoadOffers(m.cfg.DataFile, m.logger)
	history := runs.Segment(offers, m.cfg.RunGap)
	m.metrics.OffersLoaded.Set(float64(stats.Loaded))
	m.metrics.RunsDetected.Set(float64(len(history)))

	a := &Analysis{Offers: len(offers), Runs: len(history)}
	a.Price = m.dedup.Run(offers, m.cfg.AlertThreshold)
	m.metrics.observeAlerts(a.Price.Created, a.Price.Duplicates)

	if checkMissing {
		a.Missing = m.dedup.RecordMissing(history)
		m.metrics.observeAlerts(a.Missing, 0)
	}

	a.Visibility, a.VisibilityUpdated = m.tracker.Update(offers)
	a.Stats = m.tracker.Stats()
	m.metrics.observeVisibility(a.Stats)
	return a, nil
}

// Cycle scrapes and then analyses. Analysis runs even when the scrape
// failed part way, so rows appended before the failure still alert.
func (m *Monitor) Cycle(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	_, scrapeErr := m.scrape(ctx)
	if scrapeErr != nil {
		m.logger.Error("scrape failed", slog.Any("error", scrapeErr))
	}
	a, err := m.analyze(ctx, true)
	if err == nil {
		m.logger.Info("cycle finished",
			slog.Int("runs", a.Runs),
			slog.Int("price_alerts", len(a.Price.Created)),
			slog.Int("missing_alerts", len(a.Missing)),
			slog.Int("visible", a.Stats.VisibleCount),
			slog.Int("hidden", a.Stats.HiddenCount),
		)
	}
	if err == nil {
		err = scrapeErr
	}
	m.metrics.observeCycle(time.Since(start), err)
	return err
}

// Movers returns the n largest price decreases and increases over the
// configured delta window. Only hotels with at least one visible offer are
// ranked; their older rows are kept as the baseline.
func (m *Monitor) Movers(n int) (drops, rises []models.Delta) {
	offers := m.Offers()
	visible := make(map[string]struct{})
	for _, o := range m.tracker.FilterVisible(offers) {
		visible[o.HotelName] = struct{}{}
	}

	var deltas []models.Delta
	for _, d := range delta.Window(offers, m.cfg.DeltaWindow) {
		if _, ok := visible[d.HotelName]; ok {
			deltas = append(deltas, d)
		}
	}
	return delta.TopDecreases(deltas, n), delta.TopIncreases(deltas, n)
}
