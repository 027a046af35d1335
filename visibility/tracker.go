package visibility

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/aluiziolira/go-travel-monitor/runs"
)

// Tracker owns the persisted visibility state. The state is loaded once by
// NewTracker and written back after every Update or Reset.
type Tracker struct {
	path   string
	gap    time.Duration
	logger *slog.Logger

	mu    sync.RWMutex
	state *models.VisibilityState
}

// NewTracker loads the state stored at path.
func NewTracker(path string, gap time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if gap <= 0 {
		gap = runs.DefaultGap
	}
	return &Tracker{
		path:   path,
		gap:    gap,
		logger: logger,
		state:  LoadState(path, logger),
	}
}

// Update recomputes visible and hidden offers from the two newest runs in
// offers and persists the result. An empty store leaves the state as is.
func (t *Tracker) Update(offers []models.Offer) (Change, bool) {
	if len(offers) == 0 {
		t.logger.Warn("no offers to update visibility from")
		return Change{}, false
	}
	history := runs.Segment(offers, t.gap)

	t.mu.Lock()
	defer t.mu.Unlock()

	next, change, ok := Apply(t.state, history)
	if !ok {
		t.logger.Warn("no runs found in offers", slog.Int("offers", len(offers)))
		return Change{}, false
	}
	t.state = next

	if change.Repeat {
		t.logger.Debug("latest run already applied", slog.Time("run_start", change.RunStart))
	}
	t.logger.Info("visibility updated",
		slog.Time("run_start", change.RunStart),
		slog.Int("visible", len(next.VisibleOffers)),
		slog.Int("hidden", len(next.HiddenOffers)),
		slog.Int("new", len(change.New)),
	)

	if err := SaveState(t.path, next); err != nil {
		t.logger.Error("persist visibility state", slog.String("path", t.path), slog.Any("error", err))
	}
	return change, true
}

// FilterVisible keeps the offers whose key is visible. With no visible
// offers recorded every offer is returned.
func (t *Tracker) FilterVisible(offers []models.Offer) []models.Offer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(offers) == 0 || len(t.state.VisibleOffers) == 0 {
		return offers
	}
	out := make([]models.Offer, 0, len(offers))
	for _, o := range offers {
		if _, ok := t.state.VisibleOffers[OfferKey(o)]; ok {
			out = append(out, o)
		}
	}
	t.logger.Debug("filtered visible offers", slog.Int("in", len(offers)), slog.Int("out", len(out)))
	return out
}

// Stats summarises the current state.
func (t *Tracker) Stats() models.VisibilityStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := models.VisibilityStats{
		VisibleCount:       len(t.state.VisibleOffers),
		HiddenCount:        len(t.state.HiddenOffers),
		TotalTrackedOffers: len(t.state.OfferHistory),
	}
	if t.state.LastRunTimestamp != nil {
		ts := *t.state.LastRunTimestamp
		stats.LastRunTimestamp = &ts
	}
	return stats
}

// IsHidden reports whether key disappeared in the latest run.
func (t *Tracker) IsHidden(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.state.HiddenOffers[key]
	return ok
}

// History returns a copy of the appearance log of key.
func (t *Tracker) History(key string) (models.OfferHistory, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.state.OfferHistory[key]
	if !ok {
		return models.OfferHistory{}, false
	}
	return *h, true
}

// Reset clears the state so every offer is visible again, and persists it.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = models.NewVisibilityState()
	if err := SaveState(t.path, t.state); err != nil {
		return err
	}
	t.logger.Info("visibility state reset", slog.String("path", t.path))
	return nil
}
