package alerts

import (
	"log/slog"
	"time"

	"github.com/aluiziolira/go-travel-monitor/delta"
	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/aluiziolira/go-travel-monitor/runs"
	"github.com/google/uuid"
)

// Result summarises one deduplication pass.
type Result struct {
	Created    []models.Alert
	Candidates int
	Duplicates int
	Expired    int
}

// Deduplicator rescans the full run history on every call and appends only
// alerts whose key is not yet stored.
type Deduplicator struct {
	store  *FileStore
	gap    time.Duration
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewDeduplicator returns a Deduplicator writing to s. gap is the run
// segmentation gap; zero means runs.DefaultGap.
func NewDeduplicator(s *FileStore, gap time.Duration, logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	if gap <= 0 {
		gap = runs.DefaultGap
	}
	return &Deduplicator{
		store:  s,
		gap:    gap,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Process returns the alerts created for price moves of at least threshold
// percent. Repeated calls on unchanged offers create nothing.
func (d *Deduplicator) Process(offers []models.Offer, threshold float64) []models.Alert {
	return d.Run(offers, threshold).Created
}

// Run is Process with counters.
func (d *Deduplicator) Run(offers []models.Offer, threshold float64) Result {
	history := runs.Segment(offers, d.gap)
	deltas := delta.Scan(history, threshold)

	now := d.now().UTC()
	candidates := make([]models.Alert, 0, len(deltas))
	for _, dl := range deltas {
		candidates = append(candidates, fromDelta(dl, threshold, now))
	}

	res := d.commit(candidates, "price")
	d.logger.Info("price alerts processed",
		slog.Int("runs", len(history)),
		slog.Int("candidates", res.Candidates),
		slog.Int("new", len(res.Created)),
		slog.Int("duplicates", res.Duplicates),
		slog.Int("expired", res.Expired),
		slog.Float64("threshold_percent", threshold),
	)
	return res
}

// RecordMissing stores a missing alert for every hotel present in the run
// before the latest one and absent from the latest. Calling it again for the
// same pair of runs creates nothing.
func (d *Deduplicator) RecordMissing(history []models.Run) []models.Alert {
	now := d.now().UTC()
	candidates := Missing(history)
	for i := range candidates {
		candidates[i].CreatedAt = now
	}

	res := d.commit(candidates, "missing")
	d.logger.Info("missing hotel alerts processed",
		slog.Int("candidates", res.Candidates),
		slog.Int("new", len(res.Created)),
		slog.Int("duplicates", res.Duplicates),
	)
	return res.Created
}

func (d *Deduplicator) commit(candidates []models.Alert, kind string) Result {
	res := Result{Candidates: len(candidates)}
	if len(candidates) == 0 {
		return res
	}

	existing := d.store.Load()
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for _, a := range existing {
		if a.UniqueKey != "" {
			seen[a.UniqueKey] = struct{}{}
		}
	}
	horizon, bounded := d.store.horizon(existing)

	for _, c := range candidates {
		if _, dup := seen[c.UniqueKey]; dup {
			res.Duplicates++
			continue
		}
		if bounded && c.Timestamp.Before(horizon) {
			res.Expired++
			continue
		}
		seen[c.UniqueKey] = struct{}{}
		c.ID = d.newID()
		res.Created = append(res.Created, c)
	}
	if len(res.Created) == 0 {
		return res
	}

	if err := d.store.Save(append(existing, res.Created...)); err != nil {
		d.logger.Error("persist alerts",
			slog.String("kind", kind),
			slog.String("path", d.store.Path()),
			slog.Any("error", err),
		)
	}
	return res
}

func fromDelta(dl models.Delta, threshold float64, now time.Time) models.Alert {
	alertType := models.AlertPriceIncrease
	if dl.Decrease() {
		alertType = models.AlertPriceDrop
	}
	newPrice := dl.NewPrice.InexactFloat64()
	change := dl.Change.InexactFloat64()
	pct := dl.ChangePercent.Round(2).InexactFloat64()
	return models.Alert{
		HotelName:        dl.HotelName,
		OldPrice:         dl.OldPrice.InexactFloat64(),
		NewPrice:         &newPrice,
		PriceChange:      &change,
		PriceChangePct:   &pct,
		Timestamp:        dl.Timestamp.UTC(),
		AlertType:        alertType,
		CreatedAt:        now,
		ThresholdPercent: &threshold,
		UniqueKey:        NewKey(dl.HotelName, dl.Timestamp, dl.ChangePercent).String(),
	}
}
