// Package runs groups timestamped offer observations into scrape runs.
package runs

import (
	"sort"
	"time"

	"github.com/aluiziolira/go-travel-monitor/models"
)

// DefaultGap is the largest pause between two rows of the same run.
const DefaultGap = 5 * time.Minute

// Segment sorts offers by scraped_at and splits them wherever two neighbours
// are more than gap apart. Rows with a zero timestamp are dropped. The input
// slice is not modified.
func Segment(offers []models.Offer, gap time.Duration) []models.Run {
	if gap <= 0 {
		gap = DefaultGap
	}

	sorted := make([]models.Offer, 0, len(offers))
	for _, o := range offers {
		if o.ScrapedAt.IsZero() {
			continue
		}
		sorted = append(sorted, o)
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ScrapedAt.Before(sorted[j].ScrapedAt)
	})

	var out []models.Run
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i].ScrapedAt.Sub(sorted[i-1].ScrapedAt) <= gap {
			continue
		}
		out = append(out, models.Run{
			Index:  len(out),
			Start:  sorted[start].ScrapedAt,
			Offers: sorted[start:i:i],
		})
		start = i
	}
	return out
}

// Latest returns the newest run and the one before it. ok is false when
// there are no runs; prev is empty when only one run exists.
func Latest(runs []models.Run) (prev, latest models.Run, ok bool) {
	switch len(runs) {
	case 0:
		return models.Run{}, models.Run{}, false
	case 1:
		return models.Run{}, runs[0], true
	default:
		return runs[len(runs)-2], runs[len(runs)-1], true
	}
}
