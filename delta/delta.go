// Package delta computes per-hotel price movements between runs or across a
// lookback window.
package delta

import (
	"sort"
	"time"

	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Compute returns the movement from oldPrice to newPrice. ok is false when
// oldPrice is not positive or the price did not move.
func Compute(hotel string, oldPrice, newPrice decimal.Decimal) (models.Delta, bool) {
	if !oldPrice.IsPositive() {
		return models.Delta{}, false
	}
	change := newPrice.Sub(oldPrice)
	if change.IsZero() {
		return models.Delta{}, false
	}
	return models.Delta{
		HotelName:     hotel,
		OldPrice:      oldPrice,
		NewPrice:      newPrice,
		Change:        change,
		ChangePercent: change.Div(oldPrice).Mul(hundred),
	}, true
}

// RunPair compares hotels present in both runs, using each run's last
// observation of a hotel as its price for that run. Results are ordered by
// hotel name.
func RunPair(prev, curr models.Run) []models.Delta {
	prevPrices := prev.LastByHotel()
	currPrices := curr.LastByHotel()

	var out []models.Delta
	for hotel, c := range currPrices {
		p, ok := prevPrices[hotel]
		if !ok {
			continue
		}
		d, ok := Compute(hotel, p.Price, c.Price)
		if !ok {
			continue
		}
		d.BaselineAt = p.ScrapedAt
		d.Timestamp = curr.Start
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HotelName < out[j].HotelName })
	return out
}

// Scan compares every consecutive pair of runs and keeps the deltas whose
// absolute percentage reaches threshold. Output is ordered by run, then
// hotel name.
func Scan(runs []models.Run, threshold float64) []models.Delta {
	var out []models.Delta
	for i := 1; i < len(runs); i++ {
		out = append(out, Significant(RunPair(runs[i-1], runs[i]), threshold)...)
	}
	return out
}

// Significant keeps deltas with |change_percent| >= threshold.
func Significant(deltas []models.Delta, threshold float64) []models.Delta {
	limit := decimal.NewFromFloat(threshold)
	out := make([]models.Delta, 0, len(deltas))
	for _, d := range deltas {
		if d.ChangePercent.Abs().GreaterThanOrEqual(limit) {
			out = append(out, d)
		}
	}
	return out
}

// Window compares each hotel's latest observation with its most recent
// observation at or before latest-window. When no observation is that old
// and the hotel has at least two, the earliest one is the baseline. Hotels
// with a single observation are skipped.
func Window(offers []models.Offer, window time.Duration) []models.Delta {
	byHotel := make(map[string][]models.Offer)
	for _, o := range offers {
		if o.ScrapedAt.IsZero() {
			continue
		}
		byHotel[o.HotelName] = append(byHotel[o.HotelName], o)
	}

	var out []models.Delta
	for hotel, history := range byHotel {
		if len(history) < 2 {
			continue
		}
		sort.SliceStable(history, func(i, j int) bool {
			return history[i].ScrapedAt.Before(history[j].ScrapedAt)
		})

		latest := history[len(history)-1]
		cutoff := latest.ScrapedAt.Add(-window)

		baseline := history[0]
		for _, o := range history[:len(history)-1] {
			if o.ScrapedAt.After(cutoff) {
				break
			}
			baseline = o
		}
		if !baseline.ScrapedAt.Before(latest.ScrapedAt) {
			continue
		}

		d, ok := Compute(hotel, baseline.Price, latest.Price)
		if !ok {
			continue
		}
		d.BaselineAt = baseline.ScrapedAt
		d.Timestamp = latest.ScrapedAt
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HotelName < out[j].HotelName })
	return out
}

// TopDecreases returns up to n price drops, largest drop first.
func TopDecreases(deltas []models.Delta, n int) []models.Delta {
	var drops []models.Delta
	for _, d := range deltas {
		if d.Change.IsNegative() {
			drops = append(drops, d)
		}
	}
	sort.SliceStable(drops, func(i, j int) bool { return drops[i].Change.LessThan(drops[j].Change) })
	return truncate(drops, n)
}

// TopIncreases returns up to n price rises, largest rise first.
func TopIncreases(deltas []models.Delta, n int) []models.Delta {
	var rises []models.Delta
	for _, d := range deltas {
		if d.Change.IsPositive() {
			rises = append(rises, d)
		}
	}
	sort.SliceStable(rises, func(i, j int) bool { return rises[i].Change.GreaterThan(rises[j].Change) })
	return truncate(rises, n)
}

func truncate(deltas []models.Delta, n int) []models.Delta {
	if n >= 0 && len(deltas) > n {
		return deltas[:n]
	}
	return deltas
}
