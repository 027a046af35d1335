package alerts

import (
	"sort"

	"github.com/aluiziolira/go-travel-monitor/models"
)

// Summary is the aggregate view of an alert list.
type Summary struct {
	Total        int
	Drops        int
	Increases    int
	Missing      int
	TopDrops     []models.Alert
	TopIncreases []models.Alert
}

// Summarize counts alerts by type and picks the n largest drops (most
// negative change first) and the n largest increases.
func Summarize(alerts []models.Alert, n int) Summary {
	s := Summary{Total: len(alerts)}
	var drops, rises []models.Alert
	for _, a := range alerts {
		switch a.AlertType {
		case models.AlertPriceDrop:
			s.Drops++
			drops = append(drops, a)
		case models.AlertPriceIncrease:
			s.Increases++
			rises = append(rises, a)
		case models.AlertMissing:
			s.Missing++
		}
	}

	sort.SliceStable(drops, func(i, j int) bool { return change(drops[i]) < change(drops[j]) })
	sort.SliceStable(rises, func(i, j int) bool { return change(rises[i]) > change(rises[j]) })
	s.TopDrops = head(drops, n)
	s.TopIncreases = head(rises, n)
	return s
}

func change(a models.Alert) float64 {
	if a.PriceChange == nil {
		return 0
	}
	return *a.PriceChange
}

func head(alerts []models.Alert, n int) []models.Alert {
	if n >= 0 && len(alerts) > n {
		return alerts[:n]
	}
	return alerts
}
