package alerts

import (
	"sort"

	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/aluiziolira/go-travel-monitor/runs"
)

const missingNote = "Hotel not found in latest scrape run"

// Missing compares the two newest runs and returns one missing alert per
// hotel seen in the earlier run but not in the latest. The old price is the
// hotel's last observation in the earlier run. ID and CreatedAt are left
// for the caller.
func Missing(history []models.Run) []models.Alert {
	prev, latest, ok := runs.Latest(history)
	if !ok || len(prev.Offers) == 0 {
		return nil
	}

	current := latest.Hotels()
	var out []models.Alert
	for hotel, last := range prev.LastByHotel() {
		if _, ok := current[hotel]; ok {
			continue
		}
		out = append(out, models.Alert{
			HotelName: hotel,
			OldPrice:  last.Price.InexactFloat64(),
			Timestamp: latest.Start.UTC(),
			AlertType: models.AlertMissing,
			UniqueKey: NewMissingKey(hotel, latest.Start).String(),
			Note:      missingNote,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HotelName < out[j].HotelName })
	return out
}
