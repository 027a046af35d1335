package visibility

import (
	"time"

	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/aluiziolira/go-travel-monitor/runs"
)

// Change describes what one Apply call observed.
type Change struct {
	RunStart    time.Time
	Current     int
	Previous    int
	New         []string
	Disappeared []string
	// Repeat is set when the latest run was already applied; history
	// counters are left alone in that case.
	Repeat bool
}

// Apply derives the next state from the two newest runs. The input state is
// not modified. ok is false when there are no runs, in which case state is
// returned unchanged.
func Apply(state *models.VisibilityState, history []models.Run) (*models.VisibilityState, Change, bool) {
	if state == nil {
		state = models.NewVisibilityState()
	}
	prev, latest, ok := runs.Latest(history)
	if !ok {
		return state, Change{}, false
	}

	current := Keys(latest.Offers)
	previous := Keys(prev.Offers)
	runStart := latest.Start.UTC()

	change := Change{
		RunStart:    runStart,
		Current:     len(current),
		Previous:    len(previous),
		New:         sortedKeys(minus(current, previous)),
		Disappeared: sortedKeys(minus(previous, current)),
		Repeat:      state.LastRunTimestamp != nil && state.LastRunTimestamp.Equal(runStart),
	}

	next := clone(state)
	next.VisibleOffers = current
	next.HiddenOffers = make(map[string]struct{}, len(change.Disappeared))
	for _, k := range change.Disappeared {
		next.HiddenOffers[k] = struct{}{}
	}
	next.LastRunTimestamp = &runStart

	if change.Repeat {
		return next, change, true
	}

	for _, k := range change.New {
		h, ok := next.OfferHistory[k]
		if !ok {
			next.OfferHistory[k] = &models.OfferHistory{FirstSeen: runStart, LastSeen: runStart}
			continue
		}
		h.LastSeen = runStart
		h.ReappearedCount++
	}
	for _, k := range change.Disappeared {
		if h, ok := next.OfferHistory[k]; ok {
			h.DisappearedCount++
		}
	}
	return next, change, true
}

func clone(s *models.VisibilityState) *models.VisibilityState {
	out := models.NewVisibilityState()
	if s.LastRunTimestamp != nil {
		ts := *s.LastRunTimestamp
		out.LastRunTimestamp = &ts
	}
	for k := range s.VisibleOffers {
		out.VisibleOffers[k] = struct{}{}
	}
	for k := range s.HiddenOffers {
		out.HiddenOffers[k] = struct{}{}
	}
	for k, h := range s.OfferHistory {
		cp := *h
		out.OfferHistory[k] = &cp
	}
	return out
}

func minus(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for k := range a {
		if _, ok := b[k]; !ok {
			out[k] = struct{}{}
		}
	}
	return out
}
