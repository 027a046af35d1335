package models

import "time"

// OfferHistory is the appearance log of a single offer key.
type OfferHistory struct {
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	DisappearedCount int       `json:"disappeared_count"`
	ReappearedCount  int       `json:"reappeared_count"`
}

// VisibilityState records which offers are live in the latest run and which
// vanished since the run before it.
type VisibilityState struct {
	LastRunTimestamp *time.Time
	VisibleOffers    map[string]struct{}
	HiddenOffers     map[string]struct{}
	OfferHistory     map[string]*OfferHistory
}

// NewVisibilityState returns an empty state.
func NewVisibilityState() *VisibilityState {
	return &VisibilityState{
		VisibleOffers: make(map[string]struct{}),
		HiddenOffers:  make(map[string]struct{}),
		OfferHistory:  make(map[string]*OfferHistory),
	}
}

// VisibilityStats summarises a VisibilityState.
type VisibilityStats struct {
	VisibleCount       int        `json:"visible_count"`
	HiddenCount        int        `json:"hidden_count"`
	LastRunTimestamp   *time.Time `json:"last_run_timestamp"`
	TotalTrackedOffers int        `json:"total_tracked_offers"`
}
