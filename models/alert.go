package models

import "time"

// AlertType distinguishes price movements from disappeared hotels.
type AlertType string

const (
	AlertPriceDrop     AlertType = "price_drop"
	AlertPriceIncrease AlertType = "price_increase"
	AlertMissing       AlertType = "missing"
)

// Alert is a persisted alert record. Records are append-only: once written
// they are never modified, only pruned.
type Alert struct {
	ID               string    `json:"id,omitempty"`
	HotelName        string    `json:"hotel_name"`
	OldPrice         float64   `json:"old_price"`
	NewPrice         *float64  `json:"new_price"`
	PriceChange      *float64  `json:"price_change"`
	PriceChangePct   *float64  `json:"price_change_pct"`
	Timestamp        time.Time `json:"timestamp"`
	AlertType        AlertType `json:"alert_type"`
	CreatedAt        time.Time `json:"created_at"`
	ThresholdPercent *float64  `json:"threshold_percent,omitempty"`
	UniqueKey        string    `json:"unique_key,omitempty"`
	Note             string    `json:"note,omitempty"`
}
