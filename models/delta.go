package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Delta is the price movement of one hotel between a baseline and a current
// observation.
type Delta struct {
	HotelName     string
	OldPrice      decimal.Decimal
	NewPrice      decimal.Decimal
	Change        decimal.Decimal
	ChangePercent decimal.Decimal
	BaselineAt    time.Time
	// Timestamp is the start of the newer run for run-pair deltas, or the
	// latest observation time for window deltas.
	Timestamp time.Time
}

// Decrease reports whether the price went down.
func (d Delta) Decrease() bool {
	return d.Change.IsNegative()
}
