package alerts

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Key identifies an alert across invocations. Price alerts are keyed by
// hotel, run start (to the minute) and the signed change percentage rounded
// to one decimal. Missing-hotel alerts replace the percentage with a marker.
type Key struct {
	Hotel         string
	RunMinute     time.Time
	ChangePercent decimal.Decimal
	Missing       bool
}

// NewKey builds the key of a price alert.
func NewKey(hotel string, runStart time.Time, changePercent decimal.Decimal) Key {
	return Key{
		Hotel:         hotel,
		RunMinute:     runStart.UTC().Truncate(time.Minute),
		ChangePercent: changePercent.Round(1),
	}
}

// NewMissingKey builds the key of a missing-hotel alert for the run in which
// the hotel was first absent.
func NewMissingKey(hotel string, runStart time.Time) Key {
	return Key{
		Hotel:     hotel,
		RunMinute: runStart.UTC().Truncate(time.Minute),
		Missing:   true,
	}
}

// String is the stable serialisation stored in unique_key. The hotel name is
// quoted so the separator cannot appear unescaped inside it.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(strconv.Quote(k.Hotel))
	b.WriteByte('|')
	b.WriteString(k.RunMinute.Format("2006-01-02T15:04Z07:00"))
	b.WriteByte('|')
	if k.Missing {
		b.WriteString("missing")
		return b.String()
	}
	if k.ChangePercent.IsPositive() {
		b.WriteByte('+')
	}
	b.WriteString(k.ChangePercent.StringFixed(1))
	return b.String()
}
