// Package visibility tracks which distinct offers are live in the latest
// scrape run and which disappeared since the run before it.
package visibility

import (
	"strings"

	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/aluiziolira/go-travel-monitor/parser"
	"github.com/shopspring/decimal"
)

// OfferKey identifies an offer across runs. The price is part of the key,
// so a repriced offer shows up as one offer hidden and another one new.
// Whole prices keep one decimal ("2499.0") to match state files written by
// float-based tooling.
func OfferKey(o models.Offer) string {
	airport := o.FromAirport
	if airport == "" {
		airport = parser.AirportFromURL(o.URL)
	}
	return strings.Join([]string{
		o.HotelName,
		keyPrice(o.Price),
		o.Dates,
		airport,
		o.Duration,
	}, "|")
}

func keyPrice(p decimal.Decimal) string {
	if p.IsInteger() {
		return p.String() + ".0"
	}
	return p.String()
}

// canonicalKey rewrites the price part of a stored key into the form
// OfferKey produces, so "2499", "2499.0" and "2499.00" all match. The price
// is the fourth field from the right; hotel names may contain the separator.
func canonicalKey(key string) string {
	parts := strings.Split(key, "|")
	if len(parts) < 5 {
		return key
	}
	i := len(parts) - 4
	p, err := decimal.NewFromString(parts[i])
	if err != nil {
		return key
	}
	parts[i] = keyPrice(p)
	return strings.Join(parts, "|")
}

// Keys returns the distinct offer keys of offers.
func Keys(offers []models.Offer) map[string]struct{} {
	out := make(map[string]struct{}, len(offers))
	for _, o := range offers {
		out[OfferKey(o)] = struct{}{}
	}
	return out
}
