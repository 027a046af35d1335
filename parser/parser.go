// Package parser validates and normalises scraped offer fields.
package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/shopspring/decimal"
)

// Field length caps applied to scraped text.
const (
	MaxHotelNameLen = 100
	MaxDatesLen     = 50
	MaxDurationLen  = 30
	MaxRatingLen    = 20
)

var (
	priceNumberRegex = regexp.MustCompile(`\d[\d\s\x{00a0}\x{202f}.,]*`)
	fromFilterRegex  = regexp.MustCompile(`filter\[from\]=([^&]*)`)
)

// ValidateOffer ensures the scraper captured the required fields.
func ValidateOffer(o *models.Offer) error {
	if o == nil {
		return fmt.Errorf("offer is nil")
	}
	if strings.TrimSpace(o.HotelName) == "" {
		return fmt.Errorf("offer missing hotel name")
	}
	if !o.Price.IsPositive() {
		return fmt.Errorf("offer missing price for %s", o.HotelName)
	}
	if o.ScrapedAt.IsZero() {
		return fmt.Errorf("offer missing scrape time for %s", o.HotelName)
	}
	return nil
}

// CleanText collapses runs of whitespace into single spaces.
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// ParsePrice extracts the first number from a price label such as
// "2 499 zł", "1.234,50 €" or "1234.0". The last separator is treated as a
// decimal point when one or two digits follow it, otherwise as grouping.
func ParsePrice(text string) (decimal.Decimal, error) {
	match := priceNumberRegex.FindString(text)
	if match == "" {
		return decimal.Zero, fmt.Errorf("no number in price %q", text)
	}

	var b strings.Builder
	for _, r := range match {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		}
	}
	digits := strings.TrimRight(b.String(), ".,")

	last := strings.LastIndexAny(digits, ".,")
	if last >= 0 {
		frac := len(digits) - last - 1
		whole := strings.NewReplacer(".", "", ",", "").Replace(digits[:last])
		if frac == 1 || frac == 2 {
			digits = whole + "." + digits[last+1:]
		} else {
			digits = whole + digits[last+1:]
		}
	}

	price, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", text, err)
	}
	return price, nil
}

// AirportFromURL returns the first departure airport of the search URL's
// filter[from] parameter, or "" when the URL does not restrict it.
func AirportFromURL(rawURL string) string {
	var value string
	if u, err := url.Parse(rawURL); err == nil {
		value = u.Query().Get("filter[from]")
	}
	if value == "" {
		match := fromFilterRegex.FindStringSubmatch(rawURL)
		if len(match) < 2 || match[1] == "" {
			return ""
		}
		unescaped, err := url.QueryUnescape(match[1])
		if err != nil {
			unescaped = match[1]
		}
		value = unescaped
	}
	return strings.TrimSpace(strings.Split(value, ",")[0])
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTimestamp parses ISO-8601 timestamps that may or may not carry a
// zone. Naive timestamps are interpreted as UTC so that both kinds can be
// ordered within one file.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", value)
}
