// Package models defines data structures shared by the monitor components.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Offer is one scraped observation of a travel offer (one CSV row).
type Offer struct {
	HotelName   string          `csv:"hotel_name" json:"hotel_name"`
	Price       decimal.Decimal `csv:"price" json:"price"`
	Dates       string          `csv:"dates" json:"dates"`
	Duration    string          `csv:"duration" json:"duration"`
	Rating      string          `csv:"rating" json:"rating,omitempty"`
	ScrapedAt   time.Time       `csv:"scraped_at" json:"scraped_at"`
	URL         string          `csv:"url" json:"url"`
	OfferURL    string          `csv:"offer_url" json:"offer_url,omitempty"`
	FromAirport string          `csv:"from_airport" json:"from_airport,omitempty"`

	// ImageURL is tracked in the hotel image map, never in the CSV.
	ImageURL string `csv:"-" json:"image_url,omitempty"`
}

// ScraperResult holds the overall result of a scraping operation
type ScraperResult struct {
	StartTime    time.Time
	EndTime      time.Time
	TotalCount   int
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
	PageCount    int
}
