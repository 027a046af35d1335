// Package store reads the append-only offer CSV and maintains the hotel
// image sidecar.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/aluiziolira/go-travel-monitor/parser"
)

// Column names of the offer CSV.
const (
	ColHotelName   = "hotel_name"
	ColPrice       = "price"
	ColDates       = "dates"
	ColDuration    = "duration"
	ColRating      = "rating"
	ColScrapedAt   = "scraped_at"
	ColURL         = "url"
	ColOfferURL    = "offer_url"
	ColFromAirport = "from_airport"
)

// Header is the column order used when a new offer file is created.
var Header = []string{
	ColHotelName, ColPrice, ColDates, ColDuration, ColRating,
	ColScrapedAt, ColURL, ColOfferURL, ColFromAirport,
}

// LoadStats reports what happened while reading the offer file.
type LoadStats struct {
	Rows    int
	Loaded  int
	Skipped map[string]int
}

// LoadOffers reads every observation from the CSV at path and returns them
// sorted by scraped_at. A missing or unreadable file yields no offers.
// Rows without a hotel name, with a non-numeric price or an unparsable
// timestamp are dropped and counted.
func LoadOffers(path string, logger *slog.Logger) ([]models.Offer, LoadStats) {
	if logger == nil {
		logger = slog.Default()
	}
	stats := LoadStats{Skipped: make(map[string]int)}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("offer file not found", slog.String("path", path))
		} else {
			logger.Warn("open offer file", slog.String("path", path), slog.Any("error", err))
		}
		return nil, stats
	}
	defer f.Close()

	offers, err := ReadOffers(f, &stats)
	if err != nil {
		logger.Warn("read offer file", slog.String("path", path), slog.Any("error", err))
	}
	if skipped := stats.Rows - stats.Loaded; skipped > 0 {
		logger.Warn("skipped offer rows",
			slog.String("path", path),
			slog.Int("skipped", skipped),
			slog.Any("reasons", stats.Skipped),
		)
	}
	return offers, stats
}

// ReadOffers decodes offers from r using the header in its first record.
// It returns the rows decoded before any unrecoverable read error.
func ReadOffers(r io.Reader, stats *LoadStats) ([]models.Offer, error) {
	if stats == nil {
		stats = &LoadStats{}
	}
	if stats.Skipped == nil {
		stats.Skipped = make(map[string]int)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := indexColumns(header)
	if _, ok := columns[ColHotelName]; !ok {
		return nil, fmt.Errorf("header missing %s column", ColHotelName)
	}

	var offers []models.Offer
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				stats.Rows++
				stats.Skipped["malformed_row"]++
				continue
			}
			sortByTime(offers)
			return offers, fmt.Errorf("read row: %w", err)
		}
		stats.Rows++

		offer, reason := decodeRow(record, columns)
		if reason != "" {
			stats.Skipped[reason]++
			continue
		}
		offers = append(offers, offer)
		stats.Loaded++
	}

	sortByTime(offers)
	return offers, nil
}

func decodeRow(record []string, columns map[string]int) (models.Offer, string) {
	get := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	name := get(ColHotelName)
	if name == "" {
		return models.Offer{}, "missing_hotel_name"
	}
	price, err := parser.ParsePrice(get(ColPrice))
	if err != nil {
		return models.Offer{}, "invalid_price"
	}
	scrapedAt, err := parser.ParseTimestamp(get(ColScrapedAt))
	if err != nil {
		return models.Offer{}, "invalid_timestamp"
	}

	return models.Offer{
		HotelName:   name,
		Price:       price,
		Dates:       get(ColDates),
		Duration:    get(ColDuration),
		Rating:      get(ColRating),
		ScrapedAt:   scrapedAt,
		URL:         get(ColURL),
		OfferURL:    get(ColOfferURL),
		FromAirport: get(ColFromAirport),
	}, ""
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}
	return columns
}

// sortByTime orders offers by scraped_at keeping file order for ties.
func sortByTime(offers []models.Offer) {
	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].ScrapedAt.Before(offers[j].ScrapedAt)
	})
}

// FileHeader returns the header of the offer CSV at path, or nil when the
// file is missing or empty.
func FileHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open offer file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}
	return header, nil
}

// Record renders o in the column order of header. Unknown columns are left
// empty.
func Record(o *models.Offer, header []string) []string {
	record := make([]string, len(header))
	for i, col := range header {
		switch strings.ToLower(col) {
		case ColHotelName:
			record[i] = o.HotelName
		case ColPrice:
			record[i] = o.Price.String()
		case ColDates:
			record[i] = o.Dates
		case ColDuration:
			record[i] = o.Duration
		case ColRating:
			record[i] = o.Rating
		case ColScrapedAt:
			record[i] = o.ScrapedAt.UTC().Format(time.RFC3339)
		case ColURL:
			record[i] = o.URL
		case ColOfferURL:
			record[i] = o.OfferURL
		case ColFromAirport:
			record[i] = o.FromAirport
		}
	}
	return record
}
