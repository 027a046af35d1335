package runs

import (
	"testing"
	"time"

	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

var base = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

func offerAt(hotel string, price int64, offset time.Duration) models.Offer {
	return models.Offer{
		HotelName: hotel,
		Price:     decimal.NewFromInt(price),
		ScrapedAt: base.Add(offset),
	}
}

func runStarts(rs []models.Run) []time.Time {
	out := make([]time.Time, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Start)
	}
	return out
}

func TestSegmentEmpty(t *testing.T) {
	if got := Segment(nil, DefaultGap); len(got) != 0 {
		t.Fatalf("runs=%d, want 0", len(got))
	}
}

func TestSegmentSingleRow(t *testing.T) {
	got := Segment([]models.Offer{offerAt("Hotel X", 1000, 0)}, DefaultGap)
	if len(got) != 1 || len(got[0].Offers) != 1 {
		t.Fatalf("expected one run with one row, got %+v", got)
	}
	if !got[0].Start.Equal(base) {
		t.Fatalf("start=%v, want %v", got[0].Start, base)
	}
}

func TestSegmentSplitsOnGap(t *testing.T) {
	offers := []models.Offer{
		offerAt("Hotel C", 900, 17*time.Minute),
		offerAt("Hotel A", 1000, 0),
		offerAt("Hotel B", 1100, 2*time.Minute),
		offerAt("Hotel A", 1000, 7*time.Minute),
		offerAt("Hotel B", 1050, 12*time.Minute),
	}

	got := Segment(offers, DefaultGap)

	want := []time.Time{base, base.Add(7 * time.Minute), base.Add(17 * time.Minute)}
	if diff := cmp.Diff(want, runStarts(got)); diff != "" {
		t.Fatalf("run starts mismatch (-want +got):\n%s", diff)
	}
	if len(got[0].Offers) != 2 || len(got[1].Offers) != 2 || len(got[2].Offers) != 1 {
		t.Fatalf("unexpected run sizes: %d %d %d", len(got[0].Offers), len(got[1].Offers), len(got[2].Offers))
	}
	for i, r := range got {
		if r.Index != i {
			t.Fatalf("run %d has index %d", i, r.Index)
		}
	}
}

func TestSegmentGapIsInclusive(t *testing.T) {
	offers := []models.Offer{
		offerAt("Hotel A", 1000, 0),
		offerAt("Hotel B", 1000, 5*time.Minute),
		offerAt("Hotel C", 1000, 10*time.Minute+time.Second),
	}
	got := Segment(offers, DefaultGap)
	if len(got) != 2 {
		t.Fatalf("runs=%d, want 2", len(got))
	}
	if len(got[0].Offers) != 2 {
		t.Fatalf("a 5 minute pause should stay in the same run")
	}
}

func TestSegmentGapInvariant(t *testing.T) {
	var offers []models.Offer
	offsets := []int{0, 1, 3, 9, 10, 11, 30, 34, 38, 44, 90}
	for i, m := range offsets {
		offers = append(offers, offerAt("Hotel", int64(1000+i), time.Duration(m)*time.Minute))
	}

	got := Segment(offers, DefaultGap)
	for i, r := range got {
		for j := 1; j < len(r.Offers); j++ {
			if d := r.Offers[j].ScrapedAt.Sub(r.Offers[j-1].ScrapedAt); d > DefaultGap {
				t.Fatalf("run %d contains a %v pause", i, d)
			}
		}
		if i > 0 {
			if d := r.Start.Sub(got[i-1].End()); d <= DefaultGap {
				t.Fatalf("boundary before run %d is only %v", i, d)
			}
		}
	}
}

func TestSegmentDeterministic(t *testing.T) {
	offers := []models.Offer{
		offerAt("Hotel A", 1000, 20*time.Minute),
		offerAt("Hotel B", 1000, 0),
		offerAt("Hotel C", 1000, 20*time.Minute),
		offerAt("Hotel D", 1000, 1*time.Minute),
	}
	first := Segment(offers, DefaultGap)
	second := Segment(offers, DefaultGap)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("segmentation not deterministic:\n%s", diff)
	}
	if offers[0].HotelName != "Hotel A" {
		t.Fatalf("input slice was reordered")
	}
}

func TestSegmentSameHotelTenMinutesApart(t *testing.T) {
	offers := []models.Offer{
		offerAt("Hotel X", 1000, 0),
		offerAt("Hotel X", 1000, 10*time.Minute),
	}
	if got := Segment(offers, DefaultGap); len(got) != 2 {
		t.Fatalf("runs=%d, want 2", len(got))
	}
}

func TestSegmentDropsZeroTimestamps(t *testing.T) {
	offers := []models.Offer{
		{HotelName: "Hotel Unknown", Price: decimal.NewFromInt(1)},
		offerAt("Hotel A", 1000, 0),
	}
	got := Segment(offers, DefaultGap)
	if len(got) != 1 || len(got[0].Offers) != 1 {
		t.Fatalf("zero timestamp row should be dropped, got %+v", got)
	}
}

func TestLatest(t *testing.T) {
	if _, _, ok := Latest(nil); ok {
		t.Fatalf("no runs should report !ok")
	}
	rs := Segment([]models.Offer{offerAt("A", 1, 0), offerAt("B", 1, time.Hour)}, DefaultGap)
	prev, latest, ok := Latest(rs)
	if !ok || !prev.Start.Equal(base) || !latest.Start.Equal(base.Add(time.Hour)) {
		t.Fatalf("unexpected latest pair: %v %v %v", prev.Start, latest.Start, ok)
	}
	prev, latest, ok = Latest(rs[:1])
	if !ok || len(prev.Offers) != 0 || !latest.Start.Equal(base) {
		t.Fatalf("single run should have empty prev")
	}
}
