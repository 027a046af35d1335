package alerts

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/aluiziolira/go-travel-monitor/runs"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

var (
	runA = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	runB = time.Date(2025, 7, 1, 9, 7, 0, 0, time.UTC)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func offer(hotel, price string, at time.Time) models.Offer {
	return models.Offer{
		HotelName: hotel,
		Price:     decimal.RequireFromString(price),
		ScrapedAt: at,
	}
}

func newTestDeduplicator(t *testing.T, path string, maxAlerts int) *Deduplicator {
	t.Helper()
	d := NewDeduplicator(NewFileStore(path, maxAlerts, testLogger()), 0, testLogger())
	d.now = func() time.Time { return time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC) }
	n := 0
	d.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return d
}

func TestKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "drop rounded to tenths",
			key:  NewKey("Hotel X", runB.Add(42*time.Second), decimal.RequireFromString("-4.04")),
			want: `"Hotel X"|2025-07-01T09:07Z|-4.0`,
		},
		{
			name: "increase carries a plus sign",
			key:  NewKey("Hotel X", runB, decimal.RequireFromString("7.5")),
			want: `"Hotel X"|2025-07-01T09:07Z|+7.5`,
		},
		{
			name: "missing",
			key:  NewMissingKey("Hotel Y", runB),
			want: `"Hotel Y"|2025-07-01T09:07Z|missing`,
		},
		{
			name: "zone normalised to UTC",
			key:  NewKey("Hotel X", runB.In(time.FixedZone("CEST", 2*3600)), decimal.NewFromInt(-5)),
			want: `"Hotel X"|2025-07-01T09:07Z|-5.0`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Fatalf("String()=%q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeySeparatorInHotelName(t *testing.T) {
	a := NewKey(`Sea|2025-07-01T09:07Z`, runB, decimal.NewFromInt(-5))
	b := NewKey("Sea", runB, decimal.NewFromInt(-5))
	if a.String() == b.String() {
		t.Fatalf("keys collide: %q", a.String())
	}
}

func TestDecodeShapes(t *testing.T) {
	record := `{"hotel_name":"Hotel X","old_price":1000,"new_price":960,"price_change":-40,` +
		`"price_change_pct":-4,"timestamp":"2025-07-01T09:07:00Z","alert_type":"price_drop",` +
		`"created_at":"2025-07-01T12:00:00Z","unique_key":"k1","extra":"ignored"}`

	legacy := `{"hotel_name":"Hotel Z","old_price":2000.0,"new_price":1800.0,"price_change":-200.0,` +
		`"price_change_pct":-10.0,"timestamp":"2025-06-30 09:00:00+00:00","alert_type":"price_drop",` +
		`"created_at":"2025-06-30 09:05:12.123456"}`
	badTime := `{"hotel_name":"Hotel Q","old_price":1,"timestamp":"yesterday","alert_type":"price_drop"}`

	tests := []struct {
		name        string
		input       string
		want        int
		wantSkipped int
		wantErr     bool
	}{
		{name: "bare array", input: "[" + record + "]", want: 1},
		{name: "space separated and naive timestamps", input: "[" + legacy + "]", want: 1},
		{name: "bad record skipped", input: "[" + record + "," + badTime + ",42]", want: 1, wantSkipped: 2},
		{name: "wrapped object", input: `{"alerts":[` + record + `,` + record + `]}`, want: 2},
		{name: "empty array", input: "[]", want: 0},
		{name: "null", input: "null", want: 0},
		{name: "empty file", input: "  \n", want: 0},
		{name: "garbage", input: "not json", wantErr: true},
		{name: "truncated", input: "[" + record, wantErr: true},
		{name: "scalar", input: "42", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, skipped, err := Decode([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v, wantErr=%v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Fatalf("len=%d, want %d", len(got), tt.want)
			}
			if skipped != tt.wantSkipped {
				t.Fatalf("skipped=%d, want %d", skipped, tt.wantSkipped)
			}
		})
	}
}

func TestFileStoreLoadTolerance(t *testing.T) {
	dir := t.TempDir()

	missing := NewFileStore(filepath.Join(dir, "missing.json"), 0, testLogger())
	if got := missing.Load(); len(got) != 0 {
		t.Fatalf("missing file: got %d alerts", len(got))
	}

	corrupted := filepath.Join(dir, "corrupted.json")
	if err := os.WriteFile(corrupted, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := NewFileStore(corrupted, 0, testLogger()).Load(); len(got) != 0 {
		t.Fatalf("corrupted file: got %d alerts", len(got))
	}
}

func TestDecodeLegacyTimestamps(t *testing.T) {
	data := `[{"hotel_name":"Hotel Z","old_price":2000.0,"new_price":null,"timestamp":"2025-06-30 09:00:00+02:00",` +
		`"alert_type":"missing","created_at":"2025-06-30T09:05:00"}]`
	got, skipped, err := Decode([]byte(data))
	if err != nil || skipped != 0 || len(got) != 1 {
		t.Fatalf("got %d alerts, skipped=%d, err=%v", len(got), skipped, err)
	}
	if want := time.Date(2025, 6, 30, 7, 0, 0, 0, time.UTC); !got[0].Timestamp.Equal(want) {
		t.Fatalf("timestamp=%v, want %v", got[0].Timestamp, want)
	}
	if want := time.Date(2025, 6, 30, 9, 5, 0, 0, time.UTC); !got[0].CreatedAt.Equal(want) {
		t.Fatalf("created_at=%v, want %v (naive read as UTC)", got[0].CreatedAt, want)
	}
}

func TestProcessKeepsLegacyAlerts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	legacy := `[{"hotel_name":"Hotel Z","old_price":2000.0,"new_price":1800.0,"price_change":-200.0,` +
		`"price_change_pct":-10.0,"timestamp":"2025-06-30 09:00:00+00:00","alert_type":"price_drop",` +
		`"created_at":"2025-06-30 09:05:00+00:00","unique_key":"Hotel Z_run2025-06-30_09-00_-10.0"}]`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	d := newTestDeduplicator(t, path, 0)
	created := d.Process([]models.Offer{
		offer("Hotel X", "1000", runA),
		offer("Hotel X", "960", runB),
	}, 4.0)
	if len(created) != 1 {
		t.Fatalf("created=%d, want 1", len(created))
	}

	stored := NewFileStore(path, 0, testLogger()).Load()
	if len(stored) != 2 {
		t.Fatalf("stored=%d, want legacy alert kept plus the new one", len(stored))
	}
	if stored[0].HotelName != "Hotel Z" || stored[1].HotelName != "Hotel X" {
		t.Fatalf("unexpected order: %q, %q", stored[0].HotelName, stored[1].HotelName)
	}
	if backups, _ := filepath.Glob(path + ".*.bak"); len(backups) != 0 {
		t.Fatalf("clean legacy file should not be backed up: %v", backups)
	}
}

func TestSaveBacksUpDamagedFile(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantKept int
	}{
		{name: "undecodable document", content: `{broken`, wantKept: 0},
		{name: "one bad record", content: `[{"hotel_name":"Hotel Z","old_price":1,"timestamp":"2025-06-30T09:00:00Z","alert_type":"price_drop"},` +
			`{"hotel_name":"Hotel Q","old_price":1,"timestamp":"not a time","alert_type":"price_drop"}]`, wantKept: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "alerts.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}

			d := newTestDeduplicator(t, path, 0)
			d.Process([]models.Offer{
				offer("Hotel X", "1000", runA),
				offer("Hotel X", "960", runB),
			}, 4.0)

			backups, err := filepath.Glob(path + ".*.bak")
			if err != nil || len(backups) != 1 {
				t.Fatalf("backups=%v err=%v, want exactly one", backups, err)
			}
			saved, err := os.ReadFile(backups[0])
			if err != nil {
				t.Fatalf("read backup: %v", err)
			}
			if string(saved) != tt.content {
				t.Fatalf("backup content=%q, want original bytes", saved)
			}
			if got := len(NewFileStore(path, 0, testLogger()).Load()); got != tt.wantKept+1 {
				t.Fatalf("stored=%d, want %d", got, tt.wantKept+1)
			}
		})
	}
}

func TestProcessThreshold(t *testing.T) {
	offers := []models.Offer{
		offer("Hotel X", "1000", runA),
		offer("Hotel X", "960", runB),
	}

	tests := []struct {
		threshold float64
		want      int
	}{
		{threshold: 4.0, want: 1},
		{threshold: 5.0, want: 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.1f", tt.threshold), func(t *testing.T) {
			d := newTestDeduplicator(t, filepath.Join(t.TempDir(), "alerts.json"), DefaultMaxAlerts)
			if got := d.Process(offers, tt.threshold); len(got) != tt.want {
				t.Fatalf("alerts=%d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	d := newTestDeduplicator(t, path, DefaultMaxAlerts)
	offers := []models.Offer{
		offer("Hotel X", "1000", runA),
		offer("Hotel Y", "500", runA.Add(30*time.Second)),
		offer("Hotel X", "960", runB),
		offer("Hotel Y", "501", runB.Add(30*time.Second)),
	}

	first := d.Process(offers, 4.0)
	if len(first) != 1 {
		t.Fatalf("first call: alerts=%d, want 1", len(first))
	}

	newPrice, change, pct, threshold := 960.0, -40.0, -4.0, 4.0
	want := models.Alert{
		ID:               "id-1",
		HotelName:        "Hotel X",
		OldPrice:         1000,
		NewPrice:         &newPrice,
		PriceChange:      &change,
		PriceChangePct:   &pct,
		Timestamp:        runB,
		AlertType:        models.AlertPriceDrop,
		CreatedAt:        time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC),
		ThresholdPercent: &threshold,
		UniqueKey:        `"Hotel X"|2025-07-01T09:07Z|-4.0`,
	}
	if diff := cmp.Diff(want, first[0]); diff != "" {
		t.Fatalf("alert mismatch (-want +got):\n%s", diff)
	}

	res := d.Run(offers, 4.0)
	if len(res.Created) != 0 {
		t.Fatalf("second call: alerts=%d, want 0", len(res.Created))
	}
	if res.Duplicates != 1 {
		t.Fatalf("duplicates=%d, want 1", res.Duplicates)
	}

	stored := NewFileStore(path, 0, testLogger()).Load()
	if len(stored) != 1 {
		t.Fatalf("stored=%d, want 1", len(stored))
	}
}

func TestProcessAppendsToWrappedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	legacy := map[string]any{
		"alerts": []map[string]any{
			{
				"hotel_name": "Hotel X", "old_price": 1000, "new_price": 960,
				"timestamp": runB, "alert_type": "price_drop",
				"unique_key": `"Hotel X"|2025-07-01T09:07Z|-4.0`,
			},
			{"hotel_name": "Old record without key", "old_price": 10, "alert_type": "price_drop"},
		},
	}
	data, err := json.Marshal(legacy)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	runC := runB.Add(time.Hour)
	offers := []models.Offer{
		offer("Hotel X", "1000", runA),
		offer("Hotel X", "960", runB),
		offer("Hotel X", "1056", runC),
	}
	d := newTestDeduplicator(t, path, DefaultMaxAlerts)
	got := d.Process(offers, 4.0)
	if len(got) != 1 || got[0].AlertType != models.AlertPriceIncrease {
		t.Fatalf("unexpected alerts %+v", got)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var list []models.Alert
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("file should be rewritten as an array: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("stored=%d, want 3", len(list))
	}
}

func TestProcessRetentionHorizon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	d := newTestDeduplicator(t, path, 2)

	var offers []models.Offer
	prices := []string{"1000", "900", "1000", "900"}
	for i, p := range prices {
		offers = append(offers, offer("Hotel X", p, runA.Add(time.Duration(i)*time.Hour)))
	}

	if got := d.Process(offers, 4.0); len(got) != 3 {
		t.Fatalf("first call: alerts=%d, want 3", len(got))
	}
	stored := NewFileStore(path, 0, testLogger()).Load()
	if len(stored) != 2 {
		t.Fatalf("stored=%d, want 2 after pruning", len(stored))
	}
	if !stored[0].Timestamp.Equal(runA.Add(2 * time.Hour)) {
		t.Fatalf("oldest kept alert at %v, want %v", stored[0].Timestamp, runA.Add(2*time.Hour))
	}

	res := d.Run(offers, 4.0)
	if len(res.Created) != 0 {
		t.Fatalf("pruned alerts were recreated: %+v", res.Created)
	}
	if res.Expired != 1 || res.Duplicates != 2 {
		t.Fatalf("expired=%d duplicates=%d, want 1 and 2", res.Expired, res.Duplicates)
	}
}

func TestProcessSwallowsSaveError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	d := newTestDeduplicator(t, filepath.Join(blocker, "alerts.json"), 0)

	got := d.Process([]models.Offer{
		offer("Hotel X", "1000", runA),
		offer("Hotel X", "960", runB),
	}, 4.0)
	if len(got) != 1 {
		t.Fatalf("alerts=%d, want 1", len(got))
	}
}

func TestMissing(t *testing.T) {
	tests := []struct {
		name   string
		offers []models.Offer
		want   []string
	}{
		{
			name: "hotel vanished",
			offers: []models.Offer{
				offer("Hotel X", "1000", runA),
				offer("Hotel Y", "700", runA.Add(time.Minute)),
				offer("Hotel Y", "650", runA.Add(2*time.Minute)),
				offer("Hotel X", "990", runB.Add(5*time.Minute)),
			},
			want: []string{"Hotel Y"},
		},
		{
			name:   "single run",
			offers: []models.Offer{offer("Hotel X", "1000", runA)},
		},
		{
			name: "nothing vanished",
			offers: []models.Offer{
				offer("Hotel X", "1000", runA),
				offer("Hotel X", "1000", runB),
			},
		},
		{name: "empty store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Missing(runs.Segment(tt.offers, runs.DefaultGap))
			var names []string
			for _, a := range got {
				names = append(names, a.HotelName)
			}
			if diff := cmp.Diff(tt.want, names); diff != "" {
				t.Fatalf("missing hotels mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRecordMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	d := newTestDeduplicator(t, path, DefaultMaxAlerts)
	history := runs.Segment([]models.Offer{
		offer("Hotel X", "1000", runA),
		offer("Hotel Y", "650", runA.Add(time.Minute)),
		offer("Hotel X", "990", runB),
	}, runs.DefaultGap)

	got := d.RecordMissing(history)
	if len(got) != 1 {
		t.Fatalf("alerts=%d, want 1", len(got))
	}
	a := got[0]
	if a.HotelName != "Hotel Y" || a.AlertType != models.AlertMissing {
		t.Fatalf("unexpected alert %+v", a)
	}
	if a.OldPrice != 650 || a.NewPrice != nil || a.PriceChange != nil || a.PriceChangePct != nil {
		t.Fatalf("unexpected prices %+v", a)
	}
	if a.Note == "" || a.ID == "" || a.CreatedAt.IsZero() {
		t.Fatalf("missing metadata %+v", a)
	}

	if again := d.RecordMissing(history); len(again) != 0 {
		t.Fatalf("second call: alerts=%d, want 0", len(again))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var stored []map[string]any
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, ok := stored[0]["new_price"]; !ok || v != nil {
		t.Fatalf("new_price should be null, got %v (present=%v)", v, ok)
	}
}

func TestSummarize(t *testing.T) {
	ptr := func(v float64) *float64 { return &v }
	alerts := []models.Alert{
		{HotelName: "a", AlertType: models.AlertPriceDrop, PriceChange: ptr(-10)},
		{HotelName: "b", AlertType: models.AlertPriceDrop, PriceChange: ptr(-300)},
		{HotelName: "c", AlertType: models.AlertPriceIncrease, PriceChange: ptr(50)},
		{HotelName: "d", AlertType: models.AlertPriceIncrease, PriceChange: ptr(500)},
		{HotelName: "e", AlertType: models.AlertPriceIncrease, PriceChange: ptr(5)},
		{HotelName: "f", AlertType: models.AlertMissing},
	}

	s := Summarize(alerts, 2)
	if s.Total != 6 || s.Drops != 2 || s.Increases != 3 || s.Missing != 1 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.TopDrops[0].HotelName != "b" || s.TopDrops[1].HotelName != "a" {
		t.Fatalf("unexpected drop order %+v", s.TopDrops)
	}
	if len(s.TopIncreases) != 2 || s.TopIncreases[0].HotelName != "d" || s.TopIncreases[1].HotelName != "c" {
		t.Fatalf("unexpected increase order %+v", s.TopIncreases)
	}
}
