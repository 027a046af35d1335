package visibility

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/aluiziolira/go-travel-monitor/parser"
	"github.com/aluiziolira/go-travel-monitor/store"
)

type stateFile struct {
	LastRunTimestamp *string                 `json:"last_run_timestamp"`
	VisibleOffers    []string                `json:"visible_offers"`
	HiddenOffers     []string                `json:"hidden_offers"`
	OfferHistory     map[string]historyEntry `json:"offer_history"`
}

type historyEntry struct {
	FirstSeen        string `json:"first_seen"`
	LastSeen         string `json:"last_seen"`
	DisappearedCount int    `json:"disappeared_count"`
	ReappearedCount  int    `json:"reappeared_count"`
}

// LoadState reads the state file at path. A missing or unreadable file
// yields an empty state.
func LoadState(path string, logger *slog.Logger) *models.VisibilityState {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("read visibility state", slog.String("path", path), slog.Any("error", err))
		}
		return models.NewVisibilityState()
	}
	state, err := DecodeState(data)
	if err != nil {
		logger.Warn("visibility state is corrupted, starting empty",
			slog.String("path", path),
			slog.Any("error", err),
		)
		return models.NewVisibilityState()
	}
	return state
}

// DecodeState parses a persisted state. Timestamps may be naive or carry a
// zone. Offer keys are normalised with canonicalKey.
func DecodeState(data []byte) (*models.VisibilityState, error) {
	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	state := models.NewVisibilityState()
	if f.LastRunTimestamp != nil && *f.LastRunTimestamp != "" {
		ts, err := parser.ParseTimestamp(*f.LastRunTimestamp)
		if err != nil {
			return nil, fmt.Errorf("last_run_timestamp: %w", err)
		}
		state.LastRunTimestamp = &ts
	}
	for _, k := range f.VisibleOffers {
		state.VisibleOffers[canonicalKey(k)] = struct{}{}
	}
	for _, k := range f.HiddenOffers {
		state.HiddenOffers[canonicalKey(k)] = struct{}{}
	}
	for k, h := range f.OfferHistory {
		entry := &models.OfferHistory{
			DisappearedCount: h.DisappearedCount,
			ReappearedCount:  h.ReappearedCount,
		}
		var err error
		if entry.FirstSeen, err = optionalTime(h.FirstSeen); err != nil {
			return nil, fmt.Errorf("offer_history[%q].first_seen: %w", k, err)
		}
		if entry.LastSeen, err = optionalTime(h.LastSeen); err != nil {
			return nil, fmt.Errorf("offer_history[%q].last_seen: %w", k, err)
		}
		state.OfferHistory[canonicalKey(k)] = entry
	}
	return state, nil
}

// EncodeState renders state with sets as sorted lists.
func EncodeState(state *models.VisibilityState) ([]byte, error) {
	f := stateFile{
		VisibleOffers: sortedKeys(state.VisibleOffers),
		HiddenOffers:  sortedKeys(state.HiddenOffers),
		OfferHistory:  make(map[string]historyEntry, len(state.OfferHistory)),
	}
	if state.LastRunTimestamp != nil {
		ts := state.LastRunTimestamp.UTC().Format(time.RFC3339)
		f.LastRunTimestamp = &ts
	}
	for k, h := range state.OfferHistory {
		f.OfferHistory[k] = historyEntry{
			FirstSeen:        h.FirstSeen.UTC().Format(time.RFC3339),
			LastSeen:         h.LastSeen.UTC().Format(time.RFC3339),
			DisappearedCount: h.DisappearedCount,
			ReappearedCount:  h.ReappearedCount,
		}
	}
	return json.MarshalIndent(f, "", "  ")
}

// SaveState writes state to path atomically.
func SaveState(path string, state *models.VisibilityState) error {
	data, err := EncodeState(state)
	if err != nil {
		return fmt.Errorf("encode visibility state: %w", err)
	}
	if err := store.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("save visibility state: %w", err)
	}
	return nil
}

func optionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return parser.ParseTimestamp(s)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
