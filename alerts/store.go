// Package alerts turns price deltas and vanished hotels into deduplicated,
// persisted alert records.
package alerts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/aluiziolira/go-travel-monitor/parser"
	"github.com/aluiziolira/go-travel-monitor/store"
)

// DefaultMaxAlerts is the retention applied when none is configured.
const DefaultMaxAlerts = 1000

// FileStore persists alerts as a JSON array. It also reads files written as
// {"alerts": [...]}.
type FileStore struct {
	path      string
	maxAlerts int
	logger    *slog.Logger

	mu sync.Mutex
	// damaged holds the raw bytes of a file Load could not fully decode.
	// Save copies them aside before replacing the file.
	damaged []byte
}

// NewFileStore returns a store backed by path keeping at most maxAlerts
// records. maxAlerts <= 0 disables pruning.
func NewFileStore(path string, maxAlerts int, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, maxAlerts: maxAlerts, logger: logger}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load returns the persisted alerts. A missing file is empty. Records that
// cannot be decoded are skipped; an undecodable document yields no alerts.
// In both cases the original bytes are kept and backed up by the next Save.
func (s *FileStore) Load() []models.Alert {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("read alerts file", slog.String("path", s.path), slog.Any("error", err))
		}
		return nil
	}
	alerts, skipped, err := Decode(data)
	if err != nil {
		s.logger.Warn("alerts file is corrupted, starting empty",
			slog.String("path", s.path),
			slog.Any("error", err),
		)
		s.markDamaged(data)
		return nil
	}
	if skipped > 0 {
		s.logger.Warn("skipped undecodable alert records",
			slog.String("path", s.path),
			slog.Int("skipped", skipped),
			slog.Int("loaded", len(alerts)),
		)
		s.markDamaged(data)
	}
	return alerts
}

func (s *FileStore) markDamaged(data []byte) {
	s.mu.Lock()
	s.damaged = data
	s.mu.Unlock()
}

// Save prunes alerts to the retention limit and writes them atomically.
// If the last Load met a damaged file, that file is first copied to a
// timestamped .bak sibling; when the copy fails nothing is written.
func (s *FileStore) Save(alerts []models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.damaged != nil {
		backup := fmt.Sprintf("%s.%s.bak", s.path, time.Now().UTC().Format("20060102T150405"))
		if err := store.WriteFileAtomic(backup, s.damaged); err != nil {
			return fmt.Errorf("back up damaged alerts file: %w", err)
		}
		s.logger.Warn("backed up damaged alerts file", slog.String("backup", backup))
		s.damaged = nil
	}

	alerts = Prune(alerts, s.maxAlerts)
	if alerts == nil {
		alerts = []models.Alert{}
	}
	data, err := json.MarshalIndent(alerts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode alerts: %w", err)
	}
	if err := store.WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("save alerts: %w", err)
	}
	return nil
}

// horizon returns the timestamp before which candidates would be pruned on
// the next save. ok is false when the store is below its retention limit.
func (s *FileStore) horizon(existing []models.Alert) (time.Time, bool) {
	if s.maxAlerts <= 0 || len(existing) < s.maxAlerts {
		return time.Time{}, false
	}
	oldest := existing[0].Timestamp
	for _, a := range existing[1:] {
		if a.Timestamp.Before(oldest) {
			oldest = a.Timestamp
		}
	}
	return oldest, true
}

// Prune keeps the newest max records. Records are kept in append order.
func Prune(alerts []models.Alert, max int) []models.Alert {
	if max <= 0 || len(alerts) <= max {
		return alerts
	}
	return alerts[len(alerts)-max:]
}

// alertFile is the on-disk shape: either a bare array or {"alerts": [...]}.
// Records are kept raw so one bad record does not fail the document.
type alertFile struct {
	Records []json.RawMessage
}

func (f *alertFile) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		f.Records = nil
		return nil
	}
	switch trimmed[0] {
	case '[':
		return json.Unmarshal(trimmed, &f.Records)
	case '{':
		var wrapped struct {
			Alerts []json.RawMessage `json:"alerts"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return err
		}
		f.Records = wrapped.Alerts
		return nil
	default:
		return fmt.Errorf("unexpected alerts document starting with %q", trimmed[0])
	}
}

// record overrides the alert timestamps with strings so that files written
// with a space separator or without a zone still decode.
type record struct {
	models.Alert
	Timestamp string `json:"timestamp"`
	CreatedAt string `json:"created_at"`
}

func decodeRecord(raw json.RawMessage) (models.Alert, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.Alert{}, err
	}
	a := r.Alert
	var err error
	if a.Timestamp, err = optionalTime(r.Timestamp); err != nil {
		return models.Alert{}, fmt.Errorf("timestamp: %w", err)
	}
	if a.CreatedAt, err = optionalTime(r.CreatedAt); err != nil {
		return models.Alert{}, fmt.Errorf("created_at: %w", err)
	}
	return a, nil
}

func optionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return parser.ParseTimestamp(s)
}

// Decode parses an alerts document in either accepted shape. Records that
// fail to decode are dropped and counted in skipped.
func Decode(data []byte) (alerts []models.Alert, skipped int, err error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, 0, nil
	}
	var f alertFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, 0, err
	}
	for _, raw := range f.Records {
		a, err := decodeRecord(raw)
		if err != nil {
			skipped++
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, skipped, nil
}
