package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ImageMap is the best-effort hotel_name -> image_url cache kept next to the
// offer CSV. The first URL seen for a hotel is kept.
type ImageMap struct {
	path string

	mu     sync.Mutex
	images map[string]string
	dirty  bool
}

// LoadImageMap reads the map at path. A missing or corrupted file yields an
// empty map.
func LoadImageMap(path string, logger *slog.Logger) *ImageMap {
	if logger == nil {
		logger = slog.Default()
	}
	m := &ImageMap{path: path, images: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("read image map", slog.String("path", path), slog.Any("error", err))
		}
		return m
	}
	if err := json.Unmarshal(data, &m.images); err != nil {
		logger.Warn("decode image map", slog.String("path", path), slog.Any("error", err))
		m.images = make(map[string]string)
	}
	return m
}

// Observe records imageURL for hotel unless one is already known. It reports
// whether the map changed.
func (m *ImageMap) Observe(hotel, imageURL string) bool {
	hotel = strings.TrimSpace(hotel)
	imageURL = strings.TrimSpace(imageURL)
	if hotel == "" || imageURL == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[hotel]; ok {
		return false
	}
	m.images[hotel] = imageURL
	m.dirty = true
	return true
}

// Get returns the image URL recorded for hotel.
func (m *ImageMap) Get(hotel string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.images[hotel]
	return u, ok
}

// Len returns the number of hotels with an image.
func (m *ImageMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.images)
}

// Save writes the map when it changed since it was loaded.
func (m *ImageMap) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return nil
	}

	data, err := json.MarshalIndent(m.images, "", "  ")
	if err != nil {
		return fmt.Errorf("encode image map: %w", err)
	}
	if err := WriteFileAtomic(m.path, data); err != nil {
		return err
	}
	m.dirty = false
	return nil
}

// WriteFileAtomic writes data to a sibling temp file and renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	if err := EnsureDir(path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %q: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %q: %w", path, err)
	}
	return nil
}

// EnsureDir creates the parent directory of filename.
func EnsureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
