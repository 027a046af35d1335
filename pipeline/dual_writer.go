package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-travel-monitor/models"
)

// DualWriter appends to the offer store and mirrors every batch to a JSONL
// file. The store is written first; a batch the store rejects is not
// mirrored.
type DualWriter struct {
	store  *CSVWriter
	mirror *JSONWriter
	mu     sync.Mutex
}

// NewDualWriter opens the offer store at csvFilename and the mirror at
// jsonFilename.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	store, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("open offer store: %w", err)
	}
	mirror, err := NewJSONWriter(jsonFilename)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open json mirror: %w", err)
	}
	return &DualWriter{store: store, mirror: mirror}, nil
}

// NewOfferWriter opens the writer used by a scrape: the CSV store alone, or
// a DualWriter when mirrorFilename is set.
func NewOfferWriter(csvFilename, mirrorFilename string) (OutputWriter, error) {
	if mirrorFilename != "" {
		dw, err := NewDualWriter(csvFilename, mirrorFilename)
		if err != nil {
			return nil, err
		}
		return dw, nil
	}
	w, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (dw *DualWriter) Write(offers []*models.Offer) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.store.Write(offers); err != nil {
		return err
	}
	if err := dw.mirror.Write(offers); err != nil {
		return fmt.Errorf("json mirror: %w", err)
	}
	return nil
}

// Close closes both files, reporting every failure.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return errors.Join(dw.store.Close(), wrap("json mirror", dw.mirror.Close()))
}

func (dw *DualWriter) Validate() error {
	return errors.Join(dw.store.Validate(), wrap("json mirror", dw.mirror.Validate()))
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", what, err)
}
