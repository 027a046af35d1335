package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/aluiziolira/go-travel-monitor/store"
)

// CSVWriter appends offers to the offer store. Every field is quoted and
// rows follow the column order of the existing header. The header is only
// written when the file is new or empty.
type CSVWriter struct {
	file   *os.File
	writer *bufio.Writer
	header []string
	rows   int
	mu     sync.Mutex
}

// NewCSVWriter opens filename for appending.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := store.EnsureDir(filename); err != nil {
		return nil, err
	}

	header, err := store.FileHeader(filename)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}

	cw := &CSVWriter{
		file:   f,
		writer: bufio.NewWriter(f),
		header: header,
	}
	if len(cw.header) == 0 {
		cw.header = store.Header
		if err := cw.writeRecord(cw.header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		if err := cw.writer.Flush(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}
	return cw, nil
}

// Header returns the column order rows are written in.
func (cw *CSVWriter) Header() []string {
	out := make([]string, len(cw.header))
	copy(out, cw.header)
	return out
}

// Write appends offers to the CSV output.
func (cw *CSVWriter) Write(offers []*models.Offer) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, offer := range offers {
		if err := cw.writeRecord(store.Record(offer, cw.header)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		cw.rows++
	}
	if err := cw.writer.Flush(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

func (cw *CSVWriter) writeRecord(record []string) error {
	for i, field := range record {
		if i > 0 {
			if err := cw.writer.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := cw.writer.WriteString(quoteField(field)); err != nil {
			return err
		}
	}
	_, err := cw.writer.WriteString("\n")
	return err
}

func quoteField(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.writer.Flush(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures this writer appended at least one row after the header
// and that the file is not empty.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	rows := cw.rows
	cw.mu.Unlock()
	if rows == 0 {
		return fmt.Errorf("no offer rows appended")
	}

	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter appends newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter opens filename for appending.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := store.EnsureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends offers in JSONL format.
func (jw *JSONWriter) Write(offers []*models.Offer) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, offer := range offers {
		if err := jw.encoder.Encode(offer); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}
