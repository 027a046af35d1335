package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "monitor.log")
	w, err := OpenRotating(path, 10)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("first line\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	backup, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backup) != "first line\n" {
		t.Fatalf("backup=%q", backup)
	}
	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if string(current) != "second\n" {
		t.Fatalf("current=%q", current)
	}
}

func TestOpenRotatingTruncatesOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.log")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 64)), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	w, err := OpenRotating(path, 32)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("size=%d, want 0 after rotation", info.Size())
	}
}

func TestNewHandlerFormats(t *testing.T) {
	var buf bytes.Buffer
	level := &slog.LevelVar{}
	logger := slog.New(newHandler(&buf, level, true))
	logger.Info("alerts processed", slog.Int("new", 2))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("json handler output %q: %v", buf.String(), err)
	}
	if record["msg"] != "alerts processed" || record["new"] != float64(2) {
		t.Fatalf("unexpected record %v", record)
	}

	buf.Reset()
	logger = slog.New(newHandler(&buf, level, false))
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level: %q", buf.String())
	}
	level.Set(slog.LevelDebug)
	logger.Debug("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Fatalf("text handler output %q", buf.String())
	}
}

func TestNewWithLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.log")
	logger, level, closer, err := New(false, path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if level.Level() != slog.LevelInfo {
		t.Fatalf("level=%v", level.Level())
	}
	logger.Info("cycle finished")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"cycle finished"`) {
		t.Fatalf("log file=%q", data)
	}
}
