package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "negative parallelism",
			mutate: func(cfg *Config) {
				cfg.Parallelism = -1
			},
			wantErr: "parallelism",
		},
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "zero run gap",
			mutate: func(cfg *Config) {
				cfg.RunGap = 0
			},
			wantErr: "run gap",
		},
		{
			name: "zero threshold",
			mutate: func(cfg *Config) {
				cfg.AlertThreshold = 0
			},
			wantErr: "alert threshold",
		},
		{
			name: "negative max alerts",
			mutate: func(cfg *Config) {
				cfg.MaxAlerts = -5
			},
			wantErr: "max alerts",
		},
		{
			name: "empty data file",
			mutate: func(cfg *Config) {
				cfg.DataFile = ""
			},
			wantErr: "data file",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = time.Minute
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "missing offer selector",
			mutate: func(cfg *Config) {
				cfg.Selectors.Offer = " "
			},
			wantErr: "offer selector",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	doc := `
data_file: data/egypt_travel_prices.csv
alert_threshold: 5.0
run_gap: 10m
base_url: https://fly.pl/wyszukiwarka/?filter[to]=Egipt
selectors:
  price: [".offer-price"]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load file: %v", err)
	}

	if cfg.DataFile != "data/egypt_travel_prices.csv" {
		t.Fatalf("data file = %q", cfg.DataFile)
	}
	if cfg.AlertThreshold != 5.0 {
		t.Fatalf("threshold = %v, want 5", cfg.AlertThreshold)
	}
	if cfg.RunGap != 10*time.Minute {
		t.Fatalf("run gap = %v, want 10m", cfg.RunGap)
	}
	if len(cfg.Selectors.Price) != 1 || cfg.Selectors.Price[0] != ".offer-price" {
		t.Fatalf("price selectors = %v", cfg.Selectors.Price)
	}
	if cfg.AlertsFile != DefaultConfig().AlertsFile {
		t.Fatalf("alerts file should keep default, got %q", cfg.AlertsFile)
	}
	if len(cfg.Selectors.HotelName) == 0 {
		t.Fatalf("hotel name selectors should keep defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("overlaid config should validate: %v", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MONITOR_ALERT_THRESHOLD", "5")
	t.Setenv("MONITOR_RUN_GAP", "3m")
	t.Setenv("MONITOR_DATA_FILE", "data/turkey_travel_prices.csv")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.AlertThreshold != 5 {
		t.Fatalf("threshold = %v, want 5", cfg.AlertThreshold)
	}
	if cfg.RunGap != 3*time.Minute {
		t.Fatalf("run gap = %v, want 3m", cfg.RunGap)
	}
	if cfg.DataFile != "data/turkey_travel_prices.csv" {
		t.Fatalf("data file = %q", cfg.DataFile)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("MONITOR_MAX_ALERTS", "lots")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil || !strings.Contains(err.Error(), "MONITOR_MAX_ALERTS") {
		t.Fatalf("expected MONITOR_MAX_ALERTS error, got %v", err)
	}
}
