// Package config holds monitor configuration: defaults, YAML overlay,
// environment overrides and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds monitor configuration.
type Config struct {
	DataFile       string `yaml:"data_file"`
	AlertsFile     string `yaml:"alerts_file"`
	VisibilityFile string `yaml:"visibility_file"`
	ImageMapFile   string `yaml:"image_map_file"`
	JSONMirrorFile string `yaml:"json_mirror_file"` // optional JSONL copy of appended rows

	RunGap         time.Duration `yaml:"run_gap"`
	AlertThreshold float64       `yaml:"alert_threshold"`
	MaxAlerts      int           `yaml:"max_alerts"` // 0 keeps every alert
	DeltaWindow    time.Duration `yaml:"delta_window"`
	TopN           int           `yaml:"top_n"`

	BaseURL            string        `yaml:"base_url"`
	MaxPages           int           `yaml:"max_pages"`
	Parallelism        int           `yaml:"parallelism"`
	Delay              time.Duration `yaml:"delay"`
	RandomDelay        time.Duration `yaml:"random_delay"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax    time.Duration `yaml:"retry_backoff_max"`
	UserAgent          string        `yaml:"user_agent"`
	RespectRobotsTxt   bool          `yaml:"respect_robots_txt"`
	PipelineBufferSize int           `yaml:"pipeline_buffer_size"`
	BatchSize          int           `yaml:"batch_size"`
	DedupeMaxSize      int           `yaml:"dedupe_max_size"`
	Selectors          Selectors     `yaml:"selectors"`

	Schedule    string        `yaml:"schedule"` // cron expression, wins over Interval
	Interval    time.Duration `yaml:"interval"`
	MetricsAddr string        `yaml:"metrics_addr"`
	LogFile     string        `yaml:"log_file"`
	Verbose     bool          `yaml:"verbose"`
}

// Selectors lists CSS selectors for the search results page. Field lists are
// tried in order and the first non-empty match wins.
type Selectors struct {
	Offer     string   `yaml:"offer"`
	NextPage  string   `yaml:"next_page"`
	HotelName []string `yaml:"hotel_name"`
	Price     []string `yaml:"price"`
	Dates     []string `yaml:"dates"`
	Duration  []string `yaml:"duration"`
	Rating    []string `yaml:"rating"`
	Link      []string `yaml:"link"`
	Image     []string `yaml:"image"`
}

// DefaultConfig returns defaults matching the fly.pl search layout.
func DefaultConfig() *Config {
	return &Config{
		DataFile:       "data/travel_prices.csv",
		AlertsFile:     "data/price_alerts_history.json",
		VisibilityFile: "data/offer_visibility_state.json",
		ImageMapFile:   "data/hotel_images.json",

		RunGap:         5 * time.Minute,
		AlertThreshold: 4.0,
		MaxAlerts:      1000,
		DeltaWindow:    48 * time.Hour,
		TopN:           5,

		BaseURL:            "https://fly.pl/wyszukiwarka/?filter[from]=Warszawa",
		MaxPages:           5,
		Parallelism:        2,
		Delay:              500 * time.Millisecond,
		RandomDelay:        0,
		Timeout:            30 * time.Second,
		MaxRetries:         3,
		RetryBackoff:       2 * time.Second,
		RetryBackoffMax:    30 * time.Second,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt:   false,
		PipelineBufferSize: 256,
		BatchSize:          32,
		DedupeMaxSize:      10000,
		Selectors:          DefaultSelectors(),
	}
}

// DefaultSelectors mirrors the selector fallbacks used for travel search pages.
func DefaultSelectors() Selectors {
	return Selectors{
		Offer:     ".offer-item, .trip-item, .hotel-item, .search-result-item, [data-testid*=offer]",
		NextPage:  "li.next a, a[rel=next], .pagination-next a",
		HotelName: []string{".hotel-name", ".offer-title", ".title", ".name", "h2", "h3", "h4"},
		Price:     []string{".price", ".cost", ".amount", "[class*=price]"},
		Dates:     []string{".dates", ".date", ".departure", "[class*=date]"},
		Duration:  []string{".duration", ".nights", ".days", "[class*=duration]"},
		Rating:    []string{".rating", ".stars", ".score", "[class*=rating]"},
		Link:      []string{"a.offer-link", "a[href*=oferta]", "a"},
		Image:     []string{"img.hotel-image", "img"},
	}
}

// Load builds a configuration from defaults, an optional YAML file and the
// environment (a .env file in the working directory is honoured).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto c. Keys absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from MONITOR_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := EnvString("MONITOR_DATA_FILE"); ok {
		c.DataFile = v
	}
	if v, ok := EnvString("MONITOR_ALERTS_FILE"); ok {
		c.AlertsFile = v
	}
	if v, ok := EnvString("MONITOR_VISIBILITY_FILE"); ok {
		c.VisibilityFile = v
	}
	if v, ok := EnvString("MONITOR_IMAGE_MAP_FILE"); ok {
		c.ImageMapFile = v
	}
	if v, ok := EnvString("MONITOR_BASE_URL"); ok {
		c.BaseURL = v
	}
	if v, ok := EnvString("MONITOR_SCHEDULE"); ok {
		c.Schedule = v
	}
	if v, ok := EnvString("MONITOR_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	if v, ok := EnvString("MONITOR_LOG_FILE"); ok {
		c.LogFile = v
	}

	if v, ok, err := EnvFloat("MONITOR_ALERT_THRESHOLD"); err != nil {
		return err
	} else if ok {
		c.AlertThreshold = v
	}
	if v, ok, err := EnvInt("MONITOR_MAX_ALERTS"); err != nil {
		return err
	} else if ok {
		c.MaxAlerts = v
	}
	if v, ok, err := EnvInt("MONITOR_PAGES"); err != nil {
		return err
	} else if ok {
		c.MaxPages = v
	}
	if v, ok, err := EnvInt("MONITOR_PARALLEL"); err != nil {
		return err
	} else if ok {
		c.Parallelism = v
	}
	if v, ok, err := EnvDuration("MONITOR_RUN_GAP"); err != nil {
		return err
	} else if ok {
		c.RunGap = v
	}
	if v, ok, err := EnvDuration("MONITOR_DELTA_WINDOW"); err != nil {
		return err
	} else if ok {
		c.DeltaWindow = v
	}
	if v, ok, err := EnvDuration("MONITOR_INTERVAL"); err != nil {
		return err
	} else if ok {
		c.Interval = v
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.DataFile == "" {
		return fmt.Errorf("data file cannot be empty")
	}
	if c.AlertsFile == "" {
		return fmt.Errorf("alerts file cannot be empty")
	}
	if c.VisibilityFile == "" {
		return fmt.Errorf("visibility file cannot be empty")
	}
	if c.RunGap <= 0 {
		return fmt.Errorf("run gap must be positive")
	}
	if c.AlertThreshold <= 0 {
		return fmt.Errorf("alert threshold must be positive")
	}
	if c.MaxAlerts < 0 {
		return fmt.Errorf("max alerts cannot be negative")
	}
	if c.DeltaWindow <= 0 {
		return fmt.Errorf("delta window must be positive")
	}
	if c.TopN <= 0 {
		return fmt.Errorf("top n must be positive")
	}

	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if strings.TrimSpace(c.Selectors.Offer) == "" {
		return fmt.Errorf("offer selector cannot be empty")
	}
	if len(c.Selectors.HotelName) == 0 || len(c.Selectors.Price) == 0 {
		return fmt.Errorf("hotel name and price selectors are required")
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval cannot be negative")
	}

	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer when set.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvFloat parses key as a float when set.
func EnvFloat(key string) (float64, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return f, true, nil
}

// EnvDuration parses key as a time.Duration ("5m", "48h") when set.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}
