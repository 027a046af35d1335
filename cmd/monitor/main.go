package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-travel-monitor/alerts"
	"github.com/aluiziolira/go-travel-monitor/config"
	"github.com/aluiziolira/go-travel-monitor/logging"
	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/aluiziolira/go-travel-monitor/monitor"
	"github.com/aluiziolira/go-travel-monitor/report"
	"github.com/aluiziolira/go-travel-monitor/scheduler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const usage = `Usage: monitor <command> [flags]

Commands:
  scrape      crawl the search and append offers to the data file
  check       record new price and missing hotel alerts
  visibility  update or reset offer visibility and print its stats
  report      print the alert summary and the largest price moves
  run         scrape, then check and update visibility
  daemon      run the cycle on a schedule and serve metrics

Run "monitor <command> -h" for command flags.
`

// options are flags shared by every command.
type options struct {
	configPath string
	verbose    bool
	dataFile   string
	alertsFile string
	logFile    string
}

func (o *options) bind(fs *flag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.BoolVar(&o.verbose, "v", false, "Enable verbose logging")
	fs.StringVar(&o.dataFile, "data", "", "Offer CSV path (overrides config)")
	fs.StringVar(&o.alertsFile, "alerts", "", "Alert history path (overrides config)")
	fs.StringVar(&o.logFile, "log-file", "", "Also write logs to this file, rotated at 2MB")
}

func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.verbose {
		cfg.Verbose = true
	}
	if o.dataFile != "" {
		cfg.DataFile = o.dataFile
	}
	if o.alertsFile != "" {
		cfg.AlertsFile = o.alertsFile
	}
	if o.logFile != "" {
		cfg.LogFile = o.logFile
	}
	return cfg, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var run func(args []string) error
	switch os.Args[1] {
	case "scrape":
		run = runScrape
	case "check":
		run = runCheck
	case "visibility":
		run = runVisibility
	case "report":
		run = runReport
	case "run":
		run = runCycle
	case "daemon":
		run = runDaemon
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err := run(os.Args[2:]); err != nil {
		slog.Error("command failed", slog.String("command", os.Args[1]), slog.Any("error", err))
		os.Exit(1)
	}
}

// setup parses args, loads configuration and installs the default logger.
// The returned closer flushes the log file.
func setup(fs *flag.FlagSet, opts *options, args []string, override func(*config.Config)) (*config.Config, *slog.Logger, func(), error) {
	opts.bind(fs)
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}

	cfg, err := opts.load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, level, closer, err := logging.New(cfg.Verbose, cfg.LogFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open log file: %w", err)
	}
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cleanup := func() {
		if err := closer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
		}
	}
	return cfg, logger, cleanup, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()
	return ctx, stop
}

func runScrape(args []string) error {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	maxPages := fs.Int("pages", 0, "Maximum result pages to scrape")
	parallelism := fs.Int("parallel", 0, "Number of concurrent requests")
	baseURL := fs.String("base-url", "", "Search URL to crawl")
	mirror := fs.String("json-mirror", "", "Also append offers as JSON lines to this file")

	var opts options
	cfg, logger, cleanup, err := setup(fs, &opts, args, func(cfg *config.Config) {
		if *maxPages > 0 {
			cfg.MaxPages = *maxPages
		}
		if *parallelism > 0 {
			cfg.Parallelism = *parallelism
		}
		if *baseURL != "" {
			cfg.BaseURL = *baseURL
		}
		if *mirror != "" {
			cfg.JSONMirrorFile = *mirror
		}
	})
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	logger.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("pages", cfg.MaxPages),
		slog.Int("workers", cfg.Parallelism),
	)
	m := monitor.New(cfg, logger)
	result, err := m.Scrape(ctx)
	if err != nil {
		return err
	}
	printSummary(result, cfg.DataFile)
	return nil
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	threshold := fs.Float64("threshold", 0, "Minimum absolute change in percent")
	missing := fs.Bool("missing", true, "Also record hotels missing from the latest run")

	var opts options
	cfg, logger, cleanup, err := setup(fs, &opts, args, func(cfg *config.Config) {
		if *threshold > 0 {
			cfg.AlertThreshold = *threshold
		}
	})
	if err != nil {
		return err
	}
	defer cleanup()

	m := monitor.New(cfg, logger)
	a, err := m.Analyze(context.Background(), *missing)
	if err != nil {
		return err
	}

	created := append(append([]models.Alert(nil), a.Price.Created...), a.Missing...)
	if len(created) == 0 {
		fmt.Printf("No new alerts (%d runs, %d offers, %d duplicates skipped)\n", a.Runs, a.Offers, a.Price.Duplicates)
		return nil
	}
	report.Alerts(os.Stdout, created)
	return nil
}

func runVisibility(args []string) error {
	fs := flag.NewFlagSet("visibility", flag.ExitOnError)
	reset := fs.Bool("reset", false, "Clear the state so every offer is visible again")
	update := fs.Bool("update", true, "Recompute visibility from the offer file")

	var opts options
	cfg, logger, cleanup, err := setup(fs, &opts, args, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	m := monitor.New(cfg, logger)
	tracker := m.Tracker()
	switch {
	case *reset:
		if err := tracker.Reset(); err != nil {
			return fmt.Errorf("reset visibility: %w", err)
		}
	case *update:
		tracker.Update(m.Offers())
	}
	report.Visibility(os.Stdout, tracker.Stats())
	return nil
}

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	topN := fs.Int("n", 0, "Number of movers to list")
	window := fs.Duration("window", 0, "Look-back window for price movers")

	var opts options
	cfg, logger, cleanup, err := setup(fs, &opts, args, func(cfg *config.Config) {
		if *topN > 0 {
			cfg.TopN = *topN
		}
		if *window > 0 {
			cfg.DeltaWindow = *window
		}
	})
	if err != nil {
		return err
	}
	defer cleanup()

	m := monitor.New(cfg, logger)
	report.Summary(os.Stdout, alerts.Summarize(m.Alerts(), cfg.TopN))

	drops, rises := m.Movers(cfg.TopN)
	report.Deltas(os.Stdout, fmt.Sprintf("Largest drops, last %s", cfg.DeltaWindow), drops)
	report.Deltas(os.Stdout, fmt.Sprintf("Largest increases, last %s", cfg.DeltaWindow), rises)
	report.Visibility(os.Stdout, m.Tracker().Stats())
	return nil
}

func runCycle(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)

	var opts options
	cfg, logger, cleanup, err := setup(fs, &opts, args, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	return monitor.New(cfg, logger).Cycle(ctx)
}

func runDaemon(args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	schedule := fs.String("schedule", "", "Cron expression for cycles")
	interval := fs.Duration("interval", 0, "Fixed interval between cycles, used when no cron expression is set")
	metricsAddr := fs.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")

	var opts options
	cfg, logger, cleanup, err := setup(fs, &opts, args, func(cfg *config.Config) {
		if *schedule != "" {
			cfg.Schedule = *schedule
		}
		if *interval > 0 {
			cfg.Interval = *interval
		}
		if *metricsAddr != "" {
			cfg.MetricsAddr = *metricsAddr
		}
	})
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	m := monitor.New(cfg, logger)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(m.Gatherers(), promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		logger.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	sched := scheduler.New(cfg.Schedule, cfg.Interval, m.Cycle, logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	sched.RunOnce(ctx)

	<-ctx.Done()
	sched.Stop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
	logger.Info("daemon stopped", slog.Int64("runs", sched.Runs()), slog.Int64("skipped", sched.Skipped()))
	return nil
}

func printSummary(result *models.ScraperResult, dataFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	duration := result.EndTime.Sub(result.StartTime)
	fmt.Printf("  Offers:        %d\n", result.TotalCount)
	fmt.Printf("  Pages:         %d\n", result.PageCount)
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	fmt.Printf("  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Data file:     %s\n", dataFile)
	fmt.Println(separator)
}
