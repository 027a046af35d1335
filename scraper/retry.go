package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-travel-monitor/config"
	"github.com/gocolly/colly/v2"
)

// retryManager re-visits failed pages with capped exponential backoff.
type retryManager struct {
	collector *colly.Collector
	cfg       *config.Config
	metrics   *Metrics
	ctx       context.Context

	mu           sync.Mutex
	attempts     map[string]int
	timers       map[string]*time.Timer
	totalRetries int
	stopped      bool
	fired        chan struct{}
}

func newRetryManager(collector *colly.Collector, cfg *config.Config, metrics *Metrics) *retryManager {
	return &retryManager{
		collector: collector,
		cfg:       cfg,
		attempts:  make(map[string]int),
		timers:    make(map[string]*time.Timer),
		metrics:   metrics,
		ctx:       context.Background(),
		fired:     make(chan struct{}, 1),
	}
}

// Schedule queues another visit of pageURL unless its retry budget is spent.
func (rm *retryManager) Schedule(pageURL string) bool {
	if rm.cfg.MaxRetries <= 0 || pageURL == "" {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped || rm.ctx.Err() != nil {
		return false
	}

	attempt := rm.attempts[pageURL]
	if attempt >= rm.cfg.MaxRetries {
		return false
	}

	attempt++
	rm.attempts[pageURL] = attempt
	rm.totalRetries++
	rm.metrics.IncRetries()

	delay := rm.backoff(attempt)
	rm.resetTimerLocked(pageURL)
	rm.timers[pageURL] = time.AfterFunc(delay, func() {
		rm.fireRetry(pageURL)
	})
	return true
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rm.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (rm *retryManager) resetTimerLocked(pageURL string) {
	if timer, ok := rm.timers[pageURL]; ok {
		timer.Stop()
		delete(rm.timers, pageURL)
	}
}

func (rm *retryManager) fireRetry(pageURL string) {
	rm.mu.Lock()
	if rm.stopped {
		rm.mu.Unlock()
		return
	}
	ctx := rm.ctx
	rm.mu.Unlock()

	if ctx.Err() == nil {
		if err := rm.collector.Visit(pageURL); err != nil {
			slog.Debug("retry visit failed", slog.String("url", pageURL), slog.Any("error", err))
		}
	}

	select {
	case rm.fired <- struct{}{}:
	default:
	}

	rm.mu.Lock()
	delete(rm.timers, pageURL)
	rm.mu.Unlock()
}

// Wait blocks until a pending retry has fired and reports whether one did.
// A fired retry has already been handed to the collector, so the caller
// should wait on the collector again.
func (rm *retryManager) Wait(ctx context.Context) bool {
	for {
		rm.mu.Lock()
		pending := len(rm.timers)
		stopped := rm.stopped
		rm.mu.Unlock()

		select {
		case <-rm.fired:
			return true
		default:
		}
		if pending == 0 || stopped {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-rm.fired:
			return true
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Stop cancels every pending retry.
func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return
	}

	rm.stopped = true
	for pageURL, timer := range rm.timers {
		timer.Stop()
		delete(rm.timers, pageURL)
	}
}

// TotalRetries returns the number of retries scheduled so far.
func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}

// SetContext bounds future retries by ctx.
func (rm *retryManager) SetContext(ctx context.Context) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if ctx == nil {
		rm.ctx = context.Background()
		return
	}
	rm.ctx = ctx
}
