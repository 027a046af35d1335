// Package scraper crawls travel search result pages and feeds the offers it
// finds into the ingest pipeline.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-travel-monitor/config"
	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/aluiziolira/go-travel-monitor/parser"
	"github.com/aluiziolira/go-travel-monitor/pipeline"
	"github.com/gocolly/colly/v2"
)

// Scraper wraps the colly collector and retry logic for the search site.
type Scraper struct {
	cfg       *config.Config
	collector *colly.Collector
	retry     *retryManager
	logger    *slog.Logger
	Metrics   *Metrics

	requestCount int64
	pageCount    int64
	errorCount   int64
	skipped      int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int

	handlersOnce sync.Once
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	return NewScraperWithMetrics(cfg, NewMetrics())
}

// NewScraperWithMetrics is NewScraper reporting into existing collectors, so
// that scrapers created per cycle share one registry.
func NewScraperWithMetrics(cfg *config.Config, metrics *Metrics) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if strings.TrimSpace(cfg.Selectors.Offer) == "" {
		return nil, fmt.Errorf("offer selector must not be empty")
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	s := &Scraper{
		cfg:          cfg,
		collector:    collector,
		logger:       slog.Default(),
		errorsByType: make(map[string]int),
		Metrics:      metrics,
	}
	s.retry = newRetryManager(collector, cfg, s.Metrics)
	return s, nil
}

// SetTransport replaces the HTTP transport used by the collector.
func (s *Scraper) SetTransport(rt http.RoundTripper) {
	if rt != nil {
		s.collector.WithTransport(rt)
	}
}

// SetLogger replaces the default logger.
func (s *Scraper) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Run crawls from the configured search URL and streams offers through the
// pipeline.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.retry.SetContext(ctx)
	s.configureHandlers(ctx, p)

	start := time.Now()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.retry.Stop()
		case <-done:
		}
	}()

	if err := s.collector.Visit(s.cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("initial visit: %w", err)
	}

	for {
		s.collector.Wait()
		if !s.retry.Wait(ctx) {
			break
		}
	}
	s.retry.Stop()

	result := &models.ScraperResult{
		StartTime:    start,
		EndTime:      time.Now(),
		TotalCount:   int(p.Processed()),
		ErrorCount:   int(atomic.LoadInt64(&s.errorCount)),
		FailedURLs:   s.snapshotFailedURLs(),
		ErrorsByType: s.snapshotErrors(),
		RetryCount:   s.retry.TotalRetries(),
		RequestCount: int(atomic.LoadInt64(&s.requestCount)),
		PageCount:    int(atomic.LoadInt64(&s.pageCount)),
	}
	if skipped := atomic.LoadInt64(&s.skipped); skipped > 0 {
		s.logger.Warn("offers skipped during extraction", slog.Int64("skipped", skipped))
	}
	return result, nil
}

func (s *Scraper) configureHandlers(ctx context.Context, p *pipeline.Pipeline) {
	s.handlersOnce.Do(func() {
		s.collector.OnRequest(func(r *colly.Request) {
			if ctx.Err() != nil {
				r.Abort()
				return
			}
			r.Ctx.Put("start", time.Now())
			current := atomic.AddInt64(&s.requestCount, 1)
			s.Metrics.IncRequest("started")
			s.logger.Debug("requesting search page",
				slog.Int64("requests", current),
				slog.String("url", r.URL.String()),
			)
		})

		s.collector.OnResponse(func(r *colly.Response) {
			atomic.AddInt64(&s.pageCount, 1)
			s.Metrics.IncRequest("completed")
			if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
				s.Metrics.ObserveDuration(time.Since(start))
			}
		})

		s.collector.OnError(func(r *colly.Response, err error) {
			atomic.AddInt64(&s.errorCount, 1)
			statusCode := 0
			if r != nil {
				statusCode = r.StatusCode
			}
			classified := classifyError(err, statusCode)
			category := errorTypeLabel(classified)

			s.mu.Lock()
			s.errorsByType[category]++
			s.mu.Unlock()

			pageURL := ""
			if r != nil && r.Request != nil && r.Request.URL != nil {
				pageURL = r.Request.URL.String()
			}
			s.logger.Error("request error",
				slog.String("url", pageURL),
				slog.String("category", category),
				slog.Any("error", err),
			)
			s.Metrics.IncError(category)

			var reqErr *RequestError
			retryable := !errors.As(classified, &reqErr) || reqErr.Retryable()
			if !retryable || !s.retry.Schedule(pageURL) {
				s.mu.Lock()
				s.failedURLs = append(s.failedURLs, pageURL)
				s.mu.Unlock()
			}
		})

		s.collector.OnHTML(s.cfg.Selectors.Offer, func(e *colly.HTMLElement) {
			offer, err := extractOffer(e, s.cfg.Selectors, time.Now())
			if err != nil {
				atomic.AddInt64(&s.skipped, 1)
				s.logger.Debug("skipping offer card", slog.String("url", e.Request.URL.String()), slog.Any("error", err))
				return
			}
			s.Metrics.IncItems()
			if err := p.Process(offer); err != nil && !errors.Is(err, pipeline.ErrPipelineClosed) {
				s.logger.Error("pipeline process error", slog.Any("error", err))
			}
		})

		if s.cfg.Selectors.NextPage != "" {
			s.collector.OnHTML(s.cfg.Selectors.NextPage, func(e *colly.HTMLElement) {
				if atomic.LoadInt64(&s.pageCount) >= int64(s.cfg.MaxPages) {
					return
				}
				if ctx.Err() != nil {
					return
				}
				link := e.Attr("href")
				if link == "" {
					return
				}
				abs := e.Request.AbsoluteURL(link)
				if err := s.collector.Visit(abs); err != nil && !errors.Is(err, colly.ErrAlreadyVisited) {
					s.logger.Debug("next page visit failed", slog.String("url", abs), slog.Any("error", err))
				}
			})
		}
	})
}

// extractOffer reads one result card. Each field takes the first selector
// that yields a non-empty value.
func extractOffer(e *colly.HTMLElement, sel config.Selectors, scrapedAt time.Time) (*models.Offer, error) {
	name := parser.Truncate(firstText(e.DOM, sel.HotelName), parser.MaxHotelNameLen)
	if name == "" {
		return nil, errors.New("no hotel name")
	}
	priceText := firstText(e.DOM, sel.Price)
	price, err := parser.ParsePrice(priceText)
	if err != nil {
		return nil, err
	}

	searchURL := e.Request.URL.String()
	offer := &models.Offer{
		HotelName:   name,
		Price:       price,
		Dates:       parser.Truncate(firstText(e.DOM, sel.Dates), parser.MaxDatesLen),
		Duration:    parser.Truncate(firstText(e.DOM, sel.Duration), parser.MaxDurationLen),
		Rating:      parser.Truncate(firstText(e.DOM, sel.Rating), parser.MaxRatingLen),
		ScrapedAt:   scrapedAt,
		URL:         searchURL,
		FromAirport: parser.AirportFromURL(searchURL),
	}
	if href := firstAttr(e.DOM, sel.Link, "href"); href != "" {
		offer.OfferURL = e.Request.AbsoluteURL(href)
	}
	if src := firstAttr(e.DOM, sel.Image, "src", "data-src"); src != "" {
		offer.ImageURL = e.Request.AbsoluteURL(src)
	}
	return offer, nil
}

func firstText(card *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		if text := parser.CleanText(card.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstAttr(card *goquery.Selection, selectors []string, attrs ...string) string {
	for _, s := range selectors {
		found := card.Find(s)
		if found.Length() == 0 && card.Is(s) {
			found = card
		}
		node := found.First()
		for _, attr := range attrs {
			if v, ok := node.Attr(attr); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

func (s *Scraper) snapshotFailedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedURLs))
	copy(out, s.failedURLs)
	return out
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &RequestError{Kind: KindTimeout, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &RequestError{Kind: KindConnection, Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return &RequestError{Kind: KindForbidden, Status: statusCode, Err: wrapped}
		case statusCode == http.StatusNotFound:
			return &RequestError{Kind: KindNotFound, Status: statusCode, Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return &RequestError{Kind: KindRateLimited, Status: statusCode, Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return &RequestError{Kind: KindServer, Status: statusCode, Err: wrapped}
		}
	}
	return err
}
