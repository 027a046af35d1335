// Package pipeline validates scraped offers and appends them to the offer store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-travel-monitor/config"
	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/aluiziolira/go-travel-monitor/parser"
	"github.com/aluiziolira/go-travel-monitor/store"
	"github.com/aluiziolira/go-travel-monitor/visibility"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for workers.
var drainTimeout = 30 * time.Second

// OutputWriter receives validated offers in batches.
type OutputWriter interface {
	Write(offers []*models.Offer) error
	Close() error
	Validate() error
}

// Pipeline validates, normalises and de-duplicates scraped offers before
// handing them to the writer. Duplicates are detected within one scrape
// only; the same offer seen in a later scrape is a new observation.
type Pipeline struct {
	writer    OutputWriter
	offerCh   chan *models.Offer
	batchSize int
	images    *store.ImageMap
	logger    *slog.Logger

	wg sync.WaitGroup

	seen *lru.Cache[string, struct{}]

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline sized from cfg. Cancelling ctx stops
// accepting new offers; queued ones are still written by Close.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	bufferSize := cfg.PipelineBufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	dedupeSize := cfg.DedupeMaxSize
	if dedupeSize <= 0 {
		dedupeSize = 10000
	}
	seen, err := lru.New[string, struct{}](dedupeSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}

	p := &Pipeline{
		writer:    writer,
		offerCh:   make(chan *models.Offer, bufferSize),
		batchSize: batchSize,
		logger:    slog.Default(),
		seen:      seen,
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
			p.signalShutdown()
		case <-p.shutdown:
		}
	}()
	return p
}

// SetImageMap makes the pipeline record the first image URL seen per hotel.
func (p *Pipeline) SetImageMap(images *store.ImageMap) {
	p.images = images
}

// SetLogger replaces the default logger.
func (p *Pipeline) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues offers for downstream processing.
func (p *Pipeline) Process(offers ...*models.Offer) error {
	if len(offers) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, offer := range offers {
		if offer == nil {
			continue
		}
		if err := p.enqueue(offer); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting offers and waits up to drainTimeout for the workers
// to write what is queued.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.offerCh)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		return fmt.Errorf("%w after %s", ErrPipelineCloseTimeout, drainTimeout)
	}
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// Processed returns the number of offers accepted so far.
func (p *Pipeline) Processed() int64 {
	return p.metrics.processedCount()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				processed := metrics["processed_offers"].(int64)
				validation := metrics["validation_errors"].(map[string]int)
				p.logger.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Any("validation_errors", validation),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.Offer, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for offer := range p.offerCh {
		prepared := p.prepare(offer)
		if prepared == nil {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) prepare(offer *models.Offer) *models.Offer {
	offer.HotelName = parser.Truncate(parser.CleanText(offer.HotelName), parser.MaxHotelNameLen)
	offer.Dates = parser.Truncate(parser.CleanText(offer.Dates), parser.MaxDatesLen)
	offer.Duration = parser.Truncate(parser.CleanText(offer.Duration), parser.MaxDurationLen)
	offer.Rating = parser.Truncate(parser.CleanText(offer.Rating), parser.MaxRatingLen)
	if offer.FromAirport == "" {
		offer.FromAirport = parser.AirportFromURL(offer.URL)
	}

	if err := parser.ValidateOffer(offer); err != nil {
		p.metrics.addValidation("invalid_record")
		p.logger.Debug("dropping offer", slog.String("hotel", offer.HotelName), slog.Any("error", err))
		return nil
	}

	if found, _ := p.seen.ContainsOrAdd(visibility.OfferKey(*offer), struct{}{}); found {
		p.metrics.addValidation("duplicate_offer")
		return nil
	}

	if p.images != nil && offer.ImageURL != "" {
		p.images.Observe(offer.HotelName, offer.ImageURL)
	}

	p.metrics.incrementProcessed()
	return offer
}

func (p *Pipeline) enqueue(offer *models.Offer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.offerCh <- offer:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) processedCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_offers":  m.processed,
		"validation_errors": copyValidation,
	}
}
