// Package pipeline validates, orders and writes extracted listings.
package pipeline

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aluiziolira/go-scrape-listings/models"
	"github.com/aluiziolira/go-scrape-listings/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called a second time.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrNoListings is returned when nothing survived validation.
	ErrNoListings = errors.New("pipeline: no listings to write")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(listings []models.Listing) error
	Close() error
	Validate() error
}

// Pipeline writes one run's listings, sorted by price, through an
// OutputWriter. Output is rebuilt from scratch on every run, so a pipeline
// accepts a single batch.
type Pipeline struct {
	writer  OutputWriter
	logger  *slog.Logger
	metrics metrics

	mu     sync.Mutex // guards closed
	closed bool
}

// NewPipeline builds a pipeline over writer. A nil logger falls back to
// slog.Default.
func NewPipeline(writer OutputWriter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		writer:  writer,
		logger:  logger.With(slog.String("component", "pipeline")),
		metrics: newMetrics(),
	}
}

// Process validates listings, sorts them by ascending price and writes them.
// Listings with equal prices keep their extraction order.
func (p *Pipeline) Process(listings []models.Listing) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPipelineClosed
	}
	p.closed = true
	p.mu.Unlock()

	valid := make([]models.Listing, 0, len(listings))
	for i := range listings {
		if err := parser.ValidateListing(&listings[i]); err != nil {
			p.metrics.addValidation("invalid_record")
			p.logger.Warn("dropping invalid listing", slog.Int("index", i), slog.Any("error", err))
			continue
		}
		valid = append(valid, listings[i])
	}
	if len(valid) == 0 {
		return ErrNoListings
	}

	sorted := SortByPrice(valid)
	if err := p.writer.Write(sorted); err != nil {
		return fmt.Errorf("write listings: %w", err)
	}
	p.metrics.addProcessed(len(sorted))

	p.logger.Info("listings written",
		slog.Int("written", len(sorted)),
		slog.Float64("min_price", sorted[0].Price),
		slog.Float64("max_price", sorted[len(sorted)-1].Price),
	)
	return nil
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// SortByPrice returns a copy of listings in non-decreasing price order.
// The sort is stable.
func SortByPrice(listings []models.Listing) []models.Listing {
	sorted := slices.Clone(listings)
	slices.SortStableFunc(sorted, func(a, b models.Listing) int {
		return cmp.Compare(a.Price, b.Price)
	})
	return sorted
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

func (m *metrics) addProcessed(n int) {
	m.mu.Lock()
	m.processed += int64(n)
	m.mu.Unlock()
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
		"processed_listings": m.processed,
		"validation_errors":  copyValidation,
	}
}
