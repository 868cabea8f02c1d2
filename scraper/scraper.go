package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-listings/config"
	"github.com/aluiziolira/go-scrape-listings/models"
	"github.com/aluiziolira/go-scrape-listings/parser"
)

// PageSource returns the fully rendered results page for a URL.
type PageSource interface {
	Name() string
	Fetch(ctx context.Context, url string) (string, error)
}

// NewSource builds the page source selected by cfg.Fetcher.
func NewSource(cfg *config.Config, logger *slog.Logger) (PageSource, error) {
	switch cfg.Fetcher {
	case config.FetcherBrowser:
		return NewBrowserSource(cfg, logger), nil
	case config.FetcherHTTP:
		return NewHTTPSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported fetcher: %s", cfg.Fetcher)
	}
}

// Scraper loads one results page and extracts its listings.
type Scraper struct {
	cfg       *config.Config
	source    PageSource
	extractor *parser.Extractor
	logger    *slog.Logger
	Metrics   *Metrics
}

// NewScraper builds a scraper. When source is nil the one named by
// cfg.Fetcher is used.
func NewScraper(cfg *config.Config, source PageSource, logger *slog.Logger) (*Scraper, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if source == nil {
		var err error
		source, err = NewSource(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("build page source: %w", err)
		}
	}

	return &Scraper{
		cfg:       cfg,
		source:    source,
		extractor: parser.NewExtractor(parser.DefaultSelectors(), logger),
		logger:    logger,
		Metrics:   NewMetrics(),
	}, nil
}

// Run fetches the results page for the configured search term and extracts
// its listings in document order. Any error is fatal to the run.
func (s *Scraper) Run(ctx context.Context) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	target := s.cfg.BuildSearchURL()
	result := &models.ScraperResult{
		RunID:        uuid.NewString(),
		URL:          target,
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
	logger := s.logger.With(slog.String("run_id", result.RunID))
	logger.Info("starting search",
		slog.String("search_term", s.cfg.SearchTerm),
		slog.String("url", target),
		slog.String("source", s.source.Name()),
	)

	started := time.Now()
	html, err := s.source.Fetch(ctx, target)
	s.Metrics.ObserveDuration(s.source.Name(), time.Since(started))
	if err != nil {
		category := errorTypeLabel(err)
		s.Metrics.IncFetch(s.source.Name(), "error")
		s.Metrics.IncError(category)
		logger.Error("results page fetch failed",
			slog.String("category", category),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("fetch results page: %w", err)
	}
	s.Metrics.IncFetch(s.source.Name(), "ok")

	report, err := s.extractor.Extract(html)
	if err != nil {
		s.Metrics.IncError("parse")
		return nil, fmt.Errorf("extract listings: %w", err)
	}

	result.Listings = report.Listings
	result.NodeCount = report.Nodes
	result.SkippedCount = report.Skipped
	result.ErrorCount = len(report.Failures)
	for _, failure := range report.Failures {
		label := itemErrorLabel(failure)
		result.ErrorsByType[label]++
		s.Metrics.IncError(label)
	}
	s.Metrics.SetNodes(report.Nodes)
	s.Metrics.AddItems(len(report.Listings))
	s.Metrics.AddSkipped(report.Skipped)

	result.EndTime = time.Now()
	logger.Info("search complete",
		slog.Int("nodes", result.NodeCount),
		slog.Int("listings", len(result.Listings)),
		slog.Int("skipped", result.SkippedCount),
		slog.Int("errors", result.ErrorCount),
		slog.Duration("duration", result.Duration()),
	)
	return result, nil
}

func itemErrorLabel(err error) string {
	switch {
	case errors.Is(err, parser.ErrMalformedPrice):
		return "malformed_price"
	case errors.Is(err, parser.ErrEmptyTitle):
		return "empty_title"
	default:
		return "item"
	}
}
