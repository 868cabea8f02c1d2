// Package parser turns rendered search-results markup into listings.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-listings/models"
)

// ErrEmptyTitle is returned for a node whose title element has no text.
var ErrEmptyTitle = errors.New("title element has no text")

// NodeError records why a single listing node was dropped.
type NodeError struct {
	Index int
	Err   error
}

func (e NodeError) Error() string {
	return fmt.Sprintf("node %d: %v", e.Index, e.Err)
}

func (e NodeError) Unwrap() error {
	return e.Err
}

// Report is the outcome of one extraction pass.
type Report struct {
	// Listings preserves document order.
	Listings []models.Listing
	Nodes    int
	Skipped  int
	Failures []NodeError
}

// Extractor reads listing nodes out of a results page.
type Extractor struct {
	selectors Selectors
	logger    *slog.Logger
}

// NewExtractor builds an extractor. A nil logger falls back to slog.Default.
func NewExtractor(selectors Selectors, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		selectors: selectors,
		logger:    logger.With(slog.String("component", "extractor")),
	}
}

// Extract parses html and extracts every listing node it contains. Problems
// with individual nodes are recorded in the report and never abort the pass.
func (e *Extractor) Extract(html string) (*Report, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return e.ExtractDocument(doc), nil
}

// ExtractDocument extracts listings from an already parsed document.
func (e *Extractor) ExtractDocument(doc *goquery.Document) *Report {
	nodes := doc.Find(e.selectors.Item)
	report := &Report{
		Listings: make([]models.Listing, 0, nodes.Length()),
		Nodes:    nodes.Length(),
	}
	e.logger.Info("listing nodes found", slog.Int("nodes", report.Nodes))

	nodes.Each(func(i int, node *goquery.Selection) {
		res := e.extractNode(node)
		switch {
		case res.err != nil:
			report.Failures = append(report.Failures, NodeError{Index: i, Err: res.err})
			e.logger.Warn("listing extraction failed",
				slog.Int("index", i),
				slog.Any("error", res.err),
			)
		case res.skipped:
			report.Skipped++
			e.logger.Debug("listing node without title skipped", slog.Int("index", i))
		default:
			report.Listings = append(report.Listings, res.listing)
		}
	})

	return report
}

type nodeResult struct {
	listing models.Listing
	skipped bool
	err     error
}

func (e *Extractor) extractNode(node *goquery.Selection) (res nodeResult) {
	defer func() {
		if r := recover(); r != nil {
			res = nodeResult{err: fmt.Errorf("panic while extracting: %v", r)}
		}
	}()

	titleTag, _ := e.resolveTitle(node)
	if titleTag == nil {
		return nodeResult{skipped: true}
	}

	title := strings.TrimSpace(titleTag.Text())
	if title == "" {
		return nodeResult{err: ErrEmptyTitle}
	}

	link, ok := titleTag.Attr("href")
	if !ok {
		link = models.LinkNotFound
	}

	raw, _ := e.resolvePrice(node)
	price, err := NormalizePrice(raw)
	if err != nil {
		return nodeResult{err: fmt.Errorf("listing %q: %w", title, err)}
	}

	return nodeResult{
		listing: models.Listing{
			Title: title,
			Price: price,
			Link:  link,
		},
	}
}

// resolveTitle returns the first title element found, trying layouts in order.
func (e *Extractor) resolveTitle(node *goquery.Selection) (*goquery.Selection, Layout) {
	for _, candidate := range e.selectors.Title {
		if tag := node.Find(candidate.Selector).First(); tag.Length() > 0 {
			return tag, candidate.Layout
		}
	}
	return nil, LayoutNone
}

// resolvePrice returns the raw price fraction text. A layout whose container
// is present decides the outcome even when it holds no fraction.
func (e *Extractor) resolvePrice(node *goquery.Selection) (string, Layout) {
	for _, candidate := range e.selectors.Price {
		scope := node
		if candidate.Container != "" {
			scope = node.Find(candidate.Container).First()
			if scope.Length() == 0 {
				continue
			}
		}
		if fraction := scope.Find(candidate.Fraction).First(); fraction.Length() > 0 {
			return strings.TrimSpace(fraction.Text()), candidate.Layout
		}
		return missingPrice, candidate.Layout
	}
	return missingPrice, LayoutNone
}
