// Package models defines data structures for the scraper.
package models

import "time"

// LinkNotFound is stored in Listing.Link when the title element has no href.
const LinkNotFound = "N/A"

// Listing represents one search-result entry extracted from a results page.
// A zero Price means no price element was found for the entry.
type Listing struct {
	Title string  `csv:"title" json:"title"`
	Price float64 `csv:"price" json:"price"`
	Link  string  `csv:"link" json:"link"`
}

// ScraperResult holds the overall result of a scraping run.
type ScraperResult struct {
	RunID        string
	URL          string
	Listings     []Listing
	StartTime    time.Time
	EndTime      time.Time
	NodeCount    int
	SkippedCount int
	ErrorCount   int
	ErrorsByType map[string]int
}

// Duration reports how long the run took.
func (r *ScraperResult) Duration() time.Duration {
	if r == nil || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
