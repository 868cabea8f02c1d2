package pipeline

import (
	"errors"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-listings/models"
	"github.com/aluiziolira/go-scrape-listings/parser"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]models.Listing
	closed      bool
	writeErr    error
	validateErr error
}

func (mw *mockWriter) Write(listings []models.Listing) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyBatch := make([]models.Listing, len(listings))
	copy(copyBatch, listings)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) written() []models.Listing {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	var all []models.Listing
	for _, batch := range mw.batches {
		all = append(all, batch...)
	}
	return all
}

func listing(title string, price float64) models.Listing {
	return models.Listing{
		Title: title,
		Price: price,
		Link:  "https://articulo.example.test/" + title,
	}
}

func TestSortByPrice(t *testing.T) {
	input := []models.Listing{
		listing("c", 300),
		listing("a", 100),
		listing("b", 200),
		listing("zero", 0),
	}

	got := SortByPrice(input)

	want := []string{"zero", "a", "b", "c"}
	for i, title := range want {
		if got[i].Title != title {
			t.Fatalf("position %d = %q, want %q", i, got[i].Title, title)
		}
	}
	if input[0].Title != "c" {
		t.Fatalf("input was reordered: %+v", input)
	}
}

func TestSortByPriceIsStable(t *testing.T) {
	input := []models.Listing{
		listing("first-500", 500),
		listing("first-100", 100),
		listing("second-500", 500),
		listing("second-100", 100),
		listing("third-500", 500),
	}

	got := SortByPrice(input)

	want := []string{"first-100", "second-100", "first-500", "second-500", "third-500"}
	for i, title := range want {
		if got[i].Title != title {
			t.Fatalf("position %d = %q, want %q", i, got[i].Title, title)
		}
	}
}

func TestSortByPriceEmpty(t *testing.T) {
	if got := SortByPrice(nil); len(got) != 0 {
		t.Fatalf("sorted = %v, want empty", got)
	}
}

func TestPipelineProcessSortsAndWrites(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer, nil)

	err := p.Process([]models.Listing{
		listing("expensive", 1234.5),
		listing("cheap", 999),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	got := writer.written()
	if len(got) != 2 {
		t.Fatalf("written listings = %d, want 2", len(got))
	}
	if got[0].Title != "cheap" || got[1].Title != "expensive" {
		t.Fatalf("unexpected order: %+v", got)
	}

	metrics := p.GetMetrics()
	if processed := metrics["processed_listings"].(int64); processed != 2 {
		t.Fatalf("processed_listings = %d, want 2", processed)
	}
}

func TestPipelineProcessDropsInvalidListings(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer, nil)

	blank := listing("blank", 10)
	blank.Title = "   "
	unnamed := listing("unnamed", 5)
	unnamed.Title = ""

	if err := p.Process([]models.Listing{blank, listing("kept", 20), unnamed}); err != nil {
		t.Fatalf("process: %v", err)
	}

	got := writer.written()
	if len(got) != 1 || got[0].Title != "kept" {
		t.Fatalf("written = %+v, want only the valid listing", got)
	}

	validation := p.GetMetrics()["validation_errors"].(map[string]int)
	if validation["invalid_record"] != 2 {
		t.Fatalf("invalid_record = %d, want 2", validation["invalid_record"])
	}
}

func TestPipelineProcessKeepsEmptyLinks(t *testing.T) {
	extractor := parser.NewExtractor(parser.DefaultSelectors(), nil)
	report, err := extractor.Extract(`<html><body><ol class="ui-search-layout">` +
		`<li class="ui-search-layout__item"><a class="poly-component__title" href="">Item</a>` +
		`<div class="poly-price__current"><span class="andes-money-amount__fraction">10</span></div></li>` +
		`<li class="ui-search-layout__item"><a class="poly-component__title" href="">Otro</a>` +
		`<div class="poly-price__current"><span class="andes-money-amount__fraction">5</span></div></li>` +
		`</ol></body></html>`)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	writer := &mockWriter{}
	p := NewPipeline(writer, nil)
	if err := p.Process(report.Listings); err != nil {
		t.Fatalf("process: %v", err)
	}

	got := writer.written()
	if len(got) != 2 {
		t.Fatalf("written = %+v, want both listings", got)
	}
	if got[0].Title != "Otro" || got[0].Link != "" || got[1].Title != "Item" {
		t.Fatalf("unexpected rows: %+v", got)
	}
	if validation := p.GetMetrics()["validation_errors"].(map[string]int); len(validation) != 0 {
		t.Fatalf("validation_errors = %v, want none", validation)
	}
}

func TestPipelineProcessNoListings(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer, nil)

	if err := p.Process(nil); !errors.Is(err, ErrNoListings) {
		t.Fatalf("process error = %v, want ErrNoListings", err)
	}
	if len(writer.batches) != 0 {
		t.Fatalf("writer received %d batches, want 0", len(writer.batches))
	}
}

func TestPipelineProcessOnlyOnce(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer, nil)

	if err := p.Process([]models.Listing{listing("a", 1)}); err != nil {
		t.Fatalf("first process: %v", err)
	}
	if err := p.Process([]models.Listing{listing("b", 2)}); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("second process error = %v, want ErrPipelineClosed", err)
	}
	if got := writer.written(); len(got) != 1 {
		t.Fatalf("written listings = %d, want 1", len(got))
	}
}

func TestPipelineProcessWriteError(t *testing.T) {
	writeErr := errors.New("disk full")
	p := NewPipeline(&mockWriter{writeErr: writeErr}, nil)

	err := p.Process([]models.Listing{listing("a", 1)})
	if !errors.Is(err, writeErr) {
		t.Fatalf("process error = %v, want wrapped write error", err)
	}
}
