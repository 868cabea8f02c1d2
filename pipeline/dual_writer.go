package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/go-scrape-listings/models"
)

// JSONLinesPath returns the JSON lines file written next to a CSV output:
// "out/listings.csv" becomes "out/listings.jsonl".
func JSONLinesPath(csvFilename string) string {
	ext := filepath.Ext(csvFilename)
	if strings.EqualFold(ext, ".csv") {
		return strings.TrimSuffix(csvFilename, ext) + ".jsonl"
	}
	return csvFilename + ".jsonl"
}

// target is one file a DualWriter fans out to.
type target struct {
	path   string
	writer OutputWriter
}

// DualWriter writes the same sorted listings to a CSV file and to a JSON lines
// file derived from the CSV path.
type DualWriter struct {
	targets []target
}

// NewDualWriter creates the CSV output at csvFilename and its JSON lines
// sibling (see JSONLinesPath).
func NewDualWriter(csvFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("create csv output: %w", err)
	}

	jsonPath := JSONLinesPath(csvFilename)
	jsonWriter, err := NewJSONWriter(jsonPath)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("create json output: %w", err)
	}

	return &DualWriter{
		targets: []target{
			{path: csvFilename, writer: csvWriter},
			{path: jsonPath, writer: jsonWriter},
		},
	}, nil
}

// Paths lists the files written, CSV first.
func (dw *DualWriter) Paths() []string {
	paths := make([]string, 0, len(dw.targets))
	for _, t := range dw.targets {
		paths = append(paths, t.path)
	}
	return paths
}

// Write hands listings to each output in turn and stops at the first failure.
func (dw *DualWriter) Write(listings []models.Listing) error {
	for _, t := range dw.targets {
		if err := t.writer.Write(listings); err != nil {
			return fmt.Errorf("write %s: %w", t.path, err)
		}
	}
	return nil
}

// Close closes every output, reporting all failures.
func (dw *DualWriter) Close() error {
	var errs []error
	for _, t := range dw.targets {
		if err := t.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", t.path, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks every output, reporting all failures.
func (dw *DualWriter) Validate() error {
	var errs []error
	for _, t := range dw.targets {
		if err := t.writer.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("validate %s: %w", t.path, err))
		}
	}
	return errors.Join(errs...)
}
