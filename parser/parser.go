package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-listings/models"
)

// missingPrice is the raw price text used when no fraction element was found.
const missingPrice = "0"

// ErrMalformedPrice is returned when price text cannot be read as a number.
var ErrMalformedPrice = errors.New("malformed price")

// ValidateListing ensures the extractor produced the required fields. The link
// is taken verbatim from the title element, so an empty href is kept.
func ValidateListing(l *models.Listing) error {
	if l == nil {
		return fmt.Errorf("listing is nil")
	}
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("listing missing title")
	}
	if math.IsNaN(l.Price) || math.IsInf(l.Price, 0) {
		return fmt.Errorf("listing has non-finite price for %s", l.Title)
	}
	return nil
}

// NormalizePrice converts a price fraction written with "." as the thousands
// separator and "," as the decimal separator into a number. The raw value "0"
// marks a missing price and always yields zero.
func NormalizePrice(raw string) (float64, error) {
	if raw == missingPrice {
		return 0, nil
	}

	cleaned := strings.ReplaceAll(raw, ".", "")
	cleaned = strings.Replace(cleaned, ",", ".", 1)

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPrice, raw)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPrice, raw)
	}
	return value, nil
}
