// Package lookup turns a validated barcode into quality-scored, cached
// product data with resilient retry over an external product database.
package lookup

import (
	"fmt"
	"strings"
)

// Nutrition holds macro values per 100g of product.
type Nutrition struct {
	Calories float64 `json:"calories"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Protein  float64 `json:"protein"`
	Fiber    float64 `json:"fiber"`
}

// ProductData is a product record as returned by the external database.
// Immutable once returned from a lookup.
type ProductData struct {
	Name             string    `json:"name"`
	Brand            string    `json:"brand,omitempty"`
	Barcode          string    `json:"barcode"`
	NutritionPer100g Nutrition `json:"nutritionPer100g"`
	ImageURL         string    `json:"imageUrl,omitempty"`
	Verified         bool      `json:"verified"`
}

// Source identifies how a product record was obtained.
type Source string

const (
	SourceBarcode Source = "barcode"
	SourceSearch  Source = "search"
	SourceManual  Source = "manual"
)

// QualityLevel buckets a quality score.
type QualityLevel string

const (
	QualityLow    QualityLevel = "low"
	QualityMedium QualityLevel = "medium"
	QualityHigh   QualityLevel = "high"
)

// Quality rates how complete and trustworthy a product record is.
// Derived deterministically from ProductData, never persisted.
type Quality struct {
	Score     int          `json:"score"`
	Level     QualityLevel `json:"level"`
	Issues    []string     `json:"issues"`
	Strengths []string     `json:"strengths"`
}

// EnhancedProduct is a product record plus derived quality, confidence,
// and provenance. Constructed once per successful lookup and cached by
// barcode for a bounded TTL.
type EnhancedProduct struct {
	ProductData
	Quality    Quality `json:"quality"`
	Confidence int     `json:"confidence"`
	Cached     bool    `json:"cached"`
	Source     Source  `json:"source"`
}

// FailureKind classifies lookup failures.
type FailureKind int

const (
	FailureInvalidFormat FailureKind = iota
	FailureNotFound
	FailureQualityTooLow
	FailureNetwork
)

// String returns a stable identifier for the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureInvalidFormat:
		return "invalid_format"
	case FailureNotFound:
		return "not_found"
	case FailureQualityTooLow:
		return "quality_too_low"
	default:
		return "network_error"
	}
}

// Failure is a structured lookup failure. Every kind carries recovery
// suggestions tailored to its cause so no failure is a dead end.
type Failure struct {
	Kind        FailureKind
	Message     string
	Suggestions []string
	cause       error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("lookup %s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.cause
}

func invalidFormatFailure(barcode string) *Failure {
	return &Failure{
		Kind:    FailureInvalidFormat,
		Message: fmt.Sprintf("%q is not a valid barcode", barcode),
		Suggestions: []string{
			"rescan the barcode",
			"check the printed digits and enter them manually",
			"search for the product by name",
		},
	}
}

func notFoundFailure(barcode string) *Failure {
	return &Failure{
		Kind:    FailureNotFound,
		Message: fmt.Sprintf("no product found for barcode %s", barcode),
		Suggestions: []string{
			"search for the product by name",
			"enter nutrition facts manually",
			"try scanning another barcode on the package",
		},
	}
}

func qualityTooLowFailure(barcode string, score int) *Failure {
	return &Failure{
		Kind:    FailureQualityTooLow,
		Message: fmt.Sprintf("product data for %s is too incomplete (score %d)", barcode, score),
		Suggestions: []string{
			"verify values against the printed nutrition label",
			"enter nutrition facts manually",
			"search for a verified entry by name",
		},
	}
}

func networkFailure(barcode string, cause error) *Failure {
	return &Failure{
		Kind:    FailureNetwork,
		Message: fmt.Sprintf("lookup for %s failed after retries", barcode),
		Suggestions: []string{
			"check your internet connection",
			"retry in a moment",
			"enter nutrition facts manually",
		},
		cause: cause,
	}
}

// ValidateBarcode accepts digit strings of EAN/UPC lengths (8, 12, 13).
// Checksum validation is deliberately out of scope: the decode engine has
// already applied symbology checksums.
func ValidateBarcode(barcode string) error {
	switch len(barcode) {
	case 8, 12, 13:
	default:
		return fmt.Errorf("barcode must be 8, 12 or 13 digits, got %d", len(barcode))
	}
	for _, r := range barcode {
		if !strings.ContainsRune("0123456789", r) {
			return fmt.Errorf("barcode must contain only digits")
		}
	}
	return nil
}
