package lookup

import (
	"math"

	"scantrack/internal/config"
)

// Scorer derives quality and confidence from product data using the
// configured weights. Assess is pure: identical input always yields an
// identical result.
type Scorer struct {
	cfg config.QualityConfig
}

// NewScorer creates a Scorer with the given weights.
func NewScorer(cfg config.QualityConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Assess scores a product record: name and brand presence, completeness
// of the five nutrition fields, image presence, verified flag.
func (s *Scorer) Assess(p ProductData) Quality {
	q := Quality{Issues: []string{}, Strengths: []string{}}

	if p.Name != "" {
		q.Score += s.cfg.NamePoints
		q.Strengths = append(q.Strengths, "product name present")
	} else {
		q.Issues = append(q.Issues, "missing product name")
	}

	if p.Brand != "" {
		q.Score += s.cfg.BrandPoints
		q.Strengths = append(q.Strengths, "brand present")
	} else {
		q.Issues = append(q.Issues, "missing brand")
	}

	// Nutrition points scale with the fraction of nonzero fields.
	n := p.NutritionPer100g
	fields := []float64{n.Calories, n.Carbs, n.Fat, n.Protein, n.Fiber}
	present := 0
	for _, v := range fields {
		if v != 0 {
			present++
		}
	}
	q.Score += int(math.Round(float64(s.cfg.NutritionPoints) * float64(present) / float64(len(fields))))
	switch present {
	case len(fields):
		q.Strengths = append(q.Strengths, "complete nutrition data")
	case 0:
		q.Issues = append(q.Issues, "no nutrition data")
	default:
		q.Issues = append(q.Issues, "incomplete nutrition data")
	}

	if p.ImageURL != "" {
		q.Score += s.cfg.ImagePoints
		q.Strengths = append(q.Strengths, "product image present")
	} else {
		q.Issues = append(q.Issues, "missing product image")
	}

	if p.Verified {
		q.Score += s.cfg.VerifiedPoints
		q.Strengths = append(q.Strengths, "verified entry")
	} else {
		q.Issues = append(q.Issues, "unverified entry")
	}

	switch {
	case q.Score >= s.cfg.HighThreshold:
		q.Level = QualityHigh
	case q.Score >= s.cfg.MediumThreshold:
		q.Level = QualityMedium
	default:
		q.Level = QualityLow
	}
	return q
}

// Confidence scales a quality score by the source reliability factor:
// barcode lookups are exact-match, search results carry ambiguity risk.
func (s *Scorer) Confidence(q Quality, source Source) int {
	factor := s.cfg.BarcodeConfidenceFactor
	if source == SourceSearch {
		factor = s.cfg.SearchConfidenceFactor
	}
	return int(math.Round(float64(q.Score) * factor))
}
