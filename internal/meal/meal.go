package meal

import (
	"fmt"
	"time"

	"scantrack/internal/lookup"
)

// Type identifies which meal of the day an entry belongs to.
type Type string

const (
	Breakfast Type = "breakfast"
	Lunch     Type = "lunch"
	Dinner    Type = "dinner"
	Snack     Type = "snack"
)

// ParseType validates a meal type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case Breakfast, Lunch, Dinner, Snack:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown meal type %q (want breakfast, lunch, dinner or snack)", s)
}

// Entry is one logged food within a meal. Nutrition is the total for the
// logged amount, already scaled by servings.
type Entry struct {
	ID         int64
	Barcode    string
	Name       string
	Brand      string
	Servings   float64
	Nutrition  lookup.Nutrition
	Source     lookup.Source
	Confidence int
	CreatedAt  time.Time
}

// Meal groups the entries logged for one meal type on one day.
type Meal struct {
	ID       string
	Type     Type
	LoggedOn string // YYYY-MM-DD
	Entries  []Entry
}

// Goals are the daily nutrition targets.
type Goals struct {
	Calories float64
	Carbs    float64
	Fat      float64
	Protein  float64
	Fiber    float64
}

// DayTotals aggregates everything logged on one day.
type DayTotals struct {
	Date     string
	Meals    []Meal
	Totals   lookup.Nutrition
	Goals    *Goals
	Progress *Progress
}

// Progress is the fraction of each daily goal consumed, in percent.
type Progress struct {
	Calories float64
	Carbs    float64
	Fat      float64
	Protein  float64
	Fiber    float64
}

// ScaleNutrition converts per-100g nutrition to the total for the given
// number of servings, where one serving is 100g.
func ScaleNutrition(per100g lookup.Nutrition, servings float64) lookup.Nutrition {
	return lookup.Nutrition{
		Calories: per100g.Calories * servings,
		Carbs:    per100g.Carbs * servings,
		Fat:      per100g.Fat * servings,
		Protein:  per100g.Protein * servings,
		Fiber:    per100g.Fiber * servings,
	}
}

// NewEntry builds a meal entry from a looked-up product and a serving
// count. Nutrition is scaled before it reaches storage so totals are a
// plain sum over entries.
func NewEntry(p lookup.EnhancedProduct, servings float64) (Entry, error) {
	if servings <= 0 {
		return Entry{}, fmt.Errorf("servings must be positive, got %v", servings)
	}
	return Entry{
		Barcode:    p.Barcode,
		Name:       p.Name,
		Brand:      p.Brand,
		Servings:   servings,
		Nutrition:  ScaleNutrition(p.NutritionPer100g, servings),
		Source:     p.Source,
		Confidence: p.Confidence,
	}, nil
}

func progressFor(totals lookup.Nutrition, goals Goals) *Progress {
	pct := func(have, want float64) float64 {
		if want <= 0 {
			return 0
		}
		return have / want * 100
	}
	return &Progress{
		Calories: pct(totals.Calories, goals.Calories),
		Carbs:    pct(totals.Carbs, goals.Carbs),
		Fat:      pct(totals.Fat, goals.Fat),
		Protein:  pct(totals.Protein, goals.Protein),
		Fiber:    pct(totals.Fiber, goals.Fiber),
	}
}
