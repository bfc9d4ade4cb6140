package meal

import (
	"testing"

	"scantrack/internal/lookup"
)

func TestParseType(t *testing.T) {
	for _, valid := range []string{"breakfast", "lunch", "dinner", "snack"} {
		if _, err := ParseType(valid); err != nil {
			t.Errorf("ParseType(%q) failed: %v", valid, err)
		}
	}
	if _, err := ParseType("brunch"); err == nil {
		t.Error("expected an error for unknown meal type")
	}
}

func TestScaleNutrition(t *testing.T) {
	per100g := lookup.Nutrition{
		Calories: 100,
		Carbs:    20,
		Fat:      5,
		Protein:  8,
		Fiber:    3,
	}

	got := ScaleNutrition(per100g, 2.5)

	want := lookup.Nutrition{
		Calories: 250,
		Carbs:    50,
		Fat:      12.5,
		Protein:  20,
		Fiber:    7.5,
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestScaleNutritionIdentity(t *testing.T) {
	per100g := lookup.Nutrition{Calories: 42, Carbs: 10.6}
	if got := ScaleNutrition(per100g, 1); got != per100g {
		t.Errorf("one serving must be the per-100g values, got %+v", got)
	}
}

func TestNewEntryScalesBeforeStorage(t *testing.T) {
	p := lookup.EnhancedProduct{
		ProductData: lookup.ProductData{
			Name:             "Granola",
			Barcode:          "4006381333931",
			NutritionPer100g: lookup.Nutrition{Calories: 100, Carbs: 20, Fat: 5, Protein: 8, Fiber: 3},
		},
		Confidence: 95,
		Source:     lookup.SourceBarcode,
	}

	e, err := NewEntry(p, 2.5)
	if err != nil {
		t.Fatalf("NewEntry failed: %v", err)
	}

	if e.Nutrition.Calories != 250 {
		t.Errorf("expected scaled calories 250, got %v", e.Nutrition.Calories)
	}
	if e.Servings != 2.5 {
		t.Errorf("expected servings 2.5, got %v", e.Servings)
	}
	if e.Confidence != 95 || e.Source != lookup.SourceBarcode {
		t.Errorf("provenance must carry over, got %+v", e)
	}
}

func TestNewEntryRejectsNonPositiveServings(t *testing.T) {
	p := lookup.EnhancedProduct{ProductData: lookup.ProductData{Name: "Granola"}}
	for _, servings := range []float64{0, -1} {
		if _, err := NewEntry(p, servings); err == nil {
			t.Errorf("expected an error for %v servings", servings)
		}
	}
}

func TestProgressFor(t *testing.T) {
	totals := lookup.Nutrition{Calories: 1000, Carbs: 125, Fat: 30, Protein: 50, Fiber: 10}
	goals := Goals{Calories: 2000, Carbs: 250, Fat: 60, Protein: 100, Fiber: 40}

	p := progressFor(totals, goals)

	if p.Calories != 50 || p.Carbs != 50 || p.Fat != 50 || p.Protein != 50 {
		t.Errorf("expected 50%% progress, got %+v", p)
	}
	if p.Fiber != 25 {
		t.Errorf("expected 25%% fiber progress, got %v", p.Fiber)
	}
}

func TestProgressForZeroGoal(t *testing.T) {
	p := progressFor(lookup.Nutrition{Calories: 500}, Goals{})
	if p.Calories != 0 {
		t.Errorf("a zero goal must not divide, got %v", p.Calories)
	}
}
