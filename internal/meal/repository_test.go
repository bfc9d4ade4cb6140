package meal

import (
	"context"
	"path/filepath"
	"testing"

	"scantrack/internal/database"
	"scantrack/internal/lookup"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.SQL)
}

func granolaEntry(t *testing.T, servings float64) Entry {
	t.Helper()
	e, err := NewEntry(lookup.EnhancedProduct{
		ProductData: lookup.ProductData{
			Name:             "Crunchy Granola",
			Brand:            "Oatly",
			Barcode:          "4006381333931",
			NutritionPer100g: lookup.Nutrition{Calories: 100, Carbs: 20, Fat: 5, Protein: 8, Fiber: 3},
		},
		Confidence: 95,
		Source:     lookup.SourceBarcode,
	}, servings)
	if err != nil {
		t.Fatalf("NewEntry failed: %v", err)
	}
	return e
}

func TestAddFoodCreatesMealOnFirstUse(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	res := repo.AddFood(ctx, "2025-06-01", Breakfast, granolaEntry(t, 1))
	if !res.Success {
		t.Fatalf("AddFood failed: %s", res.Error)
	}
	if res.MealID == "" || res.EntryID == 0 {
		t.Errorf("expected identifiers in result, got %+v", res)
	}

	// Same meal, second entry: the meal row is reused.
	again := repo.AddFood(ctx, "2025-06-01", Breakfast, granolaEntry(t, 2))
	if !again.Success {
		t.Fatalf("second AddFood failed: %s", again.Error)
	}
	if again.MealID != res.MealID {
		t.Errorf("expected the same meal id, got %s and %s", res.MealID, again.MealID)
	}

	day, err := repo.Day(ctx, "2025-06-01")
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}
	if len(day.Meals) != 1 {
		t.Fatalf("expected 1 meal, got %d", len(day.Meals))
	}
	if len(day.Meals[0].Entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(day.Meals[0].Entries))
	}
}

func TestAddFoodReportsFailuresInBand(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		date  string
		entry Entry
	}{
		{"invalid date", "June 1st", granolaEntry(t, 1)},
		{"empty name", "2025-06-01", Entry{Servings: 1}},
		{"zero servings", "2025-06-01", Entry{Name: "Granola"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := repo.AddFood(ctx, tt.date, Lunch, tt.entry)
			if res.Success {
				t.Error("expected failure")
			}
			if res.Error == "" {
				t.Error("expected an in-band error message")
			}
		})
	}
}

func TestDayTotalsAcrossMeals(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if res := repo.AddFood(ctx, "2025-06-01", Breakfast, granolaEntry(t, 1)); !res.Success {
		t.Fatalf("AddFood failed: %s", res.Error)
	}
	if res := repo.AddFood(ctx, "2025-06-01", Dinner, granolaEntry(t, 2.5)); !res.Success {
		t.Fatalf("AddFood failed: %s", res.Error)
	}
	// Another day must not bleed into the totals.
	if res := repo.AddFood(ctx, "2025-06-02", Breakfast, granolaEntry(t, 10)); !res.Success {
		t.Fatalf("AddFood failed: %s", res.Error)
	}

	day, err := repo.Day(ctx, "2025-06-01")
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}

	if day.Totals.Calories != 350 {
		t.Errorf("expected 350 calories, got %v", day.Totals.Calories)
	}
	if day.Totals.Fiber != 10.5 {
		t.Errorf("expected 10.5 fiber, got %v", day.Totals.Fiber)
	}
	if day.Goals != nil || day.Progress != nil {
		t.Error("expected no goal progress before goals are set")
	}
}

func TestGoalsRoundTripAndProgress(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if g, err := repo.GetGoals(ctx); err != nil || g != nil {
		t.Fatalf("expected no goals initially, got %+v, %v", g, err)
	}

	goals := Goals{Calories: 2000, Carbs: 250, Fat: 60, Protein: 100, Fiber: 40}
	if err := repo.SetGoals(ctx, goals); err != nil {
		t.Fatalf("SetGoals failed: %v", err)
	}

	// Replacing goals overwrites the single row.
	goals.Calories = 1800
	if err := repo.SetGoals(ctx, goals); err != nil {
		t.Fatalf("second SetGoals failed: %v", err)
	}

	got, err := repo.GetGoals(ctx)
	if err != nil {
		t.Fatalf("GetGoals failed: %v", err)
	}
	if *got != goals {
		t.Errorf("expected %+v, got %+v", goals, *got)
	}

	if res := repo.AddFood(ctx, "2025-06-01", Lunch, granolaEntry(t, 9)); !res.Success {
		t.Fatalf("AddFood failed: %s", res.Error)
	}
	day, err := repo.Day(ctx, "2025-06-01")
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}
	if day.Progress == nil {
		t.Fatal("expected progress once goals are set")
	}
	if day.Progress.Calories != 50 {
		t.Errorf("expected 50%% calorie progress, got %v", day.Progress.Calories)
	}
}

func TestRemoveEntry(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	res := repo.AddFood(ctx, "2025-06-01", Snack, granolaEntry(t, 1))
	if !res.Success {
		t.Fatalf("AddFood failed: %s", res.Error)
	}

	if err := repo.RemoveEntry(ctx, res.EntryID); err != nil {
		t.Fatalf("RemoveEntry failed: %v", err)
	}
	if err := repo.RemoveEntry(ctx, res.EntryID); err == nil {
		t.Error("expected an error removing a missing entry")
	}

	day, err := repo.Day(ctx, "2025-06-01")
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}
	if day.Totals.Calories != 0 {
		t.Errorf("expected empty totals after removal, got %v", day.Totals.Calories)
	}
}
