package meal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"scantrack/internal/lookup"
)

// AddResult reports the outcome of logging a food. Logging never panics
// and never propagates an error: a failed write is reported in-band so a
// capture flow can surface it and keep running.
type AddResult struct {
	Success bool
	MealID  string
	EntryID int64
	Error   string
}

// Repository persists meals and goals to SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a meal repository over an existing connection.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// AddFood logs a food entry to the meal of the given type on the given
// day, creating the meal row on first use.
func (r *Repository) AddFood(ctx context.Context, date string, mealType Type, entry Entry) AddResult {
	mealID, entryID, err := r.addFood(ctx, date, mealType, entry)
	if err != nil {
		slog.Error("meal: failed to log food", "date", date, "meal", mealType, "food", entry.Name, "error", err)
		return AddResult{Error: err.Error()}
	}
	return AddResult{Success: true, MealID: mealID, EntryID: entryID}
}

func (r *Repository) addFood(ctx context.Context, date string, mealType Type, entry Entry) (string, int64, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", 0, fmt.Errorf("invalid date %q: %w", date, err)
	}
	if entry.Name == "" {
		return "", 0, fmt.Errorf("entry has no name")
	}
	if entry.Servings <= 0 {
		return "", 0, fmt.Errorf("servings must be positive, got %v", entry.Servings)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var mealID string
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM meals WHERE logged_on = ? AND meal_type = ?",
		date, string(mealType),
	).Scan(&mealID)
	switch {
	case err == sql.ErrNoRows:
		mealID = uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO meals (id, meal_type, logged_on, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			mealID, string(mealType), date, now, now,
		); err != nil {
			return "", 0, fmt.Errorf("failed to create meal: %w", err)
		}
	case err != nil:
		return "", 0, fmt.Errorf("failed to find meal: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO meal_entries
			(meal_id, barcode, name, brand, servings, calories, carbs, fat, protein, fiber, source, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mealID, entry.Barcode, entry.Name, entry.Brand, entry.Servings,
		entry.Nutrition.Calories, entry.Nutrition.Carbs, entry.Nutrition.Fat,
		entry.Nutrition.Protein, entry.Nutrition.Fiber,
		string(entry.Source), entry.Confidence, now,
	)
	if err != nil {
		return "", 0, fmt.Errorf("failed to insert entry: %w", err)
	}
	entryID, err := res.LastInsertId()
	if err != nil {
		return "", 0, fmt.Errorf("failed to read entry id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE meals SET updated_at = ? WHERE id = ?", now, mealID,
	); err != nil {
		return "", 0, fmt.Errorf("failed to touch meal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", 0, fmt.Errorf("failed to commit: %w", err)
	}
	return mealID, entryID, nil
}

// Day returns everything logged on the given day, with running totals and
// goal progress when goals are configured.
func (r *Repository) Day(ctx context.Context, date string) (*DayTotals, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, meal_type FROM meals WHERE logged_on = ? ORDER BY meal_type",
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query meals: %w", err)
	}
	defer rows.Close()

	day := &DayTotals{Date: date}
	for rows.Next() {
		var m Meal
		var mealType string
		if err := rows.Scan(&m.ID, &mealType); err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		m.Type = Type(mealType)
		m.LoggedOn = date
		day.Meals = append(day.Meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate meals: %w", err)
	}

	for i := range day.Meals {
		entries, err := r.entriesFor(ctx, day.Meals[i].ID)
		if err != nil {
			return nil, err
		}
		day.Meals[i].Entries = entries
		for _, e := range entries {
			day.Totals.Calories += e.Nutrition.Calories
			day.Totals.Carbs += e.Nutrition.Carbs
			day.Totals.Fat += e.Nutrition.Fat
			day.Totals.Protein += e.Nutrition.Protein
			day.Totals.Fiber += e.Nutrition.Fiber
		}
	}

	goals, err := r.GetGoals(ctx)
	if err != nil {
		return nil, err
	}
	if goals != nil {
		day.Goals = goals
		day.Progress = progressFor(day.Totals, *goals)
	}
	return day, nil
}

func (r *Repository) entriesFor(ctx context.Context, mealID string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, COALESCE(barcode, ''), name, COALESCE(brand, ''), servings,
			calories, carbs, fat, protein, fiber, source, confidence, created_at
		 FROM meal_entries WHERE meal_id = ? ORDER BY id`,
		mealID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var source string
		if err := rows.Scan(
			&e.ID, &e.Barcode, &e.Name, &e.Brand, &e.Servings,
			&e.Nutrition.Calories, &e.Nutrition.Carbs, &e.Nutrition.Fat,
			&e.Nutrition.Protein, &e.Nutrition.Fiber,
			&source, &e.Confidence, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Source = lookup.Source(source)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RemoveEntry deletes a single logged entry.
func (r *Repository) RemoveEntry(ctx context.Context, entryID int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM meal_entries WHERE id = ?", entryID)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("entry %d not found", entryID)
	}
	return nil
}

// GetGoals returns the configured daily goals, or nil when none are set.
func (r *Repository) GetGoals(ctx context.Context) (*Goals, error) {
	var g Goals
	err := r.db.QueryRowContext(ctx,
		"SELECT calories, carbs, fat, protein, fiber FROM daily_goals WHERE id = 1",
	).Scan(&g.Calories, &g.Carbs, &g.Fat, &g.Protein, &g.Fiber)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load goals: %w", err)
	}
	return &g, nil
}

// SetGoals stores the daily goals, replacing any previous values.
func (r *Repository) SetGoals(ctx context.Context, g Goals) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO daily_goals (id, calories, carbs, fat, protein, fiber, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			calories = excluded.calories,
			carbs = excluded.carbs,
			fat = excluded.fat,
			protein = excluded.protein,
			fiber = excluded.fiber,
			updated_at = excluded.updated_at`,
		g.Calories, g.Carbs, g.Fat, g.Protein, g.Fiber, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store goals: %w", err)
	}
	return nil
}
