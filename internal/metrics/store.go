package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionOutcome classifies how a capture session ended.
type SessionOutcome string

const (
	OutcomeLogged    SessionOutcome = "logged"
	OutcomeCancelled SessionOutcome = "cancelled"
	OutcomeFailed    SessionOutcome = "failed"
	OutcomeActive    SessionOutcome = "active"
)

// CaptureSession records timing and outcome metadata for one capture
// flow, from camera start to a logged meal or an abandonment.
type CaptureSession struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Outcome      SessionOutcome
	Source       string
	Barcode      string
	ScanAttempts int
	DetectionMS  int64
	LookupMS     int64
}

// Store handles persistence of capture session metrics to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Begin records the start of a capture session and returns its id.
func (s *Store) Begin(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO capture_sessions (id, started_at, outcome) VALUES (?, ?, ?)",
		id, time.Now().UTC(), string(OutcomeActive),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record session start: %w", err)
	}
	return id, nil
}

// Finish completes a session record with its outcome and timings.
func (s *Store) Finish(ctx context.Context, sess CaptureSession) error {
	finished := sess.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE capture_sessions
		 SET finished_at = ?, outcome = ?, source = ?, barcode = ?,
			scan_attempts = ?, detection_ms = ?, lookup_ms = ?
		 WHERE id = ?`,
		finished, string(sess.Outcome), sess.Source, sess.Barcode,
		sess.ScanAttempts, sess.DetectionMS, sess.LookupMS, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to record session finish: %w", err)
	}
	return nil
}

// DailySessions represents session counts for a single day.
type DailySessions struct {
	Date      string
	Total     int
	Logged    int
	Cancelled int
	Failed    int
}

// GetDailySessions retrieves session counts for the last N days.
func (s *Store) GetDailySessions(ctx context.Context, days int) ([]DailySessions, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.QueryContext(ctx,
		`SELECT date(started_at) AS day,
			COUNT(*),
			SUM(CASE WHEN outcome = 'logged' THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = 'cancelled' THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END)
		 FROM capture_sessions
		 WHERE started_at >= ?
		 GROUP BY day
		 ORDER BY day`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var results []DailySessions
	for rows.Next() {
		var d DailySessions
		if err := rows.Scan(&d.Date, &d.Total, &d.Logged, &d.Cancelled, &d.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan sessions row: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}
