package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"scantrack/internal/config"
	"scantrack/internal/lookup"
	"scantrack/internal/meal"
)

func sampleDay() *meal.DayTotals {
	return &meal.DayTotals{
		Date: "2025-06-01",
		Meals: []meal.Meal{
			{
				Type: meal.Breakfast,
				Entries: []meal.Entry{
					{
						Barcode:    "049000028911",
						Name:       "Coca-Cola Classic",
						Servings:   2.5,
						Nutrition:  lookup.Nutrition{Calories: 105},
						Source:     lookup.SourceBarcode,
						Confidence: 95,
					},
				},
			},
		},
		Totals: lookup.Nutrition{Calories: 105},
	}
}

func TestUploadDay(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var authHeader string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut {
				t.Errorf("Expected PUT, got %s", r.Method)
			}
			if r.URL.Path != "/api/v1/days/2025-06-01" {
				t.Errorf("Unexpected path %s", r.URL.Path)
			}
			authHeader = r.Header.Get("Authorization")

			var body dayUpload
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("Failed to decode body: %v", err)
			}
			if body.Totals.Calories != 105 {
				t.Errorf("Expected totals in payload, got %+v", body.Totals)
			}
			if len(body.Meals) != 1 || len(body.Meals[0].Entries) != 1 {
				t.Errorf("Expected 1 meal with 1 entry, got %+v", body.Meals)
			}

			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		cfg := &config.Config{
			SyncURL:      server.URL,
			SyncAdminKey: "abc123:7365637265742d6b6579",
		}
		client := NewClient(cfg)

		if err := client.UploadDay(context.Background(), sampleDay()); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			t.Errorf("Expected a bearer token, got %q", authHeader)
		}
		// A signed JWT has three dot-separated segments.
		if parts := strings.Split(strings.TrimPrefix(authHeader, "Bearer "), "."); len(parts) != 3 {
			t.Errorf("Expected a JWT in the auth header, got %q", authHeader)
		}
	})

	t.Run("ServerError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		cfg := &config.Config{
			SyncURL:      server.URL,
			SyncAdminKey: "abc123:7365637265742d6b6579",
		}
		client := NewClient(cfg)

		if err := client.UploadDay(context.Background(), sampleDay()); err == nil {
			t.Fatal("Expected an error for non-200 status code, got nil")
		}
	})

	t.Run("MalformedAdminKey", func(t *testing.T) {
		cfg := &config.Config{
			SyncURL:      "http://localhost:1",
			SyncAdminKey: "not-id-colon-secret",
		}
		client := NewClient(cfg)

		if err := client.UploadDay(context.Background(), sampleDay()); err == nil {
			t.Fatal("Expected an error for malformed admin key, got nil")
		}
	})
}

type recordingClient struct {
	mu    sync.Mutex
	dates []string
}

func (r *recordingClient) UploadDay(ctx context.Context, day *meal.DayTotals) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dates = append(r.dates, day.Date)
	return nil
}

func (r *recordingClient) uploaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dates...)
}

func TestDebouncerCoalescesRapidLogging(t *testing.T) {
	client := &recordingClient{}
	source := func(ctx context.Context, date string) (*meal.DayTotals, error) {
		return &meal.DayTotals{Date: date}, nil
	}
	d := NewDebouncer(client, source, 40*time.Millisecond)

	// Three quick marks for the same day must produce one upload.
	d.MarkDirty("2025-06-01")
	d.MarkDirty("2025-06-01")
	d.MarkDirty("2025-06-01")

	deadline := time.Now().Add(2 * time.Second)
	for len(client.uploaded()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Allow any extra timers to fire before counting.
	time.Sleep(80 * time.Millisecond)

	if got := client.uploaded(); len(got) != 1 {
		t.Errorf("expected exactly 1 upload, got %v", got)
	}
}

func TestDebouncerFlush(t *testing.T) {
	client := &recordingClient{}
	source := func(ctx context.Context, date string) (*meal.DayTotals, error) {
		return &meal.DayTotals{Date: date}, nil
	}
	d := NewDebouncer(client, source, time.Hour)

	d.MarkDirty("2025-06-01")
	d.MarkDirty("2025-06-02")
	d.Flush()

	if got := client.uploaded(); len(got) != 2 {
		t.Errorf("expected 2 uploads on flush, got %v", got)
	}
}
