package acceptance_tests

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scantrack/internal/app"
	"scantrack/internal/barcode"
	"scantrack/internal/camera"
	"scantrack/internal/config"
	"scantrack/internal/database"
	"scantrack/internal/lookup"
	"scantrack/internal/meal"
)

// --- Mock Camera Driver ---

type mockStream struct{}

func (m *mockStream) ReadFrame(ctx context.Context) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 8, 8)), nil
}
func (m *mockStream) Capabilities() camera.Capabilities { return camera.Capabilities{} }
func (m *mockStream) SetContinuousFocus() error         { return nil }
func (m *mockStream) SetContinuousExposure() error      { return nil }
func (m *mockStream) SetTorch(bool) error               { return nil }
func (m *mockStream) Close() error                      { return nil }

type mockDriver struct{}

func (m *mockDriver) Open(ctx context.Context, deviceID int, c camera.Constraints) (camera.Stream, error) {
	return &mockStream{}, nil
}

func (m *mockDriver) EnumerateDevices() ([]camera.DeviceInfo, error) {
	return []camera.DeviceInfo{{ID: 0, Label: "mock camera"}}, nil
}

// --- Mock Decode Engine ---

type mockDecoder struct {
	mu    sync.Mutex
	calls int
	text  string
}

func (m *mockDecoder) Decode(image.Image) barcode.Detection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	// The first frame shows nothing, the second shows the barcode.
	if m.calls < 2 {
		return barcode.Detection{Outcome: barcode.OutcomeNotFound}
	}
	return barcode.Detection{Outcome: barcode.OutcomeDetected, Result: &barcode.Result{
		Text: m.text, Format: barcode.FormatUPCA, Timestamp: time.Now(), Confidence: 95,
	}}
}

func (m *mockDecoder) Reset() {}

func newTestApp(t *testing.T, productServer *httptest.Server, decoder barcode.Decoder) *app.App {
	t.Helper()
	return newTestAppInDir(t, productServer, decoder, t.TempDir())
}

func newTestAppInDir(t *testing.T, productServer *httptest.Server, decoder barcode.Decoder, dir string) *app.App {
	t.Helper()
	cfg := &config.Config{
		DBPath:              filepath.Join(dir, "scantrack.db"),
		ProductAPIBaseURL:   productServer.URL,
		LookupTimeout:       2 * time.Second,
		LookupMaxRetries:    0,
		CacheMaxAge:         24 * time.Hour,
		CacheSweepSize:      1000,
		MaxScanAttempts:     20,
		ScanAttemptTimeout:  100 * time.Millisecond,
		AutoDetectionWindow: 3 * time.Second,
		Quality:             config.DefaultQualityConfig(),
	}

	db, err := database.NewDB(cfg.DBPath)
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	client := lookup.NewOpenFoodFactsClient(cfg.ProductAPIBaseURL, productServer.Client())
	application := app.NewApp(cfg, db, &mockDriver{}, decoder, client, nil)
	t.Cleanup(application.Close)
	return application
}

func productAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/product/049000028911.json" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status":"failure"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "success",
			"product": {
				"product_name": "Coca-Cola Classic",
				"brands": "Coca-Cola",
				"image_url": "https://images.example.com/cola.jpg",
				"states": "en:checked",
				"nutriments": {
					"energy-kcal_100g": 100,
					"carbohydrates_100g": 20,
					"fat_100g": 5,
					"proteins_100g": 8,
					"fiber_100g": 3
				}
			}
		}`))
	}))
}

func TestCaptureToMealFlow(t *testing.T) {
	server := productAPIServer(t)
	defer server.Close()
	application := newTestApp(t, server, &mockDecoder{text: "049000028911"})
	ctx := context.Background()

	result, err := application.CaptureAndLog(ctx, "2025-06-01", meal.Lunch, 2.5)
	if err != nil {
		t.Fatalf("CaptureAndLog failed: %v", err)
	}

	if result.Product.Name != "Coca-Cola Classic" {
		t.Errorf("Expected the looked-up product, got %+v", result.Product)
	}
	if result.Product.Quality.Score != 100 || result.Product.Confidence != 95 {
		t.Errorf("Expected quality 100 and confidence 95, got %d and %d",
			result.Product.Quality.Score, result.Product.Confidence)
	}

	day, err := application.Day(ctx, "2025-06-01")
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}
	if len(day.Meals) != 1 || day.Meals[0].Type != meal.Lunch {
		t.Fatalf("Expected one lunch meal, got %+v", day.Meals)
	}

	// Per-100g {100,20,5,8,3} at 2.5 servings, scaled before the sink.
	totals := day.Totals
	if totals.Calories != 250 || totals.Carbs != 50 || totals.Fat != 12.5 || totals.Protein != 20 || totals.Fiber != 7.5 {
		t.Errorf("Expected scaled totals {250 50 12.5 20 7.5}, got %+v", totals)
	}
}

func TestLookupIsCachedAcrossCalls(t *testing.T) {
	server := productAPIServer(t)
	defer server.Close()
	application := newTestApp(t, server, &mockDecoder{text: "049000028911"})
	ctx := context.Background()

	first, err := application.Lookup(ctx, "049000028911")
	if err != nil {
		t.Fatalf("First lookup failed: %v", err)
	}
	if first.Cached {
		t.Error("First lookup must not be cached")
	}

	second, err := application.Lookup(ctx, "049000028911")
	if err != nil {
		t.Fatalf("Second lookup failed: %v", err)
	}
	if !second.Cached {
		t.Error("Second lookup must come from cache")
	}
	if second.Name != first.Name || second.Quality.Score != first.Quality.Score {
		t.Errorf("Cached result must match: %+v vs %+v", first, second)
	}
}

func TestLookupCacheSurvivesRestart(t *testing.T) {
	server := productAPIServer(t)
	defer server.Close()
	dir := t.TempDir()
	ctx := context.Background()

	first := newTestAppInDir(t, server, &mockDecoder{text: "049000028911"}, dir)
	product, err := first.Lookup(ctx, "049000028911")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if product.Cached {
		t.Error("First lookup must hit the network")
	}
	first.Close()

	// A new process over the same data directory starts with the warm
	// cache, so the 24h TTL holds across one-shot CLI runs.
	second := newTestAppInDir(t, server, &mockDecoder{text: "049000028911"}, dir)
	again, err := second.Lookup(ctx, "049000028911")
	if err != nil {
		t.Fatalf("Lookup after restart failed: %v", err)
	}
	if !again.Cached {
		t.Error("Expected the persisted cache to serve the lookup after restart")
	}
	if again.Name != product.Name {
		t.Errorf("Cached product must match across restarts: %q vs %q", again.Name, product.Name)
	}
}

func TestLogBarcodeWithoutCamera(t *testing.T) {
	server := productAPIServer(t)
	defer server.Close()
	application := newTestApp(t, server, &mockDecoder{text: "049000028911"})
	ctx := context.Background()

	result, err := application.LogBarcode(ctx, "2025-06-02", meal.Breakfast, "049000028911", 1)
	if err != nil {
		t.Fatalf("LogBarcode failed: %v", err)
	}
	if !result.Logged.Success {
		t.Fatalf("Expected a logged entry, got %+v", result.Logged)
	}

	day, err := application.Day(ctx, "2025-06-02")
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}
	if day.Totals.Calories != 100 {
		t.Errorf("Expected 100 kcal logged, got %v", day.Totals.Calories)
	}
}

func TestUnknownBarcodeFailsWithSuggestions(t *testing.T) {
	server := productAPIServer(t)
	defer server.Close()
	application := newTestApp(t, server, &mockDecoder{text: "049000028911"})

	_, err := application.Lookup(context.Background(), "123456789012")
	if err == nil {
		t.Fatal("Expected a not-found failure")
	}
	failure, ok := err.(*lookup.Failure)
	if !ok {
		t.Fatalf("Expected a structured failure, got %T", err)
	}
	if failure.Kind != lookup.FailureNotFound {
		t.Errorf("Expected not_found, got %s", failure.Kind)
	}
	if len(failure.Suggestions) == 0 {
		t.Error("Every failure must carry recovery suggestions")
	}
}
