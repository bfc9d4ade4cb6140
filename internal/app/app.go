package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"scantrack/internal/barcode"
	"scantrack/internal/camera"
	"scantrack/internal/capture"
	"scantrack/internal/config"
	"scantrack/internal/database"
	"scantrack/internal/lookup"
	"scantrack/internal/meal"
	"scantrack/internal/metrics"
	"scantrack/internal/platform"
	"scantrack/internal/resource"
	"scantrack/internal/syncer"
)

// App holds the application's dependencies.
type App struct {
	cfg          *config.Config
	db           *database.DB
	resources    *resource.Manager
	cameras      *camera.Service
	detector     *barcode.Detector
	products     *lookup.Service
	meals        *meal.Repository
	metricsStore *metrics.Store
	debouncer    *syncer.Debouncer
	cachePath    string
}

// NewApp creates and initializes a new App instance. The camera driver
// and decode engine are injected so tests can supply fakes.
func NewApp(
	cfg *config.Config,
	db *database.DB,
	driver camera.Driver,
	decoder barcode.Decoder,
	client lookup.Client,
	lifecycle platform.Lifecycle,
) *App {
	resources := resource.NewManager()
	if lifecycle != nil {
		resources.Bind(lifecycle)
	}

	device := platform.DetectDeviceClass()
	cameras := camera.NewService(driver, resources, device, cfg.CameraDeviceID)
	detector := barcode.NewDetector(decoder, resources, cameras.PerformanceSettings(), cfg.MaxScanAttempts, cfg.ScanAttemptTimeout)
	if lifecycle != nil {
		detector.Bind(lifecycle)
	}

	products := lookup.NewService(client, cfg)
	meals := meal.NewRepository(db.SQL)
	metricsStore := metrics.NewStore(db.SQL)

	// The lookup cache persists beside the database so the TTL carries
	// across one-shot CLI runs.
	cachePath := filepath.Join(filepath.Dir(cfg.DBPath), "product_cache.json")
	if err := products.Cache().LoadFrom(cachePath); err != nil {
		slog.Warn("app: failed to load product cache", "path", cachePath, "error", err)
	}

	a := &App{
		cfg:          cfg,
		db:           db,
		resources:    resources,
		cameras:      cameras,
		detector:     detector,
		products:     products,
		meals:        meals,
		metricsStore: metricsStore,
		cachePath:    cachePath,
	}
	if cfg.SyncURL != "" {
		a.debouncer = syncer.NewDebouncer(syncer.NewClient(cfg), meals.Day, cfg.SyncDebounce)
	}
	return a
}

// NewOrchestrator builds a capture flow over the app's services.
func (a *App) NewOrchestrator(events capture.Events) *capture.Orchestrator {
	return capture.NewOrchestrator(
		a.cameras, a.detector, a.products, a.meals,
		a.resources, a.metricsStore, a.cfg, events,
	)
}

// CaptureResult is the outcome of a one-shot capture run.
type CaptureResult struct {
	Product *lookup.EnhancedProduct
	Logged  meal.AddResult
}

// CaptureAndLog runs one capture session end to end: camera, detection,
// lookup, then logging the result with the given serving count. It fails
// when the session lands on mode selection instead of a result.
func (a *App) CaptureAndLog(ctx context.Context, date string, mealType meal.Type, servings float64) (*CaptureResult, error) {
	settled := make(chan capture.Phase, 8)
	orch := a.NewOrchestrator(capture.Events{
		OnPhaseChange: func(p capture.Phase) {
			switch p {
			case capture.PhaseResultReady, capture.PhaseModeSelection, capture.PhaseCameraError:
				settled <- p
			}
		},
	})
	defer orch.StopCapture()

	if err := orch.StartCapture(ctx); err != nil {
		return nil, err
	}

	select {
	case phase := <-settled:
		if phase != capture.PhaseResultReady {
			state := orch.State()
			if state.Error != "" {
				return nil, fmt.Errorf("capture did not produce a result: %s", state.Error)
			}
			return nil, fmt.Errorf("no barcode detected within the detection window")
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	state := orch.State()
	res := orch.ConfirmResult(ctx, date, mealType, servings)
	if !res.Success {
		return nil, fmt.Errorf("failed to log food: %s", res.Error)
	}
	a.markDirty(date)
	return &CaptureResult{Product: state.Result, Logged: res}, nil
}

// Lookup resolves a barcode without the camera.
func (a *App) Lookup(ctx context.Context, barcodeText string) (*lookup.EnhancedProduct, error) {
	return a.products.LookupByBarcode(ctx, barcodeText, a.products.DefaultOptions())
}

// Search finds products by name, best effort.
func (a *App) Search(ctx context.Context, query string, limit int) []lookup.EnhancedProduct {
	return a.products.SearchByName(ctx, query, limit)
}

// LogBarcode looks a barcode up and logs it directly, the non-interactive
// alternative to a camera capture.
func (a *App) LogBarcode(ctx context.Context, date string, mealType meal.Type, barcodeText string, servings float64) (*CaptureResult, error) {
	product, err := a.Lookup(ctx, barcodeText)
	if err != nil {
		return nil, err
	}
	entry, err := meal.NewEntry(*product, servings)
	if err != nil {
		return nil, err
	}
	res := a.meals.AddFood(ctx, date, mealType, entry)
	if !res.Success {
		return nil, fmt.Errorf("failed to log food: %s", res.Error)
	}
	a.markDirty(date)
	return &CaptureResult{Product: product, Logged: res}, nil
}

// LogManual logs a hand-entered food with per-100g nutrition.
func (a *App) LogManual(ctx context.Context, date string, mealType meal.Type, name string, per100g lookup.Nutrition, servings float64) (meal.AddResult, error) {
	product := a.products.Enhance(lookup.ProductData{
		Name:             name,
		NutritionPer100g: per100g,
	}, lookup.SourceManual)

	entry, err := meal.NewEntry(product, servings)
	if err != nil {
		return meal.AddResult{}, err
	}
	res := a.meals.AddFood(ctx, date, mealType, entry)
	if res.Success {
		a.markDirty(date)
	}
	return res, nil
}

// Day returns the day's log with totals and goal progress.
func (a *App) Day(ctx context.Context, date string) (*meal.DayTotals, error) {
	return a.meals.Day(ctx, date)
}

// Goals returns the configured daily goals, nil when unset.
func (a *App) Goals(ctx context.Context) (*meal.Goals, error) {
	return a.meals.GetGoals(ctx)
}

// SetGoals stores the daily goals.
func (a *App) SetGoals(ctx context.Context, g meal.Goals) error {
	return a.meals.SetGoals(ctx, g)
}

// SyncDay uploads one day to the remote service immediately.
func (a *App) SyncDay(ctx context.Context, date string) error {
	if a.cfg.SyncURL == "" {
		return fmt.Errorf("sync is not configured (set SCANTRACK_SYNC_URL)")
	}
	day, err := a.meals.Day(ctx, date)
	if err != nil {
		return err
	}
	return syncer.NewClient(a.cfg).UploadDay(ctx, day)
}

// Sessions returns capture session counts for the last N days.
func (a *App) Sessions(ctx context.Context, days int) ([]metrics.DailySessions, error) {
	return a.metricsStore.GetDailySessions(ctx, days)
}

// Health reports runtime and data-directory stats.
func (a *App) Health() metrics.SysHealth {
	return metrics.GetSysHealth(a.cfg.DBPath)
}

// CameraAvailable reports whether a video input device is present.
func (a *App) CameraAvailable() bool {
	return a.cameras.IsCameraAvailable()
}

// Close persists the lookup cache, flushes pending sync uploads, and
// releases every held resource.
func (a *App) Close() {
	if err := a.products.Cache().SaveTo(a.cachePath); err != nil {
		slog.Warn("app: failed to save product cache", "path", a.cachePath, "error", err)
	}
	if a.debouncer != nil {
		a.debouncer.Flush()
	}
	a.detector.Close()
	a.resources.ReleaseAll()
}

func (a *App) markDirty(date string) {
	if a.debouncer != nil {
		a.debouncer.MarkDirty(date)
	}
}

// Today returns the current date in the format the meal log uses.
func Today() string {
	return time.Now().Format("2006-01-02")
}
