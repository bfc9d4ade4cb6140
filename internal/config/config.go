package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the configuration for the application.
type Config struct {
	// Storage
	DBPath string

	// Product database (OpenFoodFacts-compatible API)
	ProductAPIBaseURL string
	LookupTimeout     time.Duration
	LookupMaxRetries  int
	CacheMaxAge       time.Duration
	CacheSweepSize    int

	// Capture tuning
	CameraDeviceID      int
	MaxScanAttempts     int
	ScanAttemptTimeout  time.Duration
	AutoDetectionWindow time.Duration

	// Quality scoring. These are tunable business rules, not structural
	// invariants, so they live here rather than as constants.
	Quality QualityConfig

	// Remote sync (optional; sync is disabled when SyncURL is empty)
	SyncURL      string
	SyncAdminKey string
	SyncDebounce time.Duration
}

// QualityConfig holds the product quality scoring weights and thresholds.
type QualityConfig struct {
	NamePoints      int
	BrandPoints     int
	NutritionPoints int
	ImagePoints     int
	VerifiedPoints  int

	// Score thresholds for the medium and high quality levels.
	MediumThreshold int
	HighThreshold   int

	// Confidence factors applied to quality score by product source.
	BarcodeConfidenceFactor float64
	SearchConfidenceFactor  float64
}

// DefaultQualityConfig returns the standard scoring weights.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		NamePoints:              20,
		BrandPoints:             15,
		NutritionPoints:         40,
		ImagePoints:             10,
		VerifiedPoints:          15,
		MediumThreshold:         60,
		HighThreshold:           80,
		BarcodeConfidenceFactor: 0.95,
		SearchConfidenceFactor:  0.80,
	}
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	dbPath := os.Getenv("SCANTRACK_DB_PATH")
	if dbPath == "" {
		dbPath = "data/scantrack.db"
	}

	productAPIBaseURL := os.Getenv("SCANTRACK_PRODUCT_API_URL")
	if productAPIBaseURL == "" {
		productAPIBaseURL = "https://world.openfoodfacts.org"
	}

	cameraDeviceID, err := intFromEnv("SCANTRACK_CAMERA_DEVICE", 0)
	if err != nil {
		return nil, err
	}

	maxScanAttempts, err := intFromEnv("SCANTRACK_MAX_SCAN_ATTEMPTS", 10)
	if err != nil {
		return nil, err
	}
	if maxScanAttempts <= 0 {
		return nil, fmt.Errorf("SCANTRACK_MAX_SCAN_ATTEMPTS must be positive, got %d", maxScanAttempts)
	}

	lookupMaxRetries, err := intFromEnv("SCANTRACK_LOOKUP_MAX_RETRIES", 2)
	if err != nil {
		return nil, err
	}

	// Sync is optional; the admin key is only required once a URL is set.
	syncURL := os.Getenv("SCANTRACK_SYNC_URL")
	syncAdminKey := os.Getenv("SCANTRACK_SYNC_ADMIN_KEY")
	if syncURL != "" && syncAdminKey == "" {
		return nil, fmt.Errorf("SCANTRACK_SYNC_ADMIN_KEY environment variable not set but SCANTRACK_SYNC_URL is")
	}

	return &Config{
		DBPath:              dbPath,
		ProductAPIBaseURL:   productAPIBaseURL,
		LookupTimeout:       8 * time.Second,
		LookupMaxRetries:    lookupMaxRetries,
		CacheMaxAge:         24 * time.Hour,
		CacheSweepSize:      1000,
		CameraDeviceID:      cameraDeviceID,
		MaxScanAttempts:     maxScanAttempts,
		ScanAttemptTimeout:  500 * time.Millisecond,
		AutoDetectionWindow: 3 * time.Second,
		Quality:             DefaultQualityConfig(),
		SyncURL:             syncURL,
		SyncAdminKey:        syncAdminKey,
		SyncDebounce:        30 * time.Second,
	}, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return v, nil
}
