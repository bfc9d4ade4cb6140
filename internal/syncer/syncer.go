package syncer

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"scantrack/internal/config"
	"scantrack/internal/meal"
)

// Client pushes logged days to a remote nutrition service.
type Client interface {
	UploadDay(ctx context.Context, day *meal.DayTotals) error
}

// httpClient is the concrete implementation of the sync client.
type httpClient struct {
	hc  *http.Client
	cfg *config.Config
}

// NewClient creates a sync API client.
func NewClient(cfg *config.Config) Client {
	return &httpClient{
		hc:  &http.Client{Timeout: 30 * time.Second},
		cfg: cfg,
	}
}

type dayUpload struct {
	Date   string    `json:"date"`
	Meals  []mealDoc `json:"meals"`
	Totals totalsDoc `json:"totals"`
}

type mealDoc struct {
	Type    string     `json:"type"`
	Entries []entryDoc `json:"entries"`
}

type entryDoc struct {
	Barcode    string  `json:"barcode,omitempty"`
	Name       string  `json:"name"`
	Brand      string  `json:"brand,omitempty"`
	Servings   float64 `json:"servings"`
	Calories   float64 `json:"calories"`
	Carbs      float64 `json:"carbs"`
	Fat        float64 `json:"fat"`
	Protein    float64 `json:"protein"`
	Fiber      float64 `json:"fiber"`
	Source     string  `json:"source"`
	Confidence int     `json:"confidence"`
}

type totalsDoc struct {
	Calories float64 `json:"calories"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Protein  float64 `json:"protein"`
	Fiber    float64 `json:"fiber"`
}

// UploadDay pushes one day of logged meals to the remote service.
func (c *httpClient) UploadDay(ctx context.Context, day *meal.DayTotals) error {
	token, err := c.createAdminToken()
	if err != nil {
		return fmt.Errorf("failed to create admin token: %w", err)
	}

	body, err := json.Marshal(toUpload(day))
	if err != nil {
		return fmt.Errorf("failed to marshal day: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/days/%s", strings.TrimRight(c.cfg.SyncURL, "/"), day.Date)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("sync api error: status %d", resp.StatusCode)
	}
	return nil
}

func toUpload(day *meal.DayTotals) dayUpload {
	up := dayUpload{
		Date: day.Date,
		Totals: totalsDoc{
			Calories: day.Totals.Calories,
			Carbs:    day.Totals.Carbs,
			Fat:      day.Totals.Fat,
			Protein:  day.Totals.Protein,
			Fiber:    day.Totals.Fiber,
		},
	}
	for _, m := range day.Meals {
		doc := mealDoc{Type: string(m.Type)}
		for _, e := range m.Entries {
			doc.Entries = append(doc.Entries, entryDoc{
				Barcode:    e.Barcode,
				Name:       e.Name,
				Brand:      e.Brand,
				Servings:   e.Servings,
				Calories:   e.Nutrition.Calories,
				Carbs:      e.Nutrition.Carbs,
				Fat:        e.Nutrition.Fat,
				Protein:    e.Nutrition.Protein,
				Fiber:      e.Nutrition.Fiber,
				Source:     string(e.Source),
				Confidence: e.Confidence,
			})
		}
		up.Meals = append(up.Meals, doc)
	}
	return up
}

// createAdminToken generates a short-lived JWT from the id:secret admin
// key.
func (c *httpClient) createAdminToken() (string, error) {
	keyParts := strings.Split(c.cfg.SyncAdminKey, ":")
	if len(keyParts) != 2 {
		return "", fmt.Errorf("invalid admin key format: expected id:secret")
	}

	id := keyParts[0]
	secretHex := keyParts[1]

	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret hex: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"aud": "/v1/days/",
	})
	token.Header["kid"] = id

	return token.SignedString(secret)
}

// Debouncer coalesces rapid logging activity into a single deferred
// upload per day. Uploads are best effort: a failure is logged and the
// day stays marked dirty for the next flush.
type Debouncer struct {
	client Client
	source func(ctx context.Context, date string) (*meal.DayTotals, error)
	delay  time.Duration

	mu    sync.Mutex
	dirty map[string]*time.Timer
}

// NewDebouncer creates a Debouncer that loads day snapshots from source
// when a deferred upload fires.
func NewDebouncer(client Client, source func(ctx context.Context, date string) (*meal.DayTotals, error), delay time.Duration) *Debouncer {
	return &Debouncer{
		client: client,
		source: source,
		delay:  delay,
		dirty:  make(map[string]*time.Timer),
	}
}

// MarkDirty schedules an upload for the given day, resetting the timer if
// one is already pending.
func (d *Debouncer) MarkDirty(date string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.dirty[date]; ok {
		t.Reset(d.delay)
		return
	}
	d.dirty[date] = time.AfterFunc(d.delay, func() {
		d.flush(date)
	})
}

// Flush uploads every pending day immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	dates := make([]string, 0, len(d.dirty))
	for date, t := range d.dirty {
		t.Stop()
		dates = append(dates, date)
	}
	d.mu.Unlock()

	for _, date := range dates {
		d.flush(date)
	}
}

func (d *Debouncer) flush(date string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	day, err := d.source(ctx, date)
	if err != nil {
		slog.Warn("syncer: failed to load day for upload", "date", date, "error", err)
		return
	}
	if err := d.client.UploadDay(ctx, day); err != nil {
		slog.Warn("syncer: upload failed", "date", date, "error", err)
		return
	}

	d.mu.Lock()
	delete(d.dirty, date)
	d.mu.Unlock()
	slog.Info("syncer: day uploaded", "date", date)
}
