package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const kjToKcal = 0.239006

// OpenFoodFactsClient looks products up in the Open Food Facts database.
type OpenFoodFactsClient struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// NewOpenFoodFactsClient creates a client for the given API base URL,
// e.g. "https://world.openfoodfacts.org".
func NewOpenFoodFactsClient(baseURL string, httpClient *http.Client) *OpenFoodFactsClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenFoodFactsClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		userAgent:  "scantrack/1.0 (https://github.com/scantrack/scantrack)",
	}
}

// offProduct mirrors the subset of the Open Food Facts product document we
// consume. Nutriment values arrive as either numbers or strings depending
// on the product, so they are decoded lazily.
type offProduct struct {
	ProductName string                     `json:"product_name"`
	Brands      string                     `json:"brands"`
	ImageURL    string                     `json:"image_url"`
	Nutriments  map[string]json.RawMessage `json:"nutriments"`
	States      string                     `json:"states"`
}

type offProductResponse struct {
	Status  json.RawMessage `json:"status"`
	Product *offProduct     `json:"product"`
}

type offSearchResponse struct {
	Products []offProduct `json:"products"`
}

// LookupByBarcode fetches a single product. A missing product is reported
// as (nil, nil).
func (c *OpenFoodFactsClient) LookupByBarcode(ctx context.Context, barcode string) (*ProductData, error) {
	endpoint := fmt.Sprintf("%s/api/v3/product/%s.json", c.baseURL, url.PathEscape(barcode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building product request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching product %s: %w", barcode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("product lookup for %s returned status %d", barcode, resp.StatusCode)
	}

	var body offProductResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding product %s: %w", barcode, err)
	}
	if !statusOK(body.Status) || body.Product == nil {
		return nil, nil
	}

	product := body.Product.toProductData(barcode)
	return &product, nil
}

// SearchByName queries the legacy full-text search endpoint.
func (c *OpenFoodFactsClient) SearchByName(ctx context.Context, query string, limit int) ([]ProductData, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("search_terms", query)
	params.Set("search_simple", "1")
	params.Set("action", "process")
	params.Set("json", "1")
	params.Set("page_size", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/cgi/search.pl?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search for %q returned status %d", query, resp.StatusCode)
	}

	var body offSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding search results: %w", err)
	}

	results := make([]ProductData, 0, len(body.Products))
	for _, p := range body.Products {
		results = append(results, p.toProductData(""))
	}
	return results, nil
}

func (p *offProduct) toProductData(barcode string) ProductData {
	calories, hasKcal := nutriment(p.Nutriments, "energy-kcal_100g")
	if !hasKcal {
		if kj, ok := nutriment(p.Nutriments, "energy_100g"); ok {
			calories = kj * kjToKcal
		}
	}
	carbs, _ := nutriment(p.Nutriments, "carbohydrates_100g")
	fat, _ := nutriment(p.Nutriments, "fat_100g")
	protein, _ := nutriment(p.Nutriments, "proteins_100g")
	fiber, _ := nutriment(p.Nutriments, "fiber_100g")

	return ProductData{
		Name:    strings.TrimSpace(p.ProductName),
		Brand:   strings.TrimSpace(p.Brands),
		Barcode: barcode,
		NutritionPer100g: Nutrition{
			Calories: calories,
			Carbs:    carbs,
			Fat:      fat,
			Protein:  protein,
			Fiber:    fiber,
		},
		ImageURL: p.ImageURL,
		Verified: strings.Contains(p.States, "checked"),
	}
}

// statusOK accepts both API shapes: v3 reports "success", v2 reports 1.
func statusOK(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.HasPrefix(asString, "success")
	}
	var asNumber int
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber == 1
	}
	return false
}

// nutriment extracts a numeric field that may be encoded as a number or a
// string.
func nutriment(values map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := values[key]
	if !ok || len(raw) == 0 {
		return 0, false
	}
	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber, true
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(asString), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
