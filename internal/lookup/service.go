package lookup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scantrack/internal/config"
)

// Client is the external product database boundary. LookupByBarcode
// returns (nil, nil) for "no such product"; an error means a transport or
// parse failure.
type Client interface {
	LookupByBarcode(ctx context.Context, barcode string) (*ProductData, error)
	SearchByName(ctx context.Context, query string, limit int) ([]ProductData, error)
}

// Options tune a single lookup call.
type Options struct {
	EnableCache        bool
	MaxRetries         int
	Timeout            time.Duration
	RequireHighQuality bool
}

// call is a shared in-flight lookup.
type call struct {
	done    chan struct{}
	product *EnhancedProduct
	err     error
}

// Service layers caching, in-flight de-duplication, retry with
// exponential backoff, and quality scoring over a Client.
type Service struct {
	client Client
	scorer *Scorer
	cache  *Cache

	defaultRetries int
	defaultTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]*call

	// backoffUnit is the base of the exponential backoff schedule
	// (1s, 2s, 4s, ...). Tests shorten it.
	backoffUnit time.Duration
}

// NewService creates a lookup Service from the application config.
func NewService(client Client, cfg *config.Config) *Service {
	return &Service{
		client:         client,
		scorer:         NewScorer(cfg.Quality),
		cache:          NewCache(cfg.CacheMaxAge, cfg.CacheSweepSize),
		defaultRetries: cfg.LookupMaxRetries,
		defaultTimeout: cfg.LookupTimeout,
		inflight:       make(map[string]*call),
		backoffUnit:    time.Second,
	}
}

// DefaultOptions returns the configured defaults with caching on.
func (s *Service) DefaultOptions() Options {
	return Options{
		EnableCache: true,
		MaxRetries:  s.defaultRetries,
		Timeout:     s.defaultTimeout,
	}
}

// Cache exposes the underlying cache for persistence across runs.
func (s *Service) Cache() *Cache {
	return s.cache
}

// LookupByBarcode resolves a barcode to an enhanced product.
//
// Order of operations: format validation (no network on failure), cache,
// in-flight de-duplication, then up to MaxRetries+1 attempts with
// exponential backoff between them. Not-found and low-quality outcomes are
// terminal; only transport failures and timeouts are retried.
func (s *Service) LookupByBarcode(ctx context.Context, barcode string, opts Options) (*EnhancedProduct, error) {
	if err := ValidateBarcode(barcode); err != nil {
		slog.Debug("lookup: rejected barcode", "barcode", barcode, "error", err)
		return nil, invalidFormatFailure(barcode)
	}

	if opts.EnableCache {
		if p, ok := s.cache.Get(barcode); ok {
			p.Cached = true
			slog.Debug("lookup: cache hit", "barcode", barcode)
			return p, nil
		}
	}

	// At most one in-flight request per barcode; concurrent callers await
	// the same underlying attempt.
	s.mu.Lock()
	if c, ok := s.inflight[barcode]; ok {
		s.mu.Unlock()
		select {
		case <-c.done:
			return c.product, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &call{done: make(chan struct{})}
	s.inflight[barcode] = c
	s.mu.Unlock()

	product, err := s.fetch(ctx, barcode, opts)

	s.mu.Lock()
	delete(s.inflight, barcode)
	s.mu.Unlock()
	c.product, c.err = product, err
	close(c.done)

	return product, err
}

func (s *Service) fetch(ctx context.Context, barcode string, opts Options) (*EnhancedProduct, error) {
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		actx, cancel := context.WithTimeout(ctx, opts.Timeout)
		data, err := s.client.LookupByBarcode(actx, barcode)
		cancel()

		if err == nil {
			if data == nil {
				// Absent is definitive; retrying cannot make the product
				// appear.
				return nil, notFoundFailure(barcode)
			}
			enhanced := s.Enhance(*data, SourceBarcode)
			if opts.RequireHighQuality && enhanced.Quality.Level == QualityLow {
				return nil, qualityTooLowFailure(barcode, enhanced.Quality.Score)
			}
			s.cache.Set(barcode, enhanced)
			return &enhanced, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		slog.Warn("lookup: attempt failed", "barcode", barcode, "attempt", attempt+1, "error", err)

		if attempt < opts.MaxRetries {
			backoff := s.backoffUnit * time.Duration(1<<attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, networkFailure(barcode, lastErr)
}

// SearchByName is a best-effort text search: failures yield an empty list
// rather than propagating.
func (s *Service) SearchByName(ctx context.Context, query string, limit int) []EnhancedProduct {
	data, err := s.client.SearchByName(ctx, query, limit)
	if err != nil {
		slog.Warn("lookup: search failed", "query", query, "error", err)
		return []EnhancedProduct{}
	}

	results := make([]EnhancedProduct, 0, len(data))
	for _, d := range data {
		results = append(results, s.Enhance(d, SourceSearch))
	}
	return results
}

// Enhance attaches quality, confidence, and provenance to a raw record.
func (s *Service) Enhance(data ProductData, source Source) EnhancedProduct {
	quality := s.scorer.Assess(data)
	return EnhancedProduct{
		ProductData: data,
		Quality:     quality,
		Confidence:  s.scorer.Confidence(quality, source),
		Source:      source,
	}
}

// AssessProductQuality scores a record without performing a lookup.
func (s *Service) AssessProductQuality(data ProductData) Quality {
	return s.scorer.Assess(data)
}
