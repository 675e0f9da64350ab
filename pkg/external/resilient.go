package external

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/lab-report-companion/internal/domain"
)

// hotCacheSize bounds the in-process extraction tier.
const hotCacheSize = 256

// ResilientExtractor wraps the extraction backends with circuit breakers and
// a two-tier cache. Lookup order: in-memory LRU (hot data), shared Redis
// cache, OCR backend, then the vision backend when OCR text is empty or its
// confidence falls below the configured threshold.
type ResilientExtractor struct {
	ocrClient    *OCRClient
	visionClient *VisionClient
	cache        *ExtractionCache
	hot          *lru.Cache
	logger       *logrus.Logger

	confidenceThreshold float64
	cacheTTL            time.Duration

	ocrBreaker    *gobreaker.CircuitBreaker
	visionBreaker *gobreaker.CircuitBreaker
}

// NewResilientExtractor creates an extractor with circuit breakers around
// each backend. The Redis cache is optional; pass nil to run with the
// in-memory tier only.
func NewResilientExtractor(config *domain.ExtractionConfig, cache *ExtractionCache, logger *logrus.Logger) (*ResilientExtractor, error) {
	hot, err := lru.New(hotCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create hot cache: %w", err)
	}

	return &ResilientExtractor{
		ocrClient:           NewOCRClient(config.OCR),
		visionClient:        NewVisionClient(config.Vision),
		cache:               cache,
		hot:                 hot,
		logger:              logger,
		confidenceThreshold: config.ConfidenceThreshold,
		cacheTTL:            config.CacheTTL,
		ocrBreaker:          newBackendBreaker("ocr", logger),
		visionBreaker:       newBackendBreaker("vision", logger),
	}, nil
}

func newBackendBreaker(name string, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// Extract recovers analyzable content from the document, consulting the
// caches before any backend. A vision failure after a usable OCR result is
// logged, not fatal; the error returns only when no tier produced anything.
func (r *ResilientExtractor) Extract(ctx context.Context, doc *domain.Document) (*domain.Extraction, error) {
	if doc == nil || len(doc.Data) == 0 {
		return nil, fmt.Errorf("document is empty")
	}

	key := ExtractionKey(doc.Data)

	if cached, ok := r.hot.Get(key); ok {
		return cached.(*domain.Extraction), nil
	}

	if r.cache != nil {
		if cached, found, err := r.cache.GetExtraction(ctx, doc.Data); err == nil && found {
			r.hot.Add(key, cached)
			return cached, nil
		}
	}

	extraction, ocrErr := r.recognizeText(ctx, doc)
	if ocrErr != nil {
		r.logger.WithFields(logrus.Fields{
			"filename": doc.Filename,
			"error":    ocrErr.Error(),
		}).Warn("OCR extraction failed")
	}

	if r.shouldFallBack(extraction, ocrErr) && r.visionClient.Enabled() {
		visionExtraction, visionErr := r.extractVision(ctx, doc)
		switch {
		case visionErr != nil:
			r.logger.WithFields(logrus.Fields{
				"filename": doc.Filename,
				"error":    visionErr.Error(),
			}).Warn("Vision extraction failed")
		case !visionExtraction.Empty():
			extraction = visionExtraction
			ocrErr = nil
		}
	}

	if extraction.Empty() {
		if ocrErr != nil {
			return nil, ocrErr
		}
		// Both backends answered but recognized nothing analyzable. The
		// caller decides whether that is an error.
		if extraction == nil {
			extraction = &domain.Extraction{}
		}
		return extraction, nil
	}

	r.hot.Add(key, extraction)
	if r.cache != nil {
		if cacheErr := r.cache.SetExtraction(ctx, doc.Data, extraction, r.cacheTTL); cacheErr != nil {
			// Log cache error but don't fail the request
			r.logger.WithError(cacheErr).Warn("Failed to cache extraction")
		}
	}

	return extraction, nil
}

// shouldFallBack reports whether the OCR outcome warrants the vision backend.
// A zero confidence means the backend did not report one and is not treated
// as below threshold.
func (r *ResilientExtractor) shouldFallBack(extraction *domain.Extraction, err error) bool {
	if err != nil || extraction.Empty() {
		return true
	}
	return r.confidenceThreshold > 0 && extraction.Confidence > 0 && extraction.Confidence < r.confidenceThreshold
}

func (r *ResilientExtractor) recognizeText(ctx context.Context, doc *domain.Document) (*domain.Extraction, error) {
	result, err := r.ocrBreaker.Execute(func() (interface{}, error) {
		return r.ocrClient.Recognize(ctx, doc)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, fmt.Errorf("OCR service unavailable (circuit breaker open)")
		}
		return nil, fmt.Errorf("OCR extraction failed: %w", err)
	}

	return result.(*domain.Extraction), nil
}

func (r *ResilientExtractor) extractVision(ctx context.Context, doc *domain.Document) (*domain.Extraction, error) {
	result, err := r.visionBreaker.Execute(func() (interface{}, error) {
		return r.visionClient.ExtractResults(ctx, doc)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, fmt.Errorf("vision service unavailable (circuit breaker open)")
		}
		return nil, fmt.Errorf("vision extraction failed: %w", err)
	}

	return result.(*domain.Extraction), nil
}

// BreakerStates reports the current state of each backend breaker.
func (r *ResilientExtractor) BreakerStates() map[string]gobreaker.State {
	return map[string]gobreaker.State{
		"ocr":    r.ocrBreaker.State(),
		"vision": r.visionBreaker.State(),
	}
}

// Close releases the extraction cache connection, if one is configured.
func (r *ResilientExtractor) Close() error {
	if r.cache != nil {
		return r.cache.Close()
	}
	return nil
}
