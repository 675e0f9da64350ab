// Package cache provides a bounded in-memory cache for analysis responses.
// The MCP server uses it to answer repeated analyze calls for identical
// input without re-running the pipeline.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lab-report-companion/internal/domain"
)

const (
	defaultMaxItems = 1000
	defaultTTL      = 24 * time.Hour
)

// AnalysisCache memoizes full analysis responses keyed by a digest of the
// input text and demographics. Entries expire after the configured TTL and
// the least recently used entry is evicted once the size bound is reached.
//
// Analyses that consult subject history are not cacheable: recording a new
// result changes the trend the next analysis should report. Callers must
// only cache history-free analyses.
type AnalysisCache struct {
	lru    *expirable.LRU[string, *domain.ReportAnalysis]
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates an analysis cache holding at most maxItems entries for ttl.
// Non-positive arguments fall back to the defaults.
func New(maxItems int, ttl time.Duration) *AnalysisCache {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &AnalysisCache{
		lru: expirable.NewLRU[string, *domain.ReportAnalysis](maxItems, nil, ttl),
	}
}

// Key derives the cache key for an analysis input. Identical text and
// demographics always map to the same key.
func Key(text string, demo *domain.Demographics) string {
	h := sha256.New()
	h.Write([]byte(text))
	if demo != nil {
		payload, _ := json.Marshal(demo)
		h.Write([]byte("::"))
		h.Write(payload)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached analysis for the key, if present and fresh.
func (c *AnalysisCache) Get(key string) (*domain.ReportAnalysis, bool) {
	analysis, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
		return analysis, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set stores the analysis under the key.
func (c *AnalysisCache) Set(key string, analysis *domain.ReportAnalysis) {
	c.lru.Add(key, analysis)
}

// Len reports the number of live entries.
func (c *AnalysisCache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *AnalysisCache) Purge() {
	c.lru.Purge()
}

// Stats summarizes cache effectiveness since process start.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Items  int   `json:"items"`
}

// Stats returns a point-in-time snapshot of hit counters and size.
func (c *AnalysisCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Items:  c.lru.Len(),
	}
}
