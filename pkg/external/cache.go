package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lab-report-companion/internal/domain"
)

// ExtractionCache shares extraction results across server instances through
// Redis, keyed by a digest of the document bytes. Re-uploading the same
// report never hits OCR or vision twice within the TTL.
type ExtractionCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// cachedExtraction is the stored envelope. CachedAt records when the backend
// call actually ran; expiry is left to Redis.
type cachedExtraction struct {
	Data     *domain.Extraction `json:"data"`
	CachedAt time.Time          `json:"cached_at"`
}

// NewExtractionCache connects to Redis and verifies the connection.
func NewExtractionCache(config domain.CacheConfig) (*ExtractionCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &ExtractionCache{redis: client, defaultTTL: config.DefaultTTL}, nil
}

// GetExtraction returns the cached extraction for the document content, with
// found=false on a miss. A corrupted entry is deleted and treated as a miss.
func (c *ExtractionCache) GetExtraction(ctx context.Context, content []byte) (*domain.Extraction, bool, error) {
	key := ExtractionKey(content)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get extraction cache: %w", err)
	}

	var cached cachedExtraction
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetExtraction caches an extraction for the document content. A zero ttl
// uses the configured default.
func (c *ExtractionCache) SetExtraction(ctx context.Context, content []byte, extraction *domain.Extraction, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	payload, err := json.Marshal(cachedExtraction{
		Data:     extraction,
		CachedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal extraction cache data: %w", err)
	}

	return c.redis.Set(ctx, ExtractionKey(content), payload, ttl).Err()
}

// Close releases the underlying Redis connection pool.
func (c *ExtractionCache) Close() error {
	return c.redis.Close()
}

// ExtractionKey derives the cache key for a document's content.
func ExtractionKey(content []byte) string {
	hash := sha256.Sum256(content)
	return fmt.Sprintf("lab:extract:%x", hash)
}
