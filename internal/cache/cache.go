// Package cache stores vision model responses keyed by image digest, so re-analyzing the same page
// does not call the provider again. An in-process LRU always sits in front; Redis is an optional
// shared tier.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/eeg-findings-server/internal/domain"
)

const keyPrefix = "eeg:analysis"

// ResponseCache is a two-tier cache of raw model responses.
type ResponseCache struct {
	memory     *lru.LRU[string, string]
	redis      *redis.Client
	defaultTTL time.Duration
	logger     *logrus.Logger
	stats      counters
}

type counters struct {
	memoryHits atomic.Int64
	redisHits  atomic.Int64
	misses     atomic.Int64
}

// Stats reports cache hit counts since start.
type Stats struct {
	MemoryHits int64 `json:"memory_hits"`
	RedisHits  int64 `json:"redis_hits"`
	Misses     int64 `json:"misses"`
	Entries    int   `json:"entries"`
	Shared     bool  `json:"shared"`
}

// cachedResponse is the envelope stored in Redis.
type cachedResponse struct {
	Text      string    `json:"text"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// New creates the cache. An empty RedisURL keeps it in memory only.
func New(config domain.CacheConfig, logger *logrus.Logger) (*ResponseCache, error) {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 24 * time.Hour
	}
	if config.MaxItems <= 0 {
		config.MaxItems = 512
	}

	c := &ResponseCache{
		memory:     lru.NewLRU[string, string](config.MaxItems, nil, config.DefaultTTL),
		defaultTTL: config.DefaultTTL,
		logger:     logger,
	}

	if config.RedisURL == "" {
		return c, nil
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.redis = client
	return c, nil
}

// Key derives the cache key of an image analyzed by a given provider and model.
func Key(image []byte, provider, model string) string {
	sum := sha256.Sum256(image)
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, provider, model, hex.EncodeToString(sum[:]))
}

// Get returns the cached response for key. Redis failures are logged and reported as a miss.
func (c *ResponseCache) Get(ctx context.Context, key string) (string, bool) {
	if text, ok := c.memory.Get(key); ok {
		c.stats.memoryHits.Add(1)
		return text, true
	}

	if c.redis != nil {
		text, ok, err := c.getShared(ctx, key)
		if err != nil {
			c.warn(err, key, "Redis cache read failed")
		}
		if ok {
			c.stats.redisHits.Add(1)
			c.memory.Add(key, text)
			return text, true
		}
	}

	c.stats.misses.Add(1)
	return "", false
}

func (c *ResponseCache) getShared(ctx context.Context, key string) (string, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var cached cachedResponse
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// corrupted entry
		c.redis.Del(ctx, key)
		return "", false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return "", false, nil
	}
	return cached.Text, true, nil
}

// Set stores a response in both tiers.
func (c *ResponseCache) Set(ctx context.Context, key, text string) {
	c.memory.Add(key, text)
	if c.redis == nil {
		return
	}

	now := time.Now()
	payload, err := json.Marshal(cachedResponse{
		Text:      text,
		CachedAt:  now,
		ExpiresAt: now.Add(c.defaultTTL),
	})
	if err != nil {
		c.warn(err, key, "Failed to marshal cached response")
		return
	}
	if err := c.redis.Set(ctx, key, payload, c.defaultTTL).Err(); err != nil {
		c.warn(err, key, "Redis cache write failed")
	}
}

// Invalidate removes key from both tiers.
func (c *ResponseCache) Invalidate(ctx context.Context, key string) error {
	c.memory.Remove(key)
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, key).Err()
}

// Stats returns hit counters and the number of in-memory entries.
func (c *ResponseCache) Stats() Stats {
	return Stats{
		MemoryHits: c.stats.memoryHits.Load(),
		RedisHits:  c.stats.redisHits.Load(),
		Misses:     c.stats.misses.Load(),
		Entries:    c.memory.Len(),
		Shared:     c.redis != nil,
	}
}

// Ping checks the shared tier. A memory-only cache is always healthy.
func (c *ResponseCache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *ResponseCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

func (c *ResponseCache) warn(err error, key, msg string) {
	if c.logger == nil {
		return
	}
	c.logger.WithError(err).WithField("key", key).Warn(msg)
}
