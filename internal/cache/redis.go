package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/prompt-shield/internal/config"
	"github.com/raaihank/prompt-shield/internal/logger"
	"go.uber.org/zap"
)

const (
	verdictDetected = "1"
	verdictClean    = "0"
)

// VerdictCache remembers Detect results in Redis. Keys are SHA-256 digests
// of the text and values are a single flag byte, so neither the text nor
// any matched value is ever stored.
type VerdictCache struct {
	client *redis.Client
	prefix string
	scope  string
	ttl    time.Duration
	logger *logger.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats represents cache performance statistics
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	TotalKeys int64   `json:"total_keys"`
}

// NewVerdictCache connects to Redis and verifies the connection
func NewVerdictCache(cfg config.CacheConfig, log *logger.Logger) (*VerdictCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	c := NewVerdictCacheWithClient(redis.NewClient(opts), cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		_ = c.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.Info("Verdict cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Duration("ttl", cfg.TTL),
	)
	return c, nil
}

// NewVerdictCacheWithClient wraps an existing client without pinging it
func NewVerdictCacheWithClient(client *redis.Client, cfg config.CacheConfig, log *logger.Logger) *VerdictCache {
	if log == nil {
		log = logger.NewNop()
	}
	return &VerdictCache{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		logger: log.WithComponent("cache"),
	}
}

// WithScope partitions keys so that detectors with different rule sets
// never share verdicts. It must be called before the cache is used.
func (c *VerdictCache) WithScope(scope string) *VerdictCache {
	c.scope = scope
	return c
}

// Key returns the Redis key for text
func (c *VerdictCache) Key(text string) string {
	h := sha256.New()
	h.Write([]byte(c.scope))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return c.prefix + hex.EncodeToString(h.Sum(nil))
}

// Lookup returns the cached verdict. Redis errors are reported as a miss.
func (c *VerdictCache) Lookup(ctx context.Context, text string) (detected, hit bool) {
	val, err := c.client.Get(ctx, c.Key(text)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		c.misses.Add(1)
		return false, false
	case err != nil:
		c.misses.Add(1)
		c.logger.Debug("Cache lookup failed", zap.Error(err))
		return false, false
	}

	c.hits.Add(1)
	return val == verdictDetected, true
}

// Store records a verdict with the configured TTL
func (c *VerdictCache) Store(ctx context.Context, text string, detected bool) error {
	val := verdictClean
	if detected {
		val = verdictDetected
	}
	if err := c.client.Set(ctx, c.Key(text), val, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache verdict: %w", err)
	}
	return nil
}

// Detect returns the cached verdict for text or computes it with detect
// and caches the result
func (c *VerdictCache) Detect(ctx context.Context, text string, detect func(string) bool) bool {
	if detected, hit := c.Lookup(ctx, text); hit {
		return detected
	}

	detected := detect(text)
	if err := c.Store(ctx, text, detected); err != nil {
		c.logger.Debug("Verdict not cached", zap.Error(err))
	}
	return detected
}

// Stats returns hit/miss counters and the number of keys in the database
func (c *VerdictCache) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	keys, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return stats, fmt.Errorf("failed to get Redis key count: %w", err)
	}
	stats.TotalKeys = keys

	return stats, nil
}

// Clear removes every cached verdict under the prefix
func (c *VerdictCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	// Delete keys in batches
	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *VerdictCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// maskRedisURL hides the password of a Redis URL for logging
func maskRedisURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); !ok {
		return raw
	}
	return strings.Replace(u.Redacted(), "xxxxx", "***", 1)
}
