package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/entityscan/entityscan/internal/config"
	"github.com/entityscan/entityscan/internal/extract"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ResultCache handles Redis-based caching of extraction results
type ResultCache struct {
	client *redis.Client
	config *config.CacheConfig
	logger *zap.Logger
	stats  *cacheStats
}

// cacheStats tracks cache performance metrics
type cacheStats struct {
	hits   int64
	misses int64
}

// New creates a new Redis-based result cache
func New(cfg *config.CacheConfig, logger *zap.Logger) (*ResultCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = cfg.MaxConnections
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	cache := &ResultCache{
		client: client,
		config: cfg,
		logger: logger,
		stats:  &cacheStats{},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Result cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Duration("default_ttl", cfg.DefaultTTL))

	return cache, nil
}

// Get looks up the cached extraction result for a text. A nil result with a
// nil error is a cache miss.
func (rc *ResultCache) Get(ctx context.Context, text string) (*CachedResult, error) {
	key := rc.resultKey(text)

	data, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		rc.stats.misses++
		rc.logger.Debug("Cache miss", zap.String("key", key))
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}

	var cached CachedResult
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		rc.logger.Error("Failed to unmarshal cached result", zap.Error(err))
		// Delete corrupted cache entry
		rc.client.Del(ctx, key)
		rc.stats.misses++
		return nil, nil
	}

	rc.stats.hits++
	rc.logger.Debug("Cache hit",
		zap.String("key", key),
		zap.Int("total_matches", cached.TotalMatches))

	return &cached, nil
}

// Set caches the extraction result for a text with the configured TTL
func (rc *ResultCache) Set(ctx context.Context, text string, result extract.Result) error {
	cached := CachedResult{
		TextHash:     textHash(text),
		Entities:     result,
		TotalMatches: result.Total(),
		CachedAt:     time.Now(),
		TTL:          int64(rc.config.DefaultTTL.Seconds()),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal result for caching: %w", err)
	}

	if err := rc.client.Set(ctx, rc.resultKey(text), data, rc.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}

	return nil
}

// GetStats returns cache performance statistics
func (rc *ResultCache) GetStats(ctx context.Context) (*Stats, error) {
	info, err := rc.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &Stats{
		Hits:   rc.stats.hits,
		Misses: rc.stats.misses,
	}

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	for _, line := range strings.Split(info, "\r\n") {
		if strings.HasPrefix(line, "used_memory:") {
			if mem, err := strconv.ParseInt(strings.TrimPrefix(line, "used_memory:"), 10, 64); err == nil {
				stats.MemoryUsage = mem
			}
		}
	}

	if keys, err := rc.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Clear removes all cached results
func (rc *ResultCache) Clear(ctx context.Context) error {
	pattern := rc.config.KeyPrefix + ":res:*"

	iter := rc.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := rc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	rc.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (rc *ResultCache) Close() error {
	if rc.client != nil {
		return rc.client.Close()
	}
	return nil
}

// resultKey builds the cache key for a text
func (rc *ResultCache) resultKey(text string) string {
	return fmt.Sprintf("%s:res:%s", rc.config.KeyPrefix, textHash(text)[:16])
}

// textHash computes the SHA-256 hex digest of the text
func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// maskRedisURL masks credentials in a Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
