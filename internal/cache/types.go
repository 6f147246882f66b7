package cache

import (
	"time"

	"github.com/entityscan/entityscan/internal/extract"
)

// CachedResult is an extraction result stored in Redis. Extraction is a pure
// function of the text, so a cached entry never goes stale, only expires.
type CachedResult struct {
	TextHash     string         `json:"text_hash"`
	Entities     extract.Result `json:"entities"`
	TotalMatches int            `json:"total_matches"`
	CachedAt     time.Time      `json:"cached_at"`
	TTL          int64          `json:"ttl"`
}

// Stats represents cache performance statistics
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}
