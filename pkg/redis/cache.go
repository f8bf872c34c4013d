package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed JSON caching for API responses
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = TTLMedium
	}
	return &Cache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *Cache) fullKey(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Get retrieves a cached value
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value with the cache TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.fullKey(key), data, c.ttl).Err()
}

// InvalidateAll removes every key under this cache's prefix.
// Called after a pipeline run replaces the mart.
func (c *Cache) InvalidateAll(ctx context.Context) (int, error) {
	if !c.client.Enabled() {
		return 0, nil
	}

	rdb := c.client.Redis()
	deleted := 0
	iter := rdb.Scan(ctx, 0, c.fullKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("cache delete failed: %w", err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("cache scan failed: %w", err)
	}
	return deleted, nil
}

// Predefined TTLs
const (
	TTLShort  = 1 * time.Minute
	TTLMedium = 10 * time.Minute // 마트 조회 기본값
	TTLLong   = 1 * time.Hour
)

// Common cache key generators

// MartKey caches a filtered mart listing
func MartKey(jurisdiction string, fromYear, fromWeek, toYear, toWeek int) string {
	if jurisdiction == "" {
		jurisdiction = "all"
	}
	return fmt.Sprintf("mart:%s:%04d%02d-%04d%02d", jurisdiction, fromYear, fromWeek, toYear, toWeek)
}

// MartRecordKey caches a single jurisdiction-week row
func MartRecordKey(key string) string {
	return fmt.Sprintf("mart:key:%s", key)
}

// NationalKey caches a national series window
func NationalKey(from, to string) string {
	return fmt.Sprintf("national:%s:%s", from, to)
}

// LatestRunKey caches the latest run summary
func LatestRunKey() string {
	return "runs:latest"
}
