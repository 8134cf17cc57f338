package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/lineage-engine/internal/models"
	"github.com/feichai0017/lineage-engine/internal/store"
)

// RedisDiffCache stores computed diffs in Redis, one JSON value per
// (old, new) pair. A single SET keeps each write all-or-nothing, and the TTL
// keeps the cache from growing without bound; entries are derived data, so
// expiry just means recomputation on the next read.
type RedisDiffCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ store.DiffCache = (*RedisDiffCache)(nil)

type Config struct {
	Addr string
	DB   int
	TTL  time.Duration
}

func NewRedisDiffCache(cfg *Config) *RedisDiffCache {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisDiffCache{
		client: redis.NewClient(&redis.Options{
			Addr: cfg.Addr,
			DB:   cfg.DB,
		}),
		ttl: ttl,
	}
}

// GetDiff implements store.DiffCache. A missing key is a cache miss, not an
// error.
func (c *RedisDiffCache) GetDiff(ctx context.Context, oldID, newID string) (*models.DiffEntry, error) {
	data, err := c.client.Get(ctx, diffKey(oldID, newID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get diff from redis: %w", err)
	}

	var entry models.DiffEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal diff entry: %w", err)
	}
	return &entry, nil
}

// PutDiff implements store.DiffCache.
func (c *RedisDiffCache) PutDiff(ctx context.Context, entry *models.DiffEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal diff entry: %w", err)
	}

	key := diffKey(entry.OldID, entry.NewID)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save diff entry: %w", err)
	}
	return nil
}

func diffKey(oldID, newID string) string {
	return fmt.Sprintf("lineage_diff:%s:%s", oldID, newID)
}
