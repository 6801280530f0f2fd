package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"grievance/backend/internal/models"
)

const publicViewPrefix = "complaint:public:"

// PublicCache holds anonymous tracking lookups. A miss is (nil, nil).
// Entries carry the complaint version they were read at; a write older than
// the version already recorded for the key is dropped.
type PublicCache interface {
	Get(ctx context.Context, trackingID string) (*models.PublicView, error)
	Set(ctx context.Context, view models.PublicView, version int) error
	// Invalidate drops the cached view and refuses views older than version.
	Invalidate(ctx context.Context, trackingID string, version int) error
}

// storeIfNewer writes the hash {version, view} unless the key already holds
// a higher version. An empty view leaves only the version behind.
var storeIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1])
if ARGV[2] == '' then
  redis.call('HDEL', KEYS[1], 'view')
else
  redis.call('HSET', KEYS[1], 'view', ARGV[2])
end
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisCache is a PublicCache backed by Redis string keys with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates a RedisCache; entries expire after ttl.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, trackingID string) (*models.PublicView, error) {
	raw, err := c.rdb.HGet(ctx, publicViewPrefix+trackingID, "view").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var view models.PublicView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *RedisCache) Set(ctx context.Context, view models.PublicView, version int) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return c.store(ctx, view.TrackingID, version, string(raw))
}

func (c *RedisCache) Invalidate(ctx context.Context, trackingID string, version int) error {
	return c.store(ctx, trackingID, version, "")
}

func (c *RedisCache) store(ctx context.Context, trackingID string, version int, view string) error {
	keys := []string{publicViewPrefix + trackingID}
	return storeIfNewer.Run(ctx, c.rdb, keys, version, view, c.ttl.Milliseconds()).Err()
}
