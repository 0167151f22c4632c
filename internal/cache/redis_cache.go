package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/ids"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
)

const scanBatch = 100

const WarmupTask = "warmup"

type RedisCache struct {
	client    *redis.Client
	stream    string
	warmupTTL time.Duration
	observer  Observer
	stats     counters
	log       zerolog.Logger

	newID func() string
	now   func() time.Time
}

var _ Service = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, stream string, log zerolog.Logger, opts ...Option) *RedisCache {
	o := buildOptions(opts)
	if stream == "" {
		stream = "media:warmup"
	}
	return &RedisCache{
		client:    client,
		stream:    stream,
		warmupTTL: o.warmupTTL,
		observer:  o.observer,
		log:       log.With().Str("component", "cache").Logger(),
		newID:     ids.New,
		now:       time.Now,
	}
}

func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) observe(op string, err error) bool {
	if err == nil {
		return true
	}
	c.stats.errors.Add(1)
	c.observer(op, false, true)
	c.log.Warn().Err(err).Str("op", op).Msg("cache operation failed")
	return false
}

func (c *RedisCache) get(ctx context.Context, op, key string, out any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.stats.recordGet(false)
		c.observer(op, false, false)
		return false
	}
	if !c.observe(op, err) {
		c.stats.recordGet(false)
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.observe(op, err)
		c.stats.recordGet(false)
		return false
	}
	c.stats.recordGet(true)
	c.observer(op, true, false)
	return true
}

func (c *RedisCache) set(ctx context.Context, op, key string, value any, ttl time.Duration) bool {
	payload, err := json.Marshal(value)
	if !c.observe(op, err) {
		return false
	}
	if !c.observe(op, c.client.Set(ctx, key, payload, ttl).Err()) {
		return false
	}
	c.stats.sets.Add(1)
	return true
}

func (c *RedisCache) del(ctx context.Context, op string, keys ...string) {
	if len(keys) == 0 {
		return
	}
	n, err := c.client.Del(ctx, keys...).Result()
	if c.observe(op, err) {
		c.stats.deletes.Add(n)
	}
}

func (c *RedisCache) scan(ctx context.Context, op, pattern string) []string {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if !c.observe(op, err) {
			return keys
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys
		}
		cursor = next
	}
}

func (c *RedisCache) GetURLs(ctx context.Context, contentID string) map[models.Size]string {
	var urls map[models.Size]string
	if !c.get(ctx, "get_urls", urlsKey(contentID), &urls) {
		return nil
	}
	return urls
}

func (c *RedisCache) CacheURLs(ctx context.Context, contentID string, urls map[models.Size]string, ttl time.Duration) bool {
	if len(urls) == 0 {
		return false
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return c.set(ctx, "cache_urls", urlsKey(contentID), urls, ttl)
}

func (c *RedisCache) GetMetadata(ctx context.Context, contentID string) *models.ImageMetadata {
	var meta models.ImageMetadata
	if !c.get(ctx, "get_metadata", metaKey(contentID), &meta) {
		return nil
	}
	return &meta
}

func (c *RedisCache) CacheMetadata(ctx context.Context, contentID string, meta *models.ImageMetadata, ttl time.Duration) bool {
	if meta == nil {
		return false
	}
	if ttl <= 0 {
		ttl = DefaultMetadataTTL
	}
	return c.set(ctx, "cache_metadata", metaKey(contentID), meta, ttl)
}

func (c *RedisCache) GetOwnerStorage(ctx context.Context, ownerID string) *OwnerStorage {
	var info OwnerStorage
	if !c.get(ctx, "get_owner_storage", ownerKey(ownerID, "storage"), &info) {
		return nil
	}
	return &info
}

func (c *RedisCache) CacheOwnerStorage(ctx context.Context, ownerID string, info OwnerStorage, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultOwnerStorageTTL
	}
	return c.set(ctx, "cache_owner_storage", ownerKey(ownerID, "storage"), info, ttl)
}

// InvalidatePhoto drops the item's entries and every owner item count, then
// leaves a short-lived audit record.
func (c *RedisCache) InvalidatePhoto(ctx context.Context, contentID string) {
	c.del(ctx, "invalidate_photo", urlsKey(contentID), metaKey(contentID))
	c.del(ctx, "invalidate_photo", c.scan(ctx, "invalidate_photo", itemCountPattern)...)

	audit := c.newID()
	err := c.client.Set(ctx, invalidationKey(contentID), audit, invalidationTTLMinutes*time.Minute).Err()
	if c.observe("invalidate_photo", err) {
		c.log.Debug().Str("content_id", contentID).Str("audit_id", audit).Msg("photo cache invalidated")
	}
}

func (c *RedisCache) InvalidateOwnerCache(ctx context.Context, ownerID string) {
	c.del(ctx, "invalidate_owner", c.scan(ctx, "invalidate_owner", ownerPattern(ownerID))...)
}

func (c *RedisCache) InvalidateListingCaches(ctx context.Context) {
	for _, prefix := range listingPrefixes {
		c.del(ctx, "invalidate_listing", c.scan(ctx, "invalidate_listing", prefix+"*")...)
	}
}

func (c *RedisCache) WarmUp(ctx context.Context, contentIDs []string, ownerID string) int {
	expiresAt := strconv.FormatInt(c.now().Add(c.warmupTTL).Unix(), 10)

	queued := 0
	for _, id := range contentIDs {
		n, err := c.client.Exists(ctx, urlsKey(id)).Result()
		if !c.observe("warmup", err) {
			continue
		}
		if n > 0 {
			continue
		}

		err = c.client.XAdd(ctx, &redis.XAddArgs{
			Stream: c.stream,
			MaxLen: warmupMaxLen,
			Approx: true,
			Values: []string{
				"type", WarmupTask,
				"jobId", c.newID(),
				"contentId", id,
				"ownerId", ownerID,
				"expiresAt", expiresAt,
			},
		}).Err()
		if c.observe("warmup", err) {
			queued++
		}
	}
	return queued
}

func (c *RedisCache) Stats(ctx context.Context) CacheStats {
	stats := c.stats.snapshot("redis")

	info, err := c.client.Info(ctx, "memory").Result()
	if c.observe("stats", err) {
		stats.MemoryUsed = parseInfoField(info, "used_memory_human")
	}
	return stats
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func parseInfoField(info, field string) string {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, field+":"); ok {
			return v
		}
	}
	return ""
}
