package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
)

type observed struct {
	op          string
	hit, failed bool
}

func newMockCache(t *testing.T) (*RedisCache, redismock.ClientMock, *[]observed) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	var seen []observed
	c := NewRedisCache(client, "media:warmup", zerolog.Nop(), WithObserver(func(op string, hit, failed bool) {
		seen = append(seen, observed{op: op, hit: hit, failed: failed})
	}))
	c.newID = func() string { return "job-1" }
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return c, mock, &seen
}

func TestRedisCacheURLs(t *testing.T) {
	c, mock, seen := newMockCache(t)
	ctx := context.Background()

	urls := map[models.Size]string{
		models.SizeThumb: "/media/thumb/o/p.webp",
		models.SizeLarge: "/media/large/o/p.jpg",
	}
	payload, err := json.Marshal(urls)
	require.NoError(t, err)

	mock.ExpectSet("photo:p:urls", payload, time.Hour).SetVal("OK")
	mock.ExpectGet("photo:p:urls").SetVal(string(payload))
	mock.ExpectGet("photo:missing:urls").RedisNil()

	assert.True(t, c.CacheURLs(ctx, "p", urls, 0))
	assert.Equal(t, urls, c.GetURLs(ctx, "p"))
	assert.Nil(t, c.GetURLs(ctx, "missing"))
	assert.False(t, c.CacheURLs(ctx, "p", nil, time.Minute))

	mock.ExpectInfo("memory").SetVal("# Memory\r\nused_memory:1048576\r\nused_memory_human:1.00M\r\n")
	stats := c.Stats(ctx)
	assert.Equal(t, "redis", stats.Backend)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 50.0, stats.HitRate)
	assert.Equal(t, []float64{100, 50}, stats.HitRateHistory)
	assert.Equal(t, "1.00M", stats.MemoryUsed)

	assert.Contains(t, *seen, observed{op: "get_urls", hit: true})
	assert.Contains(t, *seen, observed{op: "get_urls"})
}

func TestRedisCacheFailuresAreSwallowed(t *testing.T) {
	c, mock, seen := newMockCache(t)
	ctx := context.Background()

	meta := &models.ImageMetadata{ContentID: "p", OwnerID: "o", Width: 10, Height: 10}
	payload, err := json.Marshal(meta)
	require.NoError(t, err)

	mock.ExpectSet("photo:p:meta", payload, 30*time.Minute).SetErr(errors.New("connection reset"))
	mock.ExpectGet("photo:p:meta").SetErr(errors.New("connection reset"))
	mock.ExpectGet("owner:o:storage").SetVal("{not json")

	assert.False(t, c.CacheMetadata(ctx, "p", meta, 30*time.Minute))
	assert.Nil(t, c.GetMetadata(ctx, "p"))
	assert.Nil(t, c.GetOwnerStorage(ctx, "o"))

	mock.ExpectInfo("memory").SetErr(errors.New("connection reset"))
	stats := c.Stats(ctx)
	assert.Equal(t, int64(3), stats.Errors)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Zero(t, stats.Sets)
	assert.Empty(t, stats.MemoryUsed)
	assert.Equal(t, int64(4), c.stats.errors.Load())

	assert.Contains(t, *seen, observed{op: "cache_metadata", failed: true})
}

func TestRedisCacheOwnerStorage(t *testing.T) {
	c, mock, _ := newMockCache(t)
	ctx := context.Background()

	info := OwnerStorage{BytesUsed: 2048, ItemCount: 3}
	payload, err := json.Marshal(info)
	require.NoError(t, err)

	mock.ExpectSet("owner:o:storage", payload, 10*time.Minute).SetVal("OK")
	mock.ExpectGet("owner:o:storage").SetVal(string(payload))

	assert.True(t, c.CacheOwnerStorage(ctx, "o", info, 0))
	got := c.GetOwnerStorage(ctx, "o")
	require.NotNil(t, got)
	assert.Equal(t, info, *got)
}

func TestRedisCacheInvalidatePhoto(t *testing.T) {
	c, mock, _ := newMockCache(t)

	mock.ExpectDel("photo:p:urls", "photo:p:meta").SetVal(2)
	mock.ExpectScan(0, "owner:*:item_count", scanBatch).SetVal([]string{"owner:a:item_count"}, 7)
	mock.ExpectScan(7, "owner:*:item_count", scanBatch).SetVal([]string{"owner:b:item_count"}, 0)
	mock.ExpectDel("owner:a:item_count", "owner:b:item_count").SetVal(2)
	mock.ExpectSet("invalidation:photo:p", "job-1", 5*time.Minute).SetVal("OK")
	mock.ExpectGet("photo:p:urls").RedisNil()

	c.InvalidatePhoto(context.Background(), "p")
	assert.Equal(t, int64(4), c.stats.deletes.Load())
	assert.Nil(t, c.GetURLs(context.Background(), "p"))
}

func TestRedisCacheInvalidateOwner(t *testing.T) {
	c, mock, _ := newMockCache(t)

	mock.ExpectScan(0, "owner:o:*", scanBatch).SetVal([]string{"owner:o:storage", "owner:o:profile", "owner:o:stats"}, 0)
	mock.ExpectDel("owner:o:storage", "owner:o:profile", "owner:o:stats").SetVal(3)

	c.InvalidateOwnerCache(context.Background(), "o")
}

func TestRedisCacheInvalidateListings(t *testing.T) {
	c, mock, _ := newMockCache(t)

	mock.ExpectScan(0, "listing:recent:*", scanBatch).SetVal([]string{"listing:recent:1"}, 0)
	mock.ExpectDel("listing:recent:1").SetVal(1)
	mock.ExpectScan(0, "listing:trending:*", scanBatch).SetVal(nil, 0)
	mock.ExpectScan(0, "listing:featured:*", scanBatch).SetErr(errors.New("timeout"))
	mock.ExpectScan(0, "feed:*", scanBatch).SetVal([]string{"feed:1", "feed:2"}, 0)
	mock.ExpectDel("feed:1", "feed:2").SetVal(2)

	c.InvalidateListingCaches(context.Background())
	assert.Equal(t, int64(1), c.stats.errors.Load())
}

func TestRedisCacheWarmUp(t *testing.T) {
	c, mock, _ := newMockCache(t)

	mock.ExpectExists("photo:cached:urls").SetVal(1)
	mock.ExpectExists("photo:cold:urls").SetVal(0)
	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "media:warmup",
		MaxLen: warmupMaxLen,
		Approx: true,
		Values: []string{
			"type", WarmupTask,
			"jobId", "job-1",
			"contentId", "cold",
			"ownerId", "o",
			"expiresAt", "1700000600",
		},
	}).SetVal("1-0")

	assert.Equal(t, 1, c.WarmUp(context.Background(), []string{"cached", "cold"}, "o"))
}

func TestParseInfoField(t *testing.T) {
	info := "# Memory\r\nused_memory:100\r\nused_memory_human:100B\r\n"
	assert.Equal(t, "100B", parseInfoField(info, "used_memory_human"))
	assert.Empty(t, parseInfoField(info, "maxmemory_human"))
}
