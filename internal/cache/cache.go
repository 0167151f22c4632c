package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/config"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
)

const (
	DefaultURLTTL          = time.Hour
	DefaultMetadataTTL     = time.Hour
	DefaultOwnerStorageTTL = 10 * time.Minute
	DefaultWarmupTTL       = 10 * time.Minute

	warmupMaxLen = 10000
)

// Service is the metadata side cache. Every method is best effort: failures
// are logged and counted, and reads degrade to a miss.
type Service interface {
	GetURLs(ctx context.Context, contentID string) map[models.Size]string
	CacheURLs(ctx context.Context, contentID string, urls map[models.Size]string, ttl time.Duration) bool
	GetMetadata(ctx context.Context, contentID string) *models.ImageMetadata
	CacheMetadata(ctx context.Context, contentID string, meta *models.ImageMetadata, ttl time.Duration) bool
	GetOwnerStorage(ctx context.Context, ownerID string) *OwnerStorage
	CacheOwnerStorage(ctx context.Context, ownerID string, info OwnerStorage, ttl time.Duration) bool

	InvalidatePhoto(ctx context.Context, contentID string)
	InvalidateOwnerCache(ctx context.Context, ownerID string)
	InvalidateListingCaches(ctx context.Context)

	// WarmUp enqueues population jobs for ids that are not cached yet and
	// returns how many were enqueued.
	WarmUp(ctx context.Context, contentIDs []string, ownerID string) int

	Stats(ctx context.Context) CacheStats
	Close() error
}

type OwnerStorage struct {
	BytesUsed int64 `json:"bytes_used"`
	ItemCount int   `json:"item_count"`
}

type Observer func(op string, hit, failed bool)

type Option func(*options)

type options struct {
	observer  Observer
	warmupTTL time.Duration
}

func WithObserver(fn Observer) Option {
	return func(o *options) { o.observer = fn }
}

func WithWarmupTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.warmupTTL = ttl
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		observer:  func(string, bool, bool) {},
		warmupTTL: DefaultWarmupTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New returns the Redis backed cache when Redis is enabled and answers a
// ping, and the no-op cache otherwise.
func New(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger, opts ...Option) Service {
	if !cfg.Enabled {
		log.Info().Msg("redis disabled, using no-op cache")
		return NewNoop(opts...)
	}

	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using no-op cache")
		return NewNoop(opts...)
	}

	if cfg.WarmupTTL > 0 {
		opts = append(opts, WithWarmupTTL(cfg.WarmupTTL))
	}
	return NewRedisCache(client, cfg.Stream, log, opts...)
}
