package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/cache"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/storage"
)

type Source interface {
	GetURLs(ctx context.Context, ownerID, contentID string) (map[models.Size]string, error)
	Metadata(ctx context.Context, ownerID, contentID string) (*models.ImageMetadata, error)
}

type Sink interface {
	CacheURLs(ctx context.Context, contentID string, urls map[models.Size]string, ttl time.Duration) bool
	CacheMetadata(ctx context.Context, contentID string, meta *models.ImageMetadata, ttl time.Duration) bool
}

type Processor struct {
	source Source
	sink   Sink
	logger zerolog.Logger
	now    func() time.Time
}

type TaskPayload struct {
	Type      string `json:"type"`
	JobID     string `json:"jobId"`
	ContentID string `json:"contentId"`
	OwnerID   string `json:"ownerId"`
	ExpiresAt string `json:"expiresAt"`
}

func (p TaskPayload) expired(now time.Time) bool {
	if p.ExpiresAt == "" {
		return false
	}
	unix, err := strconv.ParseInt(p.ExpiresAt, 10, 64)
	if err != nil {
		return true
	}
	return now.Unix() > unix
}

func NewProcessor(source Source, sink Sink, logger zerolog.Logger) *Processor {
	return &Processor{
		source: source,
		sink:   sink,
		logger: logger.With().Str("component", "warmup").Logger(),
		now:    time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case cache.WarmupTask:
		return p.handleWarmup(ctx, payload)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

// handleWarmup drops expired and vanished items; only transient storage
// failures are returned so the message stays pending.
func (p *Processor) handleWarmup(ctx context.Context, payload TaskPayload) error {
	log := p.logger.With().
		Str("job_id", payload.JobID).
		Str("owner_id", payload.OwnerID).
		Str("content_id", payload.ContentID).
		Logger()

	if payload.expired(p.now()) {
		log.Debug().Msg("warm-up job expired")
		return nil
	}

	urls, err := p.source.GetURLs(ctx, payload.OwnerID, payload.ContentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidID) {
			log.Debug().Err(err).Msg("warm-up target missing")
			return nil
		}
		return fmt.Errorf("load urls: %w", err)
	}
	p.sink.CacheURLs(ctx, payload.ContentID, urls, cache.DefaultURLTTL)

	meta, err := p.source.Metadata(ctx, payload.OwnerID, payload.ContentID)
	if err != nil {
		log.Warn().Err(err).Msg("warm-up metadata unavailable")
		return nil
	}
	p.sink.CacheMetadata(ctx, payload.ContentID, meta, cache.DefaultMetadataTTL)

	log.Debug().Int("sizes", len(urls)).Msg("warm-up done")
	return nil
}
