package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/cache"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/ids"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/storage"
)

type Tracker interface {
	TrackOperation(name string, tags map[string]string, fn func() error) error
}

type UploadInput struct {
	OwnerID     string
	ContentID   string
	Filename    string
	ContentType string
	Data        []byte
	Public      bool
}

// PhotoService is the entry point for collaborators: it stores through the
// backend, keeps the side cache coherent and reports timings.
type PhotoService struct {
	storage storage.Backend
	cache   cache.Service
	tracker Tracker
	log     zerolog.Logger
}

func NewPhotoService(backend storage.Backend, c cache.Service, tracker Tracker, log zerolog.Logger) *PhotoService {
	if c == nil {
		c = cache.NewNoop()
	}
	return &PhotoService{
		storage: backend,
		cache:   c,
		tracker: tracker,
		log:     log.With().Str("component", "photo_service").Logger(),
	}
}

func (s *PhotoService) track(name string, tags map[string]string, fn func() error) error {
	if s.tracker == nil {
		return fn()
	}
	return s.tracker.TrackOperation(name, tags, fn)
}

// Upload stores a new item, or replaces an existing one when ContentID is
// set. A missing ContentID is generated.
func (s *PhotoService) Upload(ctx context.Context, in UploadInput) (*models.StoredImage, error) {
	if in.ContentID == "" {
		in.ContentID = ids.New()
	}

	var stored *models.StoredImage
	err := s.track("store", map[string]string{"owner_id": in.OwnerID, "content_id": in.ContentID}, func() error {
		out, err := s.storage.Store(ctx, storage.StoreInput{
			Data:        in.Data,
			Filename:    in.Filename,
			OwnerID:     in.OwnerID,
			ContentID:   in.ContentID,
			ContentType: in.ContentType,
		})
		if err != nil {
			return err
		}
		stored = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", in.ContentID, err)
	}

	s.cache.CacheURLs(ctx, stored.ContentID, stored.URLs, cache.DefaultURLTTL)
	s.cache.CacheMetadata(ctx, stored.ContentID, &stored.Metadata, cache.DefaultMetadataTTL)
	s.cache.InvalidateOwnerCache(ctx, stored.OwnerID)
	if in.Public {
		s.cache.InvalidateListingCaches(ctx)
	}
	return stored, nil
}

func (s *PhotoService) URLs(ctx context.Context, ownerID, contentID string) map[models.Size]string {
	if urls := s.cache.GetURLs(ctx, contentID); urls != nil {
		return urls
	}

	urls, err := s.storage.GetURLs(ctx, ownerID, contentID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Err(err).Str("owner_id", ownerID).Str("content_id", contentID).Msg("load urls failed")
		}
		return nil
	}
	s.cache.CacheURLs(ctx, contentID, urls, cache.DefaultURLTTL)
	return urls
}

func (s *PhotoService) Metadata(ctx context.Context, ownerID, contentID string) *models.ImageMetadata {
	if meta := s.cache.GetMetadata(ctx, contentID); meta != nil {
		return meta
	}

	meta, err := s.storage.Metadata(ctx, ownerID, contentID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Err(err).Str("owner_id", ownerID).Str("content_id", contentID).Msg("load metadata failed")
		}
		return nil
	}
	s.cache.CacheMetadata(ctx, contentID, meta, cache.DefaultMetadataTTL)
	return meta
}

func (s *PhotoService) Variant(ctx context.Context, ownerID, contentID string, size models.Size) ([]byte, error) {
	var data []byte
	err := s.track("retrieve", map[string]string{"size": string(size)}, func() error {
		out, err := s.storage.Retrieve(ctx, ownerID, contentID, size)
		if err != nil {
			return err
		}
		data = out
		return nil
	})
	return data, err
}

// Remove deletes an item and invalidates every cache scope it touched. The
// cache is invalidated even when the delete reports a failure.
func (s *PhotoService) Remove(ctx context.Context, ownerID, contentID string, public bool) error {
	err := s.track("delete", map[string]string{"owner_id": ownerID, "content_id": contentID}, func() error {
		return s.storage.Delete(ctx, ownerID, contentID)
	})

	s.cache.InvalidatePhoto(ctx, contentID)
	s.cache.InvalidateOwnerCache(ctx, ownerID)
	if public {
		s.cache.InvalidateListingCaches(ctx)
	}
	return err
}

// SetVisibility invalidates the item and the listings; a visibility change
// in either direction alters what listings show.
func (s *PhotoService) SetVisibility(ctx context.Context, contentID string, public bool) {
	s.cache.InvalidatePhoto(ctx, contentID)
	s.cache.InvalidateListingCaches(ctx)
	s.log.Debug().Str("content_id", contentID).Bool("public", public).Msg("visibility changed")
}

func (s *PhotoService) StorageInfo(ctx context.Context, ownerID string) (storage.StorageInfo, error) {
	if cached := s.cache.GetOwnerStorage(ctx, ownerID); cached != nil {
		return storage.StorageInfo{OwnerID: ownerID, BytesUsed: cached.BytesUsed, ItemCount: cached.ItemCount}, nil
	}

	info, err := s.storage.StorageInfo(ctx, ownerID)
	if err != nil {
		return info, err
	}
	s.cache.CacheOwnerStorage(ctx, ownerID, cache.OwnerStorage{BytesUsed: info.BytesUsed, ItemCount: info.ItemCount}, cache.DefaultOwnerStorageTTL)
	return info, nil
}

func (s *PhotoService) WarmUp(ctx context.Context, ownerID string, contentIDs []string) int {
	return s.cache.WarmUp(ctx, contentIDs, ownerID)
}
