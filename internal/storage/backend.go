package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/processor"
)

// Backend is the image storage engine consumed by the photo service.
type Backend interface {
	// Store derives every variant of an upload and persists them. Repeated
	// calls for one content id overwrite the previous variants.
	Store(ctx context.Context, in StoreInput) (*models.StoredImage, error)
	Retrieve(ctx context.Context, ownerID, contentID string, size models.Size) ([]byte, error)
	GetURLs(ctx context.Context, ownerID, contentID string) (map[models.Size]string, error)
	Metadata(ctx context.Context, ownerID, contentID string) (*models.ImageMetadata, error)
	// Delete removes an item from both tiers and its sidecar. Deleting an
	// absent item succeeds.
	Delete(ctx context.Context, ownerID, contentID string) error
	StorageInfo(ctx context.Context, ownerID string) (StorageInfo, error)
	HealthCheck(ctx context.Context) HealthStatus
	Metrics() StorageMetrics
}

type ImageProcessor interface {
	Process(ctx context.Context, data []byte, filename, ownerID, contentID string) (*processor.Result, error)
}

type StoreInput struct {
	Data        []byte
	Filename    string
	OwnerID     string
	ContentID   string
	ContentType string
}

type StorageInfo struct {
	OwnerID   string `json:"owner_id"`
	BytesUsed int64  `json:"bytes_used"`
	ItemCount int    `json:"item_count"`
}

type HealthStatus struct {
	Healthy          bool      `json:"healthy"`
	DiskUsagePercent float64   `json:"disk_usage_percent"`
	WriteOK          bool      `json:"write_ok"`
	ReadOK           bool      `json:"read_ok"`
	Error            string    `json:"error,omitempty"`
	CheckedAt        time.Time `json:"checked_at"`
}

func (h HealthStatus) Err() error {
	if h.Healthy {
		return nil
	}
	if h.Error != "" {
		return fmt.Errorf("%w: %s", ErrUnavailable, h.Error)
	}
	return ErrUnavailable
}

type Settings struct {
	BasePath    string
	MaxBytes    int64
	HotCacheTTL time.Duration
	MinSweepGap time.Duration
	BaseURL     string
}
