package cache

import (
	"context"
	"time"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
)

// Noop satisfies Service without a backend. Reads always miss and writes
// report false.
type Noop struct {
	stats    counters
	observer Observer
}

var _ Service = (*Noop)(nil)

func NewNoop(opts ...Option) *Noop {
	o := buildOptions(opts)
	return &Noop{observer: o.observer}
}

func (n *Noop) miss(op string) {
	n.stats.recordGet(false)
	n.observer(op, false, false)
}

func (n *Noop) GetURLs(context.Context, string) map[models.Size]string {
	n.miss("get_urls")
	return nil
}

func (n *Noop) CacheURLs(context.Context, string, map[models.Size]string, time.Duration) bool {
	return false
}

func (n *Noop) GetMetadata(context.Context, string) *models.ImageMetadata {
	n.miss("get_metadata")
	return nil
}

func (n *Noop) CacheMetadata(context.Context, string, *models.ImageMetadata, time.Duration) bool {
	return false
}

func (n *Noop) GetOwnerStorage(context.Context, string) *OwnerStorage {
	n.miss("get_owner_storage")
	return nil
}

func (n *Noop) CacheOwnerStorage(context.Context, string, OwnerStorage, time.Duration) bool {
	return false
}

func (n *Noop) InvalidatePhoto(context.Context, string) {}

func (n *Noop) InvalidateOwnerCache(context.Context, string) {}

func (n *Noop) InvalidateListingCaches(context.Context) {}

func (n *Noop) WarmUp(context.Context, []string, string) int {
	return 0
}

func (n *Noop) Stats(context.Context) CacheStats {
	return n.stats.snapshot("noop")
}

func (n *Noop) Close() error {
	return nil
}
