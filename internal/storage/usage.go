package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/disk"
)

type diskUsageFunc func(ctx context.Context, path string) (*disk.UsageStat, error)

// UsageTracker keeps an approximate byte count of everything under the
// managed directories. Writes and deletes adjust it immediately; Refresh
// re-seeds it from a full walk. Reads never block writers.
type UsageTracker struct {
	root        string
	dirs        []string
	used        atomic.Int64
	refreshedAt atomic.Int64
	diskUsage   diskUsageFunc
	log         zerolog.Logger
}

func newUsageTracker(root string, dirs []string, du diskUsageFunc, log zerolog.Logger) *UsageTracker {
	return &UsageTracker{
		root:      root,
		dirs:      dirs,
		diskUsage: du,
		log:       log,
	}
}

func (u *UsageTracker) Used() int64 {
	return u.used.Load()
}

func (u *UsageTracker) Add(delta int64) {
	u.used.Add(delta)
}

func (u *UsageTracker) RefreshedAt() time.Time {
	ns := u.refreshedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Refresh recomputes usage by walking the managed directories. If the walk
// fails it falls back to the used bytes of the whole filesystem.
func (u *UsageTracker) Refresh(ctx context.Context) (int64, error) {
	total, err := u.walk(ctx)
	if err != nil {
		u.log.Warn().Err(err).Msg("usage walk failed, falling back to disk usage")
		stat, duErr := u.diskUsage(ctx, u.root)
		if duErr != nil {
			return u.Used(), duErr
		}
		total = int64(stat.Used)
	}

	u.used.Store(total)
	u.refreshedAt.Store(time.Now().UnixNano())
	return total, nil
}

func (u *UsageTracker) walk(ctx context.Context) (int64, error) {
	var total int64
	for _, dir := range u.dirs {
		err := filepath.WalkDir(filepath.Join(u.root, dir), func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return 0, err
		}
	}
	return total, nil
}
