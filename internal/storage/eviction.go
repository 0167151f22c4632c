package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
)

type EvictionReport struct {
	Files      int           `json:"files"`
	BytesFreed int64         `json:"bytes_freed"`
	DirsPruned int           `json:"dirs_pruned"`
	Skipped    bool          `json:"skipped"`
	Duration   time.Duration `json:"duration"`
}

// MaybeEvict runs EvictExpired unless a sweep already ran within the
// configured minimum gap.
func (s *FileSystem) MaybeEvict(ctx context.Context) (EvictionReport, error) {
	s.sweepMu.Lock()
	last := s.lastSweep
	s.sweepMu.Unlock()

	if !last.IsZero() && s.now().Sub(last) < s.settings.MinSweepGap {
		return EvictionReport{Skipped: true}, nil
	}
	return s.EvictExpired(ctx)
}

// EvictExpired deletes hot tier files whose modification time is older than
// the hot cache TTL, then prunes directories left empty. The main tier is
// never touched.
func (s *FileSystem) EvictExpired(ctx context.Context) (EvictionReport, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	started := s.now()
	cutoff := started.Add(-s.settings.HotCacheTTL)
	root := s.tierRoot(tierCache)

	var report EvictionReport
	files := map[string]int{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root {
				files[path] += 0
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				s.log.Warn().Err(err).Str("path", path).Msg("evict failed")
			} else {
				s.usage.Add(-info.Size())
				report.Files++
				report.BytesFreed += info.Size()
				return nil
			}
		}

		for dir := filepath.Dir(path); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
			files[dir]++
		}
		return nil
	})

	report.DirsPruned = pruneEmpty(files)
	report.Duration = s.now().Sub(started)
	s.lastSweep = started

	if err != nil {
		s.log.Error().Err(err).Msg("hot cache sweep aborted")
		return report, &OpError{Op: "evict", Err: err}
	}

	s.log.Info().
		Int("files", report.Files).
		Str("freed", humanize.IBytes(uint64(report.BytesFreed))).
		Int("dirs_pruned", report.DirsPruned).
		Dur("duration", report.Duration).
		Msg("hot cache sweep finished")
	return report, nil
}

func pruneEmpty(files map[string]int) int {
	dirs := make([]string, 0, len(files))
	for dir, n := range files {
		if n == 0 {
			dirs = append(dirs, dir)
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	pruned := 0
	for _, dir := range dirs {
		if isSizeDir(dir) {
			continue
		}
		if err := os.Remove(dir); err == nil {
			pruned++
		}
	}
	return pruned
}

func isSizeDir(dir string) bool {
	return filepath.Base(filepath.Dir(dir)) == string(tierCache)
}
