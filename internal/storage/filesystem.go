package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/processor"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/security"
)

type sidecar struct {
	Metadata models.ImageMetadata  `json:"metadata"`
	Variants []models.ImageVariant `json:"variants"`
}

// FileSystem stores variants on local disk in two tiers: a main tier that
// always holds every variant and a TTL bounded hot tier for small sizes.
type FileSystem struct {
	settings  Settings
	processor ImageProcessor
	signer    *security.URLSigner
	usage     *UsageTracker
	metrics   metricsRecorder
	log       zerolog.Logger

	sweepMu   sync.Mutex
	lastSweep time.Time

	now       func() time.Time
	diskUsage diskUsageFunc
}

var _ Backend = (*FileSystem)(nil)

func NewFileSystem(ctx context.Context, settings Settings, proc ImageProcessor, signer *security.URLSigner, log zerolog.Logger) (*FileSystem, error) {
	if settings.BasePath == "" {
		return nil, errors.New("storage base path is required")
	}
	if settings.HotCacheTTL <= 0 {
		settings.HotCacheTTL = 7 * 24 * time.Hour
	}
	if settings.MinSweepGap <= 0 {
		settings.MinSweepGap = 6 * time.Hour
	}
	if signer == nil {
		signer = security.NewURLSigner("", 0)
	}

	s := &FileSystem{
		settings:  settings,
		processor: proc,
		signer:    signer,
		log:       log.With().Str("component", "storage").Logger(),
		now:       time.Now,
		diskUsage: disk.UsageWithContext,
	}

	for _, dir := range []string{string(tierMain), string(tierCache), metadataDir, tempDir} {
		if err := os.MkdirAll(filepath.Join(settings.BasePath, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", dir, classify(err))
		}
	}

	s.usage = newUsageTracker(settings.BasePath, []string{string(tierMain), string(tierCache), metadataDir}, s.diskUsage, s.log)
	used, err := s.usage.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed storage usage: %w", err)
	}

	s.log.Info().
		Str("base_path", settings.BasePath).
		Int64("used_bytes", used).
		Int64("max_bytes", settings.MaxBytes).
		Msg("storage ready")
	return s, nil
}

func (s *FileSystem) Usage() *UsageTracker {
	return s.usage
}

func (s *FileSystem) Store(ctx context.Context, in StoreInput) (*models.StoredImage, error) {
	if err := validateIDs(in.OwnerID, in.ContentID); err != nil {
		return nil, err
	}
	if err := processor.CheckContentType(in.ContentType); err != nil {
		return nil, err
	}

	incoming := int64(len(in.Data))
	if used := s.usage.Used(); s.settings.MaxBytes > 0 && used+incoming > s.settings.MaxBytes {
		err := &QuotaError{Used: used, Incoming: incoming, Max: s.settings.MaxBytes}
		s.log.Warn().
			Err(err).
			Str("owner_id", in.OwnerID).
			Str("content_id", in.ContentID).
			Msg("store rejected")
		return nil, err
	}

	started := s.now()
	result, err := s.processor.Process(ctx, in.Data, in.Filename, in.OwnerID, in.ContentID)
	s.metrics.recordProcessing(s.now().Sub(started))
	if err != nil {
		return nil, err
	}

	written, err := s.persist(ctx, in.OwnerID, in.ContentID, result)
	if err != nil {
		if _, purgeErr := s.purge(in.OwnerID, in.ContentID); purgeErr != nil {
			s.log.Error().
				Err(purgeErr).
				Str("owner_id", in.OwnerID).
				Str("content_id", in.ContentID).
				Msg("cleanup after failed store")
		}
		return nil, &OpError{Op: "store", OwnerID: in.OwnerID, ContentID: in.ContentID, Err: err}
	}

	elapsed := s.now().Sub(started)
	s.metrics.recordUpload(elapsed, written)

	stored := &models.StoredImage{
		ContentID: in.ContentID,
		OwnerID:   in.OwnerID,
		Metadata:  result.Metadata,
		Variants:  result.Variants,
		URLs:      make(map[models.Size]string, len(result.Variants)),
	}
	for i := range stored.Variants {
		v := &stored.Variants[i]
		v.URL = s.signedURL(v.Size, in.OwnerID, in.ContentID, v.Format)
		stored.URLs[v.Size] = v.URL
	}

	s.log.Info().
		Str("owner_id", in.OwnerID).
		Str("content_id", in.ContentID).
		Int("variants", len(stored.Variants)).
		Int64("bytes", written).
		Dur("duration", elapsed).
		Msg("image stored")
	return stored, nil
}

func (s *FileSystem) persist(ctx context.Context, ownerID, contentID string, result *processor.Result) (int64, error) {
	if _, err := s.purge(ownerID, contentID); err != nil {
		return 0, fmt.Errorf("remove previous version: %w", err)
	}

	var written int64
	for _, v := range result.Variants {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		data := result.Data[v.Size]

		if err := s.writeFile(s.variantPath(tierMain, v.Size, ownerID, contentID, v.Format), data); err != nil {
			return written, fmt.Errorf("write %s variant: %w", v.Size, err)
		}
		written += int64(len(data))

		if !qualifiesForHotCache(v.Size, len(data)) {
			continue
		}
		if err := s.writeFile(s.variantPath(tierCache, v.Size, ownerID, contentID, v.Format), data); err != nil {
			s.log.Warn().
				Err(err).
				Str("content_id", contentID).
				Str("size", string(v.Size)).
				Msg("hot cache write failed")
			continue
		}
		written += int64(len(data))
	}

	record, err := json.Marshal(sidecar{Metadata: result.Metadata, Variants: result.Variants})
	if err != nil {
		return written, fmt.Errorf("encode metadata: %w", err)
	}
	if err := s.writeFile(s.sidecarPath(ownerID, contentID), record); err != nil {
		return written, fmt.Errorf("write metadata: %w", err)
	}
	return written + int64(len(record)), nil
}

func (s *FileSystem) Retrieve(ctx context.Context, ownerID, contentID string, size models.Size) ([]byte, error) {
	if err := validateIDs(ownerID, contentID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if size.HotCacheable() {
		if data, _, err := s.readVariant(tierCache, size, ownerID, contentID); err == nil {
			s.metrics.hits.Add(1)
			s.metrics.recordRetrieve(len(data))
			return data, nil
		}
		s.metrics.misses.Add(1)
	}

	data, format, err := s.readVariant(tierMain, size, ownerID, contentID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &OpError{Op: "retrieve", OwnerID: ownerID, ContentID: contentID, Err: ErrNotFound}
		}
		return nil, &OpError{Op: "retrieve", OwnerID: ownerID, ContentID: contentID, Err: classify(err)}
	}

	if qualifiesForHotCache(size, len(data)) {
		if err := s.promote(size, ownerID, contentID, format, data); err != nil {
			s.log.Warn().
				Err(err).
				Str("content_id", contentID).
				Str("size", string(size)).
				Msg("hot cache promotion failed")
		}
	}

	s.metrics.recordRetrieve(len(data))
	return data, nil
}

// The main file is checked again after the copy so a concurrent Delete never
// leaves a hot-only variant behind.
func (s *FileSystem) promote(size models.Size, ownerID, contentID string, format models.Format, data []byte) error {
	hot := s.variantPath(tierCache, size, ownerID, contentID, format)
	if err := s.writeFile(hot, data); err != nil {
		return err
	}
	if _, err := os.Stat(s.variantPath(tierMain, size, ownerID, contentID, format)); err == nil {
		return nil
	}
	if err := os.Remove(hot); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("drop orphaned hot copy: %w", err)
	}
	s.usage.Add(-int64(len(data)))
	return nil
}

func (s *FileSystem) readVariant(t tier, size models.Size, ownerID, contentID string) ([]byte, models.Format, error) {
	for _, f := range models.AllFormats {
		data, err := os.ReadFile(s.variantPath(t, size, ownerID, contentID, f))
		if err == nil {
			return data, f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}
	}
	return nil, "", fs.ErrNotExist
}

func (s *FileSystem) Locate(ownerID, contentID string, size models.Size) (string, models.Format, error) {
	if err := validateIDs(ownerID, contentID); err != nil {
		return "", "", err
	}
	for _, f := range models.AllFormats {
		p := s.variantPath(tierMain, size, ownerID, contentID, f)
		if _, err := os.Stat(p); err == nil {
			return p, f, nil
		}
	}
	return "", "", &OpError{Op: "locate", OwnerID: ownerID, ContentID: contentID, Err: ErrNotFound}
}

func (s *FileSystem) GetURLs(ctx context.Context, ownerID, contentID string) (map[models.Size]string, error) {
	if err := validateIDs(ownerID, contentID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	urls := make(map[models.Size]string, len(models.AllSizes))
	for _, size := range models.AllSizes {
		for _, f := range models.AllFormats {
			if _, err := os.Stat(s.variantPath(tierMain, size, ownerID, contentID, f)); err == nil {
				urls[size] = s.signedURL(size, ownerID, contentID, f)
				break
			}
		}
	}
	if len(urls) == 0 {
		return nil, &OpError{Op: "urls", OwnerID: ownerID, ContentID: contentID, Err: ErrNotFound}
	}
	return urls, nil
}

func (s *FileSystem) Metadata(ctx context.Context, ownerID, contentID string) (*models.ImageMetadata, error) {
	if err := validateIDs(ownerID, contentID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(s.sidecarPath(ownerID, contentID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrNotFound
		}
		return nil, &OpError{Op: "metadata", OwnerID: ownerID, ContentID: contentID, Err: err}
	}

	var rec sidecar
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, &OpError{Op: "metadata", OwnerID: ownerID, ContentID: contentID, Err: fmt.Errorf("decode sidecar: %w", err)}
	}
	return &rec.Metadata, nil
}

func (s *FileSystem) Delete(ctx context.Context, ownerID, contentID string) error {
	if err := validateIDs(ownerID, contentID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	removed, err := s.purge(ownerID, contentID)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("owner_id", ownerID).
			Str("content_id", contentID).
			Msg("delete failed")
		return &OpError{Op: "delete", OwnerID: ownerID, ContentID: contentID, Err: err}
	}

	s.log.Debug().
		Str("owner_id", ownerID).
		Str("content_id", contentID).
		Int("files", removed).
		Msg("image deleted")
	return nil
}

func (s *FileSystem) purge(ownerID, contentID string) (int, error) {
	paths := make([]string, 0, 2*len(models.AllSizes)*len(models.AllFormats)+1)
	for _, t := range []tier{tierMain, tierCache} {
		for _, size := range models.AllSizes {
			for _, f := range models.AllFormats {
				paths = append(paths, s.variantPath(t, size, ownerID, contentID, f))
			}
		}
	}
	paths = append(paths, s.sidecarPath(ownerID, contentID))

	var (
		removed int
		errs    []error
	)
	for _, p := range paths {
		info, err := os.Lstat(p)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
				errs = append(errs, err)
			}
			continue
		}
		if err := os.Remove(p); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, classify(err))
			}
			continue
		}
		s.usage.Add(-info.Size())
		removed++
	}
	return removed, errors.Join(errs...)
}

func (s *FileSystem) StorageInfo(ctx context.Context, ownerID string) (StorageInfo, error) {
	info := StorageInfo{OwnerID: ownerID}
	if err := validateID("owner id", ownerID); err != nil {
		return info, err
	}

	var dirs []string
	for _, t := range []tier{tierMain, tierCache} {
		for _, size := range models.AllSizes {
			dirs = append(dirs, filepath.Join(s.tierRoot(t), string(size), ownerID))
		}
	}
	metaDir := filepath.Join(s.settings.BasePath, metadataDir, ownerID)
	dirs = append(dirs, metaDir)

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return info, &OpError{Op: "info", OwnerID: ownerID, Err: classify(err)}
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return info, err
			}
			if e.IsDir() {
				continue
			}
			fi, err := e.Info()
			if err != nil {
				continue
			}
			info.BytesUsed += fi.Size()
			if dir == metaDir && filepath.Ext(e.Name()) == ".json" {
				info.ItemCount++
			}
		}
	}
	return info, nil
}

func (s *FileSystem) Metrics() StorageMetrics {
	m := s.metrics.snapshot()
	m.UsedBytes = s.usage.Used()
	return m
}

func (s *FileSystem) writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return classify(err)
	}

	var previous int64
	if fi, err := os.Stat(path); err == nil {
		previous = fi.Size()
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return classify(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return classify(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return classify(err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return classify(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return classify(err)
	}

	s.usage.Add(int64(len(data)) - previous)
	return nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EROFS) || errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
