package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
)

type tier string

const (
	tierMain  tier = "images"
	tierCache tier = "cache"

	metadataDir = "metadata"
	tempDir     = "temp"

	// hotCacheMaxBytes keeps oversized thumbnails out of the hot tier.
	hotCacheMaxBytes = 1 << 20
)

func qualifiesForHotCache(size models.Size, n int) bool {
	return size.HotCacheable() && n < hotCacheMaxBytes
}

func validateID(kind, id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %s %q", ErrInvalidID, kind, id)
	}
	return nil
}

func validateIDs(ownerID, contentID string) error {
	if err := validateID("owner id", ownerID); err != nil {
		return err
	}
	return validateID("content id", contentID)
}

func (s *FileSystem) tierRoot(t tier) string {
	return filepath.Join(s.settings.BasePath, string(t))
}

func (s *FileSystem) variantPath(t tier, size models.Size, ownerID, contentID string, format models.Format) string {
	return filepath.Join(s.settings.BasePath, string(t), string(size), ownerID, contentID+"."+format.Ext())
}

func (s *FileSystem) sidecarPath(ownerID, contentID string) string {
	return filepath.Join(s.settings.BasePath, metadataDir, ownerID, contentID+".json")
}

func (s *FileSystem) tempRoot() string {
	return filepath.Join(s.settings.BasePath, tempDir)
}

func (s *FileSystem) variantURL(size models.Size, ownerID, contentID string, format models.Format) string {
	base := strings.TrimSuffix(s.settings.BaseURL, "/")
	return base + "/" + path.Join(string(size), ownerID, contentID+"."+format.Ext())
}

func (s *FileSystem) signedURL(size models.Size, ownerID, contentID string, format models.Format) string {
	return s.signer.Sign(s.variantURL(size, ownerID, contentID, format))
}
