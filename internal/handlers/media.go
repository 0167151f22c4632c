package handlers

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/media/sniffer"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/security"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/storage"
)

// ServeVariant streams one stored variant. Signed URLs are verified against
// the same public path the storage layer signed.
func (h HandlerSet) ServeVariant(c *gin.Context) {
	size, ok := models.ParseSize(c.Param("size"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_size"})
		return
	}
	owner := c.Param("owner")
	file := c.Param("file")

	ext := strings.TrimPrefix(path.Ext(file), ".")
	format, ok := models.FormatFromExt(ext)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_format"})
		return
	}
	contentID := strings.TrimSuffix(file, "."+ext)

	public := strings.TrimSuffix(h.baseURL, "/") + "/" + path.Join(string(size), owner, file)
	if err := h.signer.Verify(public, c.Query("exp"), c.Query("sig")); err != nil {
		code := "invalid_signature"
		switch {
		case errors.Is(err, security.ErrSignatureMissing):
			code = "signature_required"
		case errors.Is(err, security.ErrSignatureExpired):
			code = "signature_expired"
		}
		c.JSON(http.StatusForbidden, gin.H{"error": code})
		return
	}

	data, err := h.variants.Variant(c.Request.Context(), owner, contentID, size)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidID):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		default:
			h.log.Error().
				Err(err).
				Str("owner_id", owner).
				Str("content_id", contentID).
				Str("size", string(size)).
				Msg("serve variant failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		}
		return
	}

	contentType := format.MIME()
	if kind, err := sniffer.DetectHead(data); err == nil {
		contentType = kind.MIME
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, contentType, data)
}
