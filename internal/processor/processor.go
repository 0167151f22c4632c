package processor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/media/sniffer"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
)

type Settings struct {
	Workers         int
	MaxUploadBytes  int64
	WebP            bool
	ProgressiveJPEG bool
	JPEGQuality     int
	WebPQuality     int
}

func DefaultSettings() Settings {
	return Settings{
		Workers:        3,
		MaxUploadBytes: 50 << 20,
		WebP:           true,
		JPEGQuality:    88,
		WebPQuality:    85,
	}
}

type Result struct {
	Metadata models.ImageMetadata
	Variants []models.ImageVariant
	Data     map[models.Size][]byte
}

type Processor struct {
	settings Settings
	pool     *Pool
	encoder  encoderFunc
	log      zerolog.Logger
	now      func() time.Time
}

func NewProcessor(settings Settings, log zerolog.Logger) *Processor {
	if settings.JPEGQuality <= 0 {
		settings.JPEGQuality = 88
	}
	if settings.WebPQuality <= 0 {
		settings.WebPQuality = 85
	}

	p := &Processor{
		settings: settings,
		pool:     NewPool(settings.Workers),
		log:      log.With().Str("component", "processor").Logger(),
		now:      time.Now,
	}
	p.encoder = p.encode

	if settings.ProgressiveJPEG {
		p.log.Info().Msg("progressive jpeg requested; encoder writes baseline jpeg")
	}
	return p
}

// CheckContentType rejects declared MIME types that cannot be images. It
// runs before any quota or filesystem work.
func CheckContentType(contentType string) error {
	if !sniffer.IsImageMIME(contentType) {
		return newError(ReasonInvalidContentType, nil, "content type %q is not an image", sniffer.NormalizeMIME(contentType))
	}
	return nil
}

type rendered struct {
	variant models.ImageVariant
	data    []byte
}

func (p *Processor) Process(ctx context.Context, data []byte, filename, ownerID, contentID string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.settings.MaxUploadBytes > 0 && int64(len(data)) > p.settings.MaxUploadBytes {
		return nil, newError(ReasonTooLarge, nil, "upload is %d bytes, limit is %d", len(data), p.settings.MaxUploadBytes)
	}
	if len(data) == 0 {
		return nil, newError(ReasonInvalidImage, nil, "empty upload")
	}

	kind, err := sniffer.DetectHead(data)
	if err != nil {
		return nil, newError(ReasonInvalidImage, err, "cannot identify %q", filename)
	}
	if !kind.Rasterizable() {
		return nil, newError(ReasonUnsupportedFormat, nil, "%s images are not supported", kind.Type)
	}

	sum := sha256.Sum256(data)

	var img image.Image
	err = p.pool.Do(ctx, func() error {
		decoded, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return err
		}
		img = decoded
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newError(ReasonInvalidImage, err, "decode %q", filename)
	}

	bounds := img.Bounds()
	meta := models.ImageMetadata{
		Filename:         fmt.Sprintf("%s.%s", contentID, originalFormat(kind.Type).Ext()),
		OriginalFilename: filename,
		SizeBytes:        int64(len(data)),
		Width:            bounds.Dx(),
		Height:           bounds.Dy(),
		ContentType:      kind.MIME,
		CreatedAt:        p.now().UTC(),
		OwnerID:          ownerID,
		ContentID:        contentID,
		Checksum:         hex.EncodeToString(sum[:]),
	}

	outputs := make([]*rendered, len(variantPlan))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range variantPlan {
		g.Go(func() error {
			return p.pool.Do(gctx, func() error {
				out, err := p.render(img, spec, kind.Type)
				if err != nil {
					p.log.Warn().
						Err(err).
						Str("content_id", contentID).
						Str("size", string(spec.size)).
						Msg("variant skipped")
					return nil
				}
				outputs[i] = out
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Metadata: meta,
		Data:     make(map[models.Size][]byte, len(variantPlan)),
	}
	for _, out := range outputs {
		if out == nil {
			continue
		}
		result.Variants = append(result.Variants, out.variant)
		result.Data[out.variant.Size] = out.data
	}

	if len(result.Variants) == 0 {
		return nil, newError(ReasonNoVariants, nil, "no variant of %q could be encoded", filename)
	}
	return result, nil
}

func (p *Processor) render(img image.Image, spec variantSpec, source sniffer.MediaType) (*rendered, error) {
	out := img
	if spec.resized() {
		out = imaging.Fit(img, spec.width, spec.height, imaging.Lanczos)
	}

	format := p.formatFor(spec.size, source)
	encoded, err := p.encoder(out, format)
	if err != nil {
		return nil, err
	}

	b := out.Bounds()
	return &rendered{
		variant: models.ImageVariant{
			Size:      spec.size,
			Width:     b.Dx(),
			Height:    b.Dy(),
			SizeBytes: int64(len(encoded)),
			Format:    format,
		},
		data: encoded,
	}, nil
}
