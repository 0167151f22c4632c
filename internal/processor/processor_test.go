package processor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
)

func transparentPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 0})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solidJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// withOrientation splices an EXIF APP1 segment carrying the given
// orientation tag right after the JPEG SOI marker.
func withOrientation(t *testing.T, jpg []byte, orientation uint16) []byte {
	t.Helper()
	require.True(t, len(jpg) > 2 && jpg[0] == 0xff && jpg[1] == 0xd8)

	payload := []byte("Exif\x00\x00")
	payload = append(payload, 'M', 'M', 0x00, 0x2a, 0x00, 0x00, 0x00, 0x08)
	payload = append(payload, 0x00, 0x01)
	payload = append(payload,
		0x01, 0x12, // orientation
		0x00, 0x03, // SHORT
		0x00, 0x00, 0x00, 0x01,
		byte(orientation>>8), byte(orientation), 0x00, 0x00,
	)
	payload = append(payload, 0x00, 0x00, 0x00, 0x00)

	size := len(payload) + 2
	out := []byte{0xff, 0xd8, 0xff, 0xe1, byte(size >> 8), byte(size)}
	out = append(out, payload...)
	return append(out, jpg[2:]...)
}

func paletteGIF(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, w, h), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}

func newTestProcessor(webp bool) *Processor {
	settings := DefaultSettings()
	settings.WebP = webp
	settings.Workers = 2
	return NewProcessor(settings, zerolog.Nop())
}

func variantBySize(res *Result, size models.Size) (models.ImageVariant, bool) {
	for _, v := range res.Variants {
		if v.Size == size {
			return v, true
		}
	}
	return models.ImageVariant{}, false
}

func TestProcessTransparentPNGFlattensLossyVariants(t *testing.T) {
	p := newTestProcessor(false)
	data := transparentPNG(t, 10, 10)

	res, err := p.Process(context.Background(), data, "dot.png", "owner-1", "photo-1")
	require.NoError(t, err)
	require.Len(t, res.Variants, 5)

	for _, size := range []models.Size{models.SizeThumb, models.SizeSmall, models.SizeMedium, models.SizeLarge} {
		v, ok := variantBySize(res, size)
		require.True(t, ok, size)
		assert.Equal(t, models.FormatJPEG, v.Format, size)
		assert.Equal(t, 10, v.Width)
		assert.Equal(t, 10, v.Height)

		decoded, err := jpeg.Decode(bytes.NewReader(res.Data[size]))
		require.NoError(t, err)
		r, g, b, _ := decoded.At(5, 5).RGBA()
		assert.Greater(t, r>>8, uint32(240))
		assert.Greater(t, g>>8, uint32(240))
		assert.Greater(t, b>>8, uint32(240))
	}

	original, ok := variantBySize(res, models.SizeOriginal)
	require.True(t, ok)
	assert.Equal(t, models.FormatPNG, original.Format)

	decoded, err := png.Decode(bytes.NewReader(res.Data[models.SizeOriginal]))
	require.NoError(t, err)
	_, _, _, a := decoded.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), a)

	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), res.Metadata.Checksum)
	assert.Equal(t, "image/png", res.Metadata.ContentType)
	assert.Equal(t, "photo-1.png", res.Metadata.Filename)
	assert.Equal(t, "dot.png", res.Metadata.OriginalFilename)
	assert.Equal(t, int64(len(data)), res.Metadata.SizeBytes)
	assert.Equal(t, "owner-1", res.Metadata.OwnerID)
}

func TestProcessResizesWithinBounds(t *testing.T) {
	p := newTestProcessor(true)

	res, err := p.Process(context.Background(), solidJPEG(t, 2000, 1000), "wide.jpg", "o", "c")
	require.NoError(t, err)

	tests := []struct {
		size   models.Size
		width  int
		height int
		format models.Format
	}{
		{models.SizeThumb, 150, 75, models.FormatWEBP},
		{models.SizeSmall, 400, 200, models.FormatWEBP},
		{models.SizeMedium, 800, 400, models.FormatWEBP},
		{models.SizeLarge, 1600, 800, models.FormatJPEG},
		{models.SizeOriginal, 2000, 1000, models.FormatJPEG},
	}
	for _, tt := range tests {
		v, ok := variantBySize(res, tt.size)
		require.True(t, ok, tt.size)
		assert.Equal(t, tt.width, v.Width, tt.size)
		assert.Equal(t, tt.height, v.Height, tt.size)
		assert.Equal(t, tt.format, v.Format, tt.size)
		assert.Equal(t, int64(len(res.Data[tt.size])), v.SizeBytes)
	}
	assert.Equal(t, 2000, res.Metadata.Width)
	assert.Equal(t, 1000, res.Metadata.Height)
}

func TestProcessOtherFormatsFallBackToJPEG(t *testing.T) {
	p := newTestProcessor(false)

	res, err := p.Process(context.Background(), paletteGIF(t, 20, 20), "anim.gif", "o", "c")
	require.NoError(t, err)

	original, ok := variantBySize(res, models.SizeOriginal)
	require.True(t, ok)
	assert.Equal(t, models.FormatJPEG, original.Format)
	assert.Equal(t, "c.jpg", res.Metadata.Filename)
}

func TestProcessRejectsBadInput(t *testing.T) {
	p := newTestProcessor(false)
	p.settings.MaxUploadBytes = 1024

	tests := []struct {
		name   string
		data   []byte
		reason Reason
	}{
		{"empty", nil, ReasonInvalidImage},
		{"text", []byte("just some text, not an image"), ReasonInvalidImage},
		{"svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), ReasonUnsupportedFormat},
		{"truncated png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0}, ReasonInvalidImage},
		{"too large", bytes.Repeat([]byte{0xff}, 2048), ReasonTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Process(context.Background(), tt.data, "f", "o", "c")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrProcessing)
			reason, ok := ReasonOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestProcessSkipsFailedVariants(t *testing.T) {
	p := newTestProcessor(false)
	p.encoder = func(img image.Image, format models.Format) ([]byte, error) {
		if img.Bounds().Dx() == 150 {
			return nil, errors.New("boom")
		}
		return p.encode(img, format)
	}

	res, err := p.Process(context.Background(), solidJPEG(t, 300, 300), "sq.jpg", "o", "c")
	require.NoError(t, err)
	assert.Len(t, res.Variants, 4)
	_, ok := variantBySize(res, models.SizeThumb)
	assert.False(t, ok)
	assert.NotContains(t, res.Data, models.SizeThumb)
}

func TestProcessFailsWhenNoVariantEncodes(t *testing.T) {
	p := newTestProcessor(false)
	p.encoder = func(image.Image, models.Format) ([]byte, error) {
		return nil, errors.New("encoder unavailable")
	}

	_, err := p.Process(context.Background(), solidJPEG(t, 50, 50), "x.jpg", "o", "c")
	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonNoVariants, reason)
}

func TestProcessHonoursCancelledContext(t *testing.T) {
	p := newTestProcessor(false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, solidJPEG(t, 50, 50), "x.jpg", "o", "c")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckContentType(t *testing.T) {
	assert.NoError(t, CheckContentType("image/jpeg"))
	assert.NoError(t, CheckContentType(""))

	err := CheckContentType("text/plain")
	assert.ErrorIs(t, err, ErrProcessing)
	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonInvalidContentType, reason)
}

func TestProcessAppliesEXIFOrientation(t *testing.T) {
	p := newTestProcessor(false)
	data := withOrientation(t, solidJPEG(t, 40, 20), 6)

	res, err := p.Process(context.Background(), data, "rotated.jpg", "owner-1", "photo-rot")
	require.NoError(t, err)
	assert.Equal(t, 20, res.Metadata.Width)
	assert.Equal(t, 40, res.Metadata.Height)

	large, ok := variantBySize(res, models.SizeLarge)
	require.True(t, ok)
	assert.Equal(t, 20, large.Width)
	assert.Equal(t, 40, large.Height)

	decoded, err := jpeg.Decode(bytes.NewReader(res.Data[models.SizeLarge]))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 40), decoded.Bounds())
}

func TestProcessWithoutOrientationKeepsDimensions(t *testing.T) {
	p := newTestProcessor(false)

	res, err := p.Process(context.Background(), withOrientation(t, solidJPEG(t, 40, 20), 1), "upright.jpg", "owner-1", "photo-up")
	require.NoError(t, err)
	assert.Equal(t, 40, res.Metadata.Width)
	assert.Equal(t, 20, res.Metadata.Height)
}
