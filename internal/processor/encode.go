package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
)

type encoderFunc func(img image.Image, format models.Format) ([]byte, error)

func (p *Processor) encode(img image.Image, format models.Format) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case models.FormatJPEG:
		if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: p.settings.JPEGQuality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case models.FormatWEBP:
		opts := &webp.Options{
			Lossless: false,
			Quality:  float32(p.settings.WebPQuality),
		}
		if err := webp.Encode(&buf, flatten(img), opts); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	case models.FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}

	return buf.Bytes(), nil
}

// flatten composites images that carry transparency onto white so lossy
// encoders never see an alpha channel.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
