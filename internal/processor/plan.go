package processor

import (
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/media/sniffer"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
)

type variantSpec struct {
	size   models.Size
	width  int
	height int
}

func (v variantSpec) resized() bool {
	return v.width > 0 && v.height > 0
}

var variantPlan = []variantSpec{
	{size: models.SizeThumb, width: 150, height: 150},
	{size: models.SizeSmall, width: 400, height: 400},
	{size: models.SizeMedium, width: 800, height: 800},
	{size: models.SizeLarge, width: 1600, height: 1600},
	{size: models.SizeOriginal},
}

func originalFormat(source sniffer.MediaType) models.Format {
	if source == sniffer.TypePNG {
		return models.FormatPNG
	}
	return models.FormatJPEG
}

func (p *Processor) formatFor(size models.Size, source sniffer.MediaType) models.Format {
	switch size {
	case models.SizeThumb, models.SizeSmall, models.SizeMedium:
		if p.settings.WebP {
			return models.FormatWEBP
		}
		return models.FormatJPEG
	case models.SizeOriginal:
		return originalFormat(source)
	default:
		return models.FormatJPEG
	}
}
