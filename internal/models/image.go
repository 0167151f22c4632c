package models

import "time"

type Size string

const (
	SizeThumb    Size = "thumb"
	SizeSmall    Size = "small"
	SizeMedium   Size = "medium"
	SizeLarge    Size = "large"
	SizeOriginal Size = "original"
)

var AllSizes = []Size{SizeThumb, SizeSmall, SizeMedium, SizeLarge, SizeOriginal}

func ParseSize(label string) (Size, bool) {
	for _, s := range AllSizes {
		if string(s) == label {
			return s, true
		}
	}
	return "", false
}

func (s Size) HotCacheable() bool {
	return s == SizeThumb || s == SizeSmall
}

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWEBP Format = "webp"
)

// AllFormats is the probe order used when looking a variant up on disk.
var AllFormats = []Format{FormatWEBP, FormatJPEG, FormatPNG}

func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatPNG:
		return "png"
	case FormatWEBP:
		return "webp"
	}
	return "bin"
}

func (f Format) MIME() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWEBP:
		return "image/webp"
	}
	return "application/octet-stream"
}

func FormatFromExt(ext string) (Format, bool) {
	for _, f := range AllFormats {
		if f.Ext() == ext {
			return f, true
		}
	}
	return "", false
}

type ImageMetadata struct {
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	SizeBytes        int64     `json:"size_bytes"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	ContentType      string    `json:"content_type"`
	CreatedAt        time.Time `json:"created_at"`
	OwnerID          string    `json:"owner_id"`
	ContentID        string    `json:"content_id"`
	Checksum         string    `json:"checksum"`
}

type ImageVariant struct {
	Size      Size   `json:"size"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SizeBytes int64  `json:"size_bytes"`
	URL       string `json:"url"`
	Format    Format `json:"format"`
}

type StoredImage struct {
	ContentID string          `json:"content_id"`
	OwnerID   string          `json:"owner_id"`
	Metadata  ImageMetadata   `json:"metadata"`
	Variants  []ImageVariant  `json:"variants"`
	URLs      map[Size]string `json:"urls"`
}
