package capture

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/kimhsiao/damagelog/backend/internal/logging"
	"github.com/kimhsiao/damagelog/backend/internal/models"
)

// DefaultMaxPixels is the largest image decoded for downscaling.
const DefaultMaxPixels = 64 << 20

// ImageOptions bounds the size of stored photos.
type ImageOptions struct {
	MaxDimension int // longest side in pixels, 0 keeps originals
	MaxPixels    int // decode limit, 0 means DefaultMaxPixels
	JPEGQuality  int
}

func (o ImageOptions) maxPixels() int64 {
	if o.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return int64(o.MaxPixels)
}

// normalizeImage downscales photos larger than MaxDimension and re-encodes them
// as JPEG. Images that cannot be decoded, are already small enough or exceed
// the decode limit are kept as captured.
func normalizeImage(a models.Attachment, opts ImageOptions) models.Attachment {
	if opts.MaxDimension <= 0 {
		return a
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(a.Data))
	if err != nil {
		logging.Debug("Keeping undecodable image as captured", map[string]interface{}{
			"content_type": a.ContentType,
			"bytes":        a.Size(),
		})
		return a
	}
	if cfg.Width <= opts.MaxDimension && cfg.Height <= opts.MaxDimension {
		return a
	}
	if int64(cfg.Width)*int64(cfg.Height) > opts.maxPixels() {
		logging.Warn("Image too large to downscale, keeping original", map[string]interface{}{
			"width":  cfg.Width,
			"height": cfg.Height,
		})
		return a
	}

	img, err := imaging.Decode(bytes.NewReader(a.Data), imaging.AutoOrientation(true))
	if err != nil {
		return a
	}
	resized := imaging.Fit(img, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(opts.JPEGQuality)); err != nil {
		logging.Warn("Image re-encode failed, keeping original", map[string]interface{}{"error": err.Error()})
		return a
	}

	logging.Debug("Downscaled image", map[string]interface{}{
		"from":  []int{cfg.Width, cfg.Height},
		"to":    []int{resized.Bounds().Dx(), resized.Bounds().Dy()},
		"bytes": buf.Len(),
	})
	return models.Attachment{ContentType: "image/jpeg", Data: buf.Bytes()}
}
