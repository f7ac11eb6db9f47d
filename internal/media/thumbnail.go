// Package media generates thumbnails for captured photos so the driver
// UI's pending-uploads list can render previews without loading full
// inspection images.
package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/fleetmove/fieldsync/internal/errors"
)

// Thumbnailer produces small JPEG previews of captured photos.
type Thumbnailer struct {
	maxWidth  int
	maxHeight int
	quality   int
}

// NewThumbnailer creates a Thumbnailer. Non-positive dimensions select the
// 200x200 default used by the pending list.
func NewThumbnailer(maxWidth, maxHeight int) *Thumbnailer {
	if maxWidth <= 0 {
		maxWidth = 200
	}
	if maxHeight <= 0 {
		maxHeight = 200
	}
	return &Thumbnailer{
		maxWidth:  maxWidth,
		maxHeight: maxHeight,
		quality:   80,
	}
}

// Thumbnail decodes a captured image (JPEG, PNG, GIF or WebP) and returns
// a JPEG preview that fits inside the configured bounds, preserving
// aspect ratio.
func (t *Thumbnailer) Thumbnail(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrMediaDecode, "failed to decode image", err)
	}

	thumb := imaging.Fit(img, t.maxWidth, t.maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: t.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
