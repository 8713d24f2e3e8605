package providers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"photokeep/internal/apierrors"
)

// ImagingThumbnailer is the concrete Thumbnailer, grounded directly on the
// teacher's internal/imaging/processor.go resize pipeline: stdlib decode,
// disintegration/imaging Lanczos resize, stdlib jpeg encode. The teacher's
// rendition-ladder/crop-mode machinery is generalized down to a single
// target-size parameter, since spec §4.4 only asks for
// (image_bytes, target_size) -> jpeg_bytes.
type ImagingThumbnailer struct {
	quality int
}

// NewImagingThumbnailer returns a Thumbnailer that encodes JPEG at quality
// (1-100, teacher's QualityLevel.GetSettings() "medium" tier default).
func NewImagingThumbnailer(quality int) *ImagingThumbnailer {
	if quality <= 0 {
		quality = 85
	}
	return &ImagingThumbnailer{quality: quality}
}

func (t *ImagingThumbnailer) Thumbnail(ctx context.Context, imageBytes []byte, targetSize int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindPermanentDecode, "unreadable image", err)
	}

	resized := imaging.Fit(src, targetSize, targetSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: t.quality}); err != nil {
		return nil, fmt.Errorf("providers: encode thumbnail jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *ImagingThumbnailer) Health(ctx context.Context) Health {
	return Health{Status: StatusReady, ModelVersion: "imaging-thumbnailer-v1", Device: "cpu"}
}
