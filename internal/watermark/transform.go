package watermark

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	_ "image/png" // PNG decoder registration

	"golang.org/x/image/draw"

	_ "golang.org/x/image/webp" // WebP decoder registration
)

// defaultBandRatio is the fraction of image height the watermark band
// occupies along the bottom edge.
const defaultBandRatio = 0.05

// Transformer rewrites one image payload. Implementations must be safe
// for concurrent use; the pipeline calls Transform from multiple workers.
type Transformer interface {
	Transform(ctx context.Context, data []byte) ([]byte, error)
}

// BandRemover removes the translucent watermark band along the bottom
// edge by cropping it off and rescaling the remaining area back to the
// original dimensions, so page sizes stay uniform across an episode.
//
// The Catmull-Rom algorithm is used for high-quality rescaling, and the
// result is encoded as JPEG regardless of the input format.
type BandRemover struct {
	// BandRatio is the fraction of image height occupied by the band.
	BandRatio float64

	// Quality is the JPEG encoding quality of the output.
	Quality int
}

// NewBandRemover returns a BandRemover with the default band geometry and
// 90% JPEG quality.
func NewBandRemover() *BandRemover {
	return &BandRemover{BandRatio: defaultBandRatio, Quality: 90}
}

// Transform decodes data, drops the bottom watermark band, and rescales
// the remainder to the original bounds.
func (r *BandRemover) Transform(ctx context.Context, data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	band := int(float64(bounds.Dy()) * r.BandRatio)
	if band >= bounds.Dy() {
		return nil, errors.New("image shorter than the watermark band")
	}

	srcRect := image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y-band)
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, srcRect, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: r.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
