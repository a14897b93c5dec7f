package capture

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
)

// Encoder turns a grabbed frame into a JPEG of the requested size.
// Implementations must resample with the shared Lanczos filter and drop
// alpha so every encoder produces the same picture.
type Encoder interface {
	Name() string
	Encode(w io.Writer, src *image.RGBA, width, height, quality int) error
}

// newFastEncoder is set by builds that link a native JPEG encoder.
var newFastEncoder func() (Encoder, error)

// SelectEncoder resolves the encoder once at startup. The native encoder
// is used when preferred and linked in; otherwise the portable one.
func SelectEncoder(preferFast bool, log zerolog.Logger) Encoder {
	if preferFast {
		if newFastEncoder == nil {
			log.Info().Msg("native jpeg encoder not built in, using portable encoder")
		} else if enc, err := newFastEncoder(); err != nil {
			log.Warn().Err(err).Msg("native jpeg encoder unavailable, using portable encoder")
		} else {
			return enc
		}
	}
	return StdEncoder{}
}

// StdEncoder uses image/jpeg.
type StdEncoder struct{}

func (StdEncoder) Name() string { return "image/jpeg" }

func (StdEncoder) Encode(w io.Writer, src *image.RGBA, width, height, quality int) error {
	img := prepare(src, width, height)
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("jpeg encode: %w", err)
	}
	return nil
}

// lanczos3 is the resampling kernel shared by every encoder.
var lanczos3 = &draw.Kernel{
	Support: 3,
	At: func(t float64) float64 {
		if t == 0 {
			return 1
		}
		x := math.Pi * t
		return 3 * math.Sin(x) * math.Sin(x/3) / (x * x)
	},
}

// prepare resizes src to width x height when the sizes differ and forces
// every pixel opaque. src may be modified in place.
func prepare(src *image.RGBA, width, height int) *image.RGBA {
	dst := src
	if b := src.Bounds(); b.Dx() != width || b.Dy() != height {
		dst = image.NewRGBA(image.Rect(0, 0, width, height))
		lanczos3.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}
	dropAlpha(dst)
	return dst
}

func dropAlpha(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 3; i < len(row); i += 4 {
			row[i] = 0xff
		}
	}
}
