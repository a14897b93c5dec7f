//go:build libjpeg && cgo

package capture

import (
	"fmt"
	"image"
	"io"

	libjpeg "github.com/pixiv/go-libjpeg/jpeg"
)

func init() {
	newFastEncoder = func() (Encoder, error) { return libjpegEncoder{}, nil }
}

// libjpegEncoder hands the RGBA pixel buffer straight to libjpeg-turbo.
type libjpegEncoder struct{}

func (libjpegEncoder) Name() string { return "libjpeg-turbo" }

func (libjpegEncoder) Encode(w io.Writer, src *image.RGBA, width, height, quality int) error {
	img := prepare(src, width, height)
	err := libjpeg.Encode(w, img, &libjpeg.EncoderOptions{
		Quality:   quality,
		DCTMethod: libjpeg.DCTIFast,
	})
	if err != nil {
		return fmt.Errorf("libjpeg encode: %w", err)
	}
	return nil
}
