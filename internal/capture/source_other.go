//go:build !linux

package capture

import (
	"image"
	"image/draw"

	"github.com/kbinani/screenshot"
)

func init() {
	dialDisplay = dialNative
}

// nativeDisplay captures through the platform APIs wrapped by screenshot.
// Those are per-call on macOS and Windows, so there is no connection to
// hold beyond the display list read at open.
type nativeDisplay struct {
	screens []image.Rectangle
}

func dialNative() (display, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, ErrNoDisplay
	}
	d := &nativeDisplay{}
	for i := 0; i < n; i++ {
		d.screens = append(d.screens, screenshot.GetDisplayBounds(i))
	}
	return d, nil
}

func (d *nativeDisplay) Screens() []image.Rectangle { return d.screens }

func (d *nativeDisplay) Capture(r image.Rectangle, dst *image.RGBA) error {
	img, err := screenshot.CaptureRect(r)
	if err != nil {
		return err
	}
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return nil
}

func (d *nativeDisplay) Close() error { return nil }
