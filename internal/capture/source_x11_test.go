//go:build linux

package capture

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyBGRX(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 4, 3))
	fillOpaqueBlack(dst)

	// 2x2 block of BGRX pixels placed at (1,1).
	data := []byte{
		10, 20, 30, 0, 11, 21, 31, 0,
		12, 22, 32, 0, 13, 23, 33, 0,
	}
	require.NoError(t, copyBGRX(dst, image.Pt(1, 1), data, 2, 2))

	assert.Equal(t, color.RGBA{A: 0xff}, dst.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 30, G: 20, B: 10, A: 0xff}, dst.RGBAAt(1, 1))
	assert.Equal(t, color.RGBA{R: 31, G: 21, B: 11, A: 0xff}, dst.RGBAAt(2, 1))
	assert.Equal(t, color.RGBA{R: 33, G: 23, B: 13, A: 0xff}, dst.RGBAAt(2, 2))
	assert.Equal(t, color.RGBA{A: 0xff}, dst.RGBAAt(3, 2))
}

func TestCopyBGRXShortData(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 2, 2))
	assert.ErrorIs(t, copyBGRX(dst, image.Point{}, make([]byte, 12), 2, 2), errShortImage)
}
