package raster_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yyyoichi/svdlab/internal/raster"
)

func TestToGray(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	img.Set(1, 0, color.RGBA{0, 255, 0, 255})
	img.Set(2, 0, color.RGBA{0, 0, 255, 255})

	g := raster.ToGray(img)
	require.Equal(t, 3, g.W)
	require.Equal(t, 1, g.H)
	assert.InDelta(t, 0.2125, g.Pix[0], 1e-12)
	assert.InDelta(t, 0.7154, g.Pix[1], 1e-12)
	assert.InDelta(t, 0.0721, g.Pix[2], 1e-12)
}

func TestToRGB_RoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := range 3 {
		for x := range 4 {
			img.Set(x, y, color.RGBA{uint8(x * 60), uint8(y * 100), uint8(x*y*20 + 5), 255})
		}
	}
	c := raster.ToRGB(img)
	for _, p := range c.Planes {
		for _, v := range p {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
	// 8-bit values survive the float round trip
	out := c.Image()
	for y := range 3 {
		for x := range 4 {
			assert.Equal(t, img.RGBAAt(x, y), out.RGBAAt(x, y), "pixel (%d,%d)", x, y)
		}
	}
}

func TestToGray_OffsetBounds(t *testing.T) {
	img := image.NewGray(image.Rect(10, 20, 13, 22))
	img.SetGray(12, 21, color.Gray{Y: 255})
	g := raster.ToGray(img)
	require.Equal(t, 3, g.W)
	require.Equal(t, 2, g.H)
	assert.InDelta(t, 1.0, g.Pix[5], 1e-12)
	assert.Equal(t, 0.0, g.Pix[0])
}

func TestGray_Crop(t *testing.T) {
	g := raster.NewGray(3, 3)
	for i := range g.Pix {
		g.Pix[i] = float64(i)
	}
	c := g.Crop(2, 2)
	assert.Equal(t, []float64{0, 1, 3, 4}, c.Pix)
}

func TestClip(t *testing.T) {
	data := []float64{-0.5, 0, 0.25, 1, 1.5}
	raster.Clip(data)
	assert.Equal(t, []float64{0, 0, 0.25, 1, 1}, data)
}

func TestFit(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 100))
	assert.Same(t, img, raster.Fit(img, 0))
	assert.Same(t, img, raster.Fit(img, 400))

	fit := raster.Fit(img, 200)
	assert.Equal(t, image.Rect(0, 0, 200, 50), fit.Bounds())

	tall := raster.Fit(image.NewRGBA(image.Rect(0, 0, 30, 90)), 45)
	assert.Equal(t, image.Rect(0, 0, 15, 45), tall.Bounds())
}
