// Package raster converts between image.Image and float planes in [0,1].
package raster

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	// upload formats
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// luminance weights (ITU-R BT.709)
const (
	lr = 0.2125
	lg = 0.7154
	lb = 0.0721
)

// Gray is a single row-major plane.
type Gray struct {
	W, H int
	Pix  []float64
}

func NewGray(w, h int) *Gray {
	return &Gray{W: w, H: h, Pix: make([]float64, w*h)}
}

// Copy returns a deep copy.
func (g *Gray) Copy() *Gray {
	c := NewGray(g.W, g.H)
	copy(c.Pix, g.Pix)
	return c
}

// Crop returns the top-left w x h region.
func (g *Gray) Crop(w, h int) *Gray {
	c := NewGray(w, h)
	for y := range h {
		copy(c.Pix[y*w:(y+1)*w], g.Pix[y*g.W:y*g.W+w])
	}
	return c
}

// Image quantizes the plane to 8 bits.
func (g *Gray) Image() *image.Gray {
	dist := image.NewGray(image.Rect(0, 0, g.W, g.H))
	for i, v := range g.Pix {
		dist.Pix[i] = quantize(v)
	}
	return dist
}

// RGB holds three row-major planes: R, G, B.
type RGB struct {
	W, H   int
	Planes [3][]float64
}

func NewRGB(w, h int) *RGB {
	c := &RGB{W: w, H: h}
	for i := range c.Planes {
		c.Planes[i] = make([]float64, w*h)
	}
	return c
}

// Image quantizes the planes to an opaque 8-bit RGBA image.
func (c *RGB) Image() *image.RGBA {
	dist := image.NewRGBA(image.Rect(0, 0, c.W, c.H))
	for i := range c.W * c.H {
		dist.Pix[i*4+0] = quantize(c.Planes[0][i])
		dist.Pix[i*4+1] = quantize(c.Planes[1][i])
		dist.Pix[i*4+2] = quantize(c.Planes[2][i])
		dist.Pix[i*4+3] = 0xff
	}
	return dist
}

// ToRGB reads src into float planes. Alpha is ignored.
func ToRGB(src image.Image) *RGB {
	bounds := src.Bounds()
	c := NewRGB(bounds.Dx(), bounds.Dy())
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b := channels(src.At(x, y))
			c.Planes[0][idx] = r
			c.Planes[1][idx] = g
			c.Planes[2][idx] = b
			idx++
		}
	}
	return c
}

// ToGray reads src into a luminance plane.
func ToGray(src image.Image) *Gray {
	bounds := src.Bounds()
	g := NewGray(bounds.Dx(), bounds.Dy())
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, gr, b := channels(src.At(x, y))
			g.Pix[idx] = lr*r + lg*gr + lb*b
			idx++
		}
	}
	return g
}

// Fit downscales src so that its longer side is at most maxSide.
// src is returned unchanged when it already fits or maxSide < 1.
func Fit(src image.Image, maxSide int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if maxSide < 1 || max(w, h) <= maxSide {
		return src
	}
	if w >= h {
		h = max(1, h*maxSide/w)
		w = maxSide
	} else {
		w = max(1, w*maxSide/h)
		h = maxSide
	}
	dist := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dist, dist.Bounds(), src, bounds, draw.Over, nil)
	return dist
}

// Clip clamps every value of data to [0,1] in place.
func Clip(data []float64) {
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		} else if v > 1 {
			data[i] = 1
		}
	}
}

func channels(c color.Color) (r, g, b float64) {
	// 8-bit precision, matching the stored upload
	nrgba := color.NRGBAModel.Convert(c).(color.NRGBA)
	return float64(nrgba.R) / 255, float64(nrgba.G) / 255, float64(nrgba.B) / 255
}

func quantize(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}
