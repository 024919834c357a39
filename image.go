package intrinsic

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Image is a linear RGB image with interleaved channels, len(Pix) = W*H*3.
//
// Image implements image.Image. At returns the gamma-encoded (sRGB) color,
// so palette and display code that expects ordinary images can read it.
type Image struct {
	W, H int
	Pix  []float64
}

// Mask marks the pixels that take part in the solve, len(Bits) = W*H.
type Mask struct {
	W, H int
	Bits []bool
}

// Grid is a single channel float layer, len(Pix) = W*H.
type Grid struct {
	W, H int
	Pix  []float64
}

// Coord addresses a pixel by row (h) and column (w).
type Coord struct {
	Row, Col int
}

func NewImage(w, h int) *Image {
	return &Image{W: w, H: h, Pix: make([]float64, w*h*3)}
}

// NewMask returns a w×h mask with every bit set to fill.
func NewMask(w, h int, fill bool) *Mask {
	m := &Mask{W: w, H: h, Bits: make([]bool, w*h)}
	if fill {
		for i := range m.Bits {
			m.Bits[i] = true
		}
	}
	return m
}

func NewGrid(w, h int) *Grid {
	return &Grid{W: w, H: h, Pix: make([]float64, w*h)}
}

func pixOffset(w, x, y int) int {
	return (y*w + x) * 3
}

func labelOffset(w, x, y int) int {
	return y*w + x
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ImageFromStd converts an ordinary (sRGB encoded) image to linear RGB.
func ImageFromStd(src image.Image) *Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	img := NewImage(w, h)
	for y := range h {
		for x := range w {
			c, _ := colorful.MakeColor(src.At(bounds.Min.X+x, bounds.Min.Y+y))
			r, g, b := c.LinearRgb()
			off := pixOffset(w, x, y)
			img.Pix[off] = r
			img.Pix[off+1] = g
			img.Pix[off+2] = b
		}
	}
	return img
}

// ImageFromLinear copies an image whose samples already hold linear values,
// such as a 16-bit linear TIFF, scaling them to [0,1].
func ImageFromLinear(src image.Image) *Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	img := NewImage(w, h)
	for y := range h {
		for x := range w {
			r, g, b, _ := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			img.SetRGB(x, y, float64(r)/0xffff, float64(g)/0xffff, float64(b)/0xffff)
		}
	}
	return img
}

func (img *Image) RGB(x, y int) (r, g, b float64) {
	off := pixOffset(img.W, x, y)
	return img.Pix[off], img.Pix[off+1], img.Pix[off+2]
}

func (img *Image) SetRGB(x, y int, r, g, b float64) {
	off := pixOffset(img.W, x, y)
	img.Pix[off] = r
	img.Pix[off+1] = g
	img.Pix[off+2] = b
}

func (img *Image) ColorModel() color.Model { return color.RGBA64Model }

func (img *Image) Bounds() image.Rectangle { return image.Rect(0, 0, img.W, img.H) }

func (img *Image) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= img.W || y >= img.H {
		return color.RGBA64{}
	}
	r, g, b := img.RGB(x, y)
	return colorful.LinearRgb(r, g, b).Clamped()
}

func (m *Mask) At(x, y int) bool {
	return m.Bits[labelOffset(m.W, x, y)]
}

func (m *Mask) Set(x, y int, v bool) {
	m.Bits[labelOffset(m.W, x, y)] = v
}

// Count returns the number of set bits.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

func (g *Grid) At(x, y int) float64 {
	return g.Pix[labelOffset(g.W, x, y)]
}

func (g *Grid) Set(x, y int, v float64) {
	g.Pix[labelOffset(g.W, x, y)] = v
}

// Max returns the largest value of the grid, or -Inf for an empty grid.
func (g *Grid) Max() float64 {
	m := math.Inf(-1)
	for _, v := range g.Pix {
		if v > m {
			m = v
		}
	}
	return m
}

// Gray16 renders the grid as a 16-bit grayscale image. Values are clamped to [0,1].
func (g *Grid) Gray16() *image.Gray16 {
	out := image.NewGray16(image.Rect(0, 0, g.W, g.H))
	for y := range g.H {
		for x := range g.W {
			v := min(1.0, max(0.0, g.At(x, y)))
			out.SetGray16(x, y, color.Gray16{Y: uint16(v*65535 + 0.5)})
		}
	}
	return out
}
