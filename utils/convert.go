package utils

import (
	"image"

	"github.com/mdouchement/hdr"
	_ "github.com/mdouchement/hdr/codec/rgbe"
	"golang.org/x/image/draw"

	"github.com/setanarut/intrinsic"
)

// LinearImage converts a decoded image to linear RGB. Radiance (.hdr) images
// keep their float samples. Other images are treated as sRGB unless linear
// is set.
func LinearImage(src image.Image, linear bool) *intrinsic.Image {
	if h, ok := src.(hdr.Image); ok {
		b := h.Bounds()
		img := intrinsic.NewImage(b.Dx(), b.Dy())
		for y := range b.Dy() {
			for x := range b.Dx() {
				r, g, bl, _ := h.HDRAt(b.Min.X+x, b.Min.Y+y).HDRRGBA()
				img.SetRGB(x, y, r, g, bl)
			}
		}
		return img
	}
	if linear {
		return intrinsic.ImageFromLinear(src)
	}
	return intrinsic.ImageFromStd(src)
}

// Downscale shrinks src so that its longer side is at most maxSide pixels.
// nearest selects nearest-neighbour sampling, which keeps masks binary.
// HDR images and images that already fit are returned unchanged.
func Downscale(src image.Image, maxSide int, nearest bool) image.Image {
	if _, ok := src.(hdr.Image); ok {
		return src
	}
	b := src.Bounds()
	side := max(b.Dx(), b.Dy())
	if maxSide <= 0 || side <= maxSide {
		return src
	}
	w := max(1, b.Dx()*maxSide/side)
	h := max(1, b.Dy()*maxSide/side)
	dst := image.NewNRGBA64(image.Rect(0, 0, w, h))

	var s draw.Scaler = draw.CatmullRom
	if nearest {
		s = draw.NearestNeighbor
	}
	s.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
