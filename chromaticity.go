package intrinsic

import "math"

// intensityFloor keeps log(gray) finite for black pixels.
const intensityFloor = 1e-4

// Scene holds the per-image layers derived once from the input and shared
// read-only by all later stages.
type Scene struct {
	W, H    int
	Mask    *Mask
	Gray    *Grid  // mean of the RGB channels
	LogGray *Grid  // log(max(Gray, 1e-4)) inside the mask, 0 outside
	Chrom   *Image // RGB divided by R+G+B
}

// Chromaticity derives gray, log-gray and chromaticity layers from a linear
// RGB image.
func Chromaticity(img *Image, mask *Mask) (*Scene, error) {
	if len(img.Pix) != img.W*img.H*3 {
		return nil, ShapeError{What: "image buffer", WantW: img.W, WantH: img.H, GotW: len(img.Pix) / 3, GotH: 1}
	}
	if mask.W != img.W || mask.H != img.H || len(mask.Bits) != mask.W*mask.H {
		return nil, ShapeError{What: "mask", WantW: img.W, WantH: img.H, GotW: mask.W, GotH: mask.H}
	}
	w, h := img.W, img.H
	sc := &Scene{
		W:       w,
		H:       h,
		Mask:    mask,
		Gray:    NewGrid(w, h),
		LogGray: NewGrid(w, h),
		Chrom:   NewImage(w, h),
	}

	parallelStripes(h, func(_, startY, endY int) {
		for y := startY; y < endY; y++ {
			for x := range w {
				off := pixOffset(w, x, y)
				r, g, b := img.Pix[off], img.Pix[off+1], img.Pix[off+2]
				sum := r + g + b
				gray := sum / 3

				pIdx := labelOffset(w, x, y)
				sc.Gray.Pix[pIdx] = gray
				if mask.Bits[pIdx] {
					sc.LogGray.Pix[pIdx] = math.Log(max(gray, intensityFloor))
				}

				inv := 1 / max(sum, intensityFloor)
				sc.Chrom.Pix[off] = r * inv
				sc.Chrom.Pix[off+1] = g * inv
				sc.Chrom.Pix[off+2] = b * inv
			}
		}
	})
	return sc, nil
}

// RetinexContour marks every masked pixel that has at least one 4-neighbour
// judged to be a different surface with 0 and every other masked pixel with 1.
// Pixels outside the mask are 0. Useful for inspecting ThresholdChrom.
func RetinexContour(sc *Scene, thresholdChrom float64) *Grid {
	out := NewGrid(sc.W, sc.H)
	for y := range sc.H {
		for x := range sc.W {
			if !sc.Mask.At(x, y) {
				continue
			}
			v := 1.0
			for k := range 4 {
				nx, ny := x+dx4[k], y+dy4[k]
				if nx < 0 || nx >= sc.W || ny < 0 || ny >= sc.H {
					continue
				}
				if PairWeight(sc.Chrom, Coord{y, x}, Coord{ny, nx}, thresholdChrom) == 0 {
					v = 0
					break
				}
			}
			out.Set(x, y, v)
		}
	}
	return out
}
