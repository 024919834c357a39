package intrinsic

import (
	"fmt"
	"math"
)

// Reconstruct turns the solved log-shading of the active pixels into
// shading and reflectance layers, each normalized by its own maximum.
// Pixels outside the mask are zero in both layers.
func Reconstruct(logShading []float64, idx *ActiveIndex, sc *Scene) (shading, reflectance *Grid, err error) {
	if len(logShading) != idx.Len() {
		return nil, nil, fmt.Errorf("intrinsic: solution has %d entries for %d active pixels: %w", len(logShading), idx.Len(), ErrShapeMismatch)
	}
	if idx.W != sc.W || idx.H != sc.H {
		return nil, nil, ShapeError{What: "active index", WantW: sc.W, WantH: sc.H, GotW: idx.W, GotH: idx.H}
	}

	shading = idx.Scatter(logShading)
	for i, v := range shading.Pix {
		if sc.Mask.Bits[i] {
			shading.Pix[i] = math.Exp(v)
		} else {
			shading.Pix[i] = 0
		}
	}
	if err := normalizeByMax(shading, "shading"); err != nil {
		return nil, nil, err
	}

	reflectance = NewGrid(sc.W, sc.H)
	for i, s := range shading.Pix {
		if sc.Mask.Bits[i] && s > 0 {
			reflectance.Pix[i] = sc.Gray.Pix[i] / s
		}
	}
	if err := normalizeByMax(reflectance, "reflectance"); err != nil {
		return nil, nil, err
	}
	return shading, reflectance, nil
}

func normalizeByMax(g *Grid, what string) error {
	m := g.Max()
	if !(m > 0) || math.IsInf(m, 1) {
		return fmt.Errorf("intrinsic: max %s is %g: %w", what, m, ErrDegenerateNormalization)
	}
	inv := 1 / m
	for i := range g.Pix {
		g.Pix[i] *= inv
	}
	return nil
}
