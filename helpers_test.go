package intrinsic

import (
	"math"
	"math/rand"
)

// uniformImage paints every pixel with the same linear RGB value.
func uniformImage(w, h int, r, g, b float64) *Image {
	img := NewImage(w, h)
	for y := range h {
		for x := range w {
			img.SetRGB(x, y, r, g, b)
		}
	}
	return img
}

// grayFromLog builds a gray image whose log intensity is f(row, col).
func grayFromLog(w, h int, f func(row, col int) float64) *Image {
	img := NewImage(w, h)
	for y := range h {
		for x := range w {
			v := math.Exp(f(y, x))
			img.SetRGB(x, y, v, v, v)
		}
	}
	return img
}

func randomImage(w, h int, seed int64) *Image {
	rng := rand.New(rand.NewSource(seed))
	img := NewImage(w, h)
	for i := range img.Pix {
		img.Pix[i] = 0.05 + 0.95*rng.Float64()
	}
	return img
}

// gridLaplacian returns the graph Laplacian of an n×n 4-connected grid with
// shift added to the diagonal at node 0.
func gridLaplacian(n int, shift float64) *CSR {
	t := NewTriplets(n*n, n*n, 0)
	for y := range n {
		for x := range n {
			i := y*n + x
			if x+1 < n {
				t.AddPair(i, i+1, 1)
			}
			if y+1 < n {
				t.AddPair(i, i+n, 1)
			}
		}
	}
	t.Add(0, 0, shift)
	return t.ToCSR()
}

func randomVector(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	v := make([]float64, n)
	for i := range v {
		v[i] = 2*rng.Float64() - 1
	}
	return v
}
