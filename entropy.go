package intrinsic

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// EntropyOptions configures the Parzen-window entropy estimate.
type EntropyOptions struct {
	// Number of histogram bins.
	Bins int `json:"bins"`
	// Standard deviation of the Gaussian kernel, in bins. <= 0 uses the raw
	// histogram.
	Bandwidth float64 `json:"bandwidth"`
	// Percentile (0–100) mapped to the top bin.
	Percentile float64 `json:"percentile"`
}

func DefaultEntropyOptions() EntropyOptions {
	return EntropyOptions{Bins: 256, Bandwidth: 1, Percentile: 99.9}
}

// Entropy estimates the quadratic (Σp²) and Shannon (−Σp·log p) entropy of a
// reflectance layer. Values are scaled so that the given percentile lands on
// the top bin. Values above the percentile are clamped into the top bin, not
// dropped, so every pixel counts towards the histogram.
func Entropy(refl *Grid, opt EntropyOptions) (quadratic, shannon float64, err error) {
	if opt.Bins <= 0 {
		return 0, 0, fmt.Errorf("intrinsic: entropy needs a positive bin count, got %d", opt.Bins)
	}
	if len(refl.Pix) == 0 {
		return 0, 0, fmt.Errorf("intrinsic: empty reflectance: %w", ErrDegenerateNormalization)
	}
	sorted := slices.Clone(refl.Pix)
	slices.Sort(sorted)
	top := stat.Quantile(min(1.0, max(0.0, opt.Percentile/100)), stat.Empirical, sorted, nil)
	if !(top > 0) {
		return 0, 0, fmt.Errorf("intrinsic: reflectance percentile is %g: %w", top, ErrDegenerateNormalization)
	}

	bins := opt.Bins
	hist := make([]float64, bins)
	for _, v := range refl.Pix {
		q := int(v / top * float64(bins))
		hist[clampInt(q, 0, bins-1)]++
	}

	probs := parzen(hist, opt.Bandwidth)
	var total float64
	for _, p := range probs {
		total += p
	}
	for i := range probs {
		probs[i] /= total
	}

	for _, p := range probs {
		quadratic += p * p
		shannon -= p * math.Log(max(p, 1e-4))
	}
	return quadratic, shannon, nil
}

// parzen smooths hist with a normalized Gaussian kernel of width s.
func parzen(hist []float64, s float64) []float64 {
	probs := slices.Clone(hist)
	if s <= 0 {
		return probs
	}
	n := len(hist)
	norm := 1 / (s * math.Sqrt(2*math.Pi))
	for i := range n {
		var pi, wsum float64
		for j := range n {
			d := float64(i - j)
			w := norm * math.Exp(-d*d/(2*s*s))
			pi += w * hist[j]
			wsum += w
		}
		probs[i] = pi / wsum
	}
	return probs
}
