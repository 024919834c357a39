package intrinsic

import "math"

// SameSurfaceWeight is the affinity given to neighbouring pixels whose
// chromaticities are close enough to be treated as one material.
const SameSurfaceWeight = 100.0

var (
	dx4 = [4]int{0, 0, -1, 1}
	dy4 = [4]int{-1, 1, 0, 0}
)

// PairWeight returns SameSurfaceWeight when the chromaticity distance between
// p and q is at most threshold and 0 otherwise. A negative threshold never
// matches.
func PairWeight(chrom *Image, p, q Coord, threshold float64) float64 {
	if threshold < 0 {
		return 0
	}
	po := pixOffset(chrom.W, p.Col, p.Row)
	qo := pixOffset(chrom.W, q.Col, q.Row)
	dR := chrom.Pix[po] - chrom.Pix[qo]
	dG := chrom.Pix[po+1] - chrom.Pix[qo+1]
	dB := chrom.Pix[po+2] - chrom.Pix[qo+2]
	if math.Sqrt(dR*dR+dG*dG+dB*dB) > threshold {
		return 0
	}
	return SameSurfaceWeight
}
