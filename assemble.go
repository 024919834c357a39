package intrinsic

import (
	"fmt"
	"math/rand"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// DefaultSampleCount caps the number of members of a group that enter the
// pairwise group term.
const DefaultSampleCount = 200

// AssembleParams are the energy weights of one assembly.
type AssembleParams struct {
	// Weight of the local Retinex term.
	LambdaL float64
	// Weight of the non-local group term.
	LambdaR float64
	// Weight of the absolute scale anchor.
	LambdaA float64
	// Target log-shading of the anchor pixels.
	AbsConstVal float64
	// Chromaticity distance under which 4-neighbours count as one surface.
	ThresholdChrom float64
	// Groups larger than this are randomly subsampled. <= 0 disables sampling.
	SampleCount int
}

// System is the quadratic energy E(s) = sᵗA₀s + b₀ᵗs + C in solver form:
// A = 2A₀ and B = −b₀, so the minimizer solves A·s = B.
type System struct {
	A *CSR
	B []float64
	C float64

	// Dropped counts group members that were outside the mask.
	Dropped int
}

// Energy evaluates the original quadratic energy at s.
func (sys *System) Energy(s []float64) float64 {
	as := make([]float64, len(s))
	sys.A.MulVecTo(as, s)
	var e float64
	for i, v := range s {
		e += 0.5*v*as[i] - sys.B[i]*v
	}
	return e + sys.C
}

// Gradient writes the gradient of Energy at s into grad and returns it.
func (sys *System) Gradient(grad, s []float64) []float64 {
	sys.A.MulVecTo(grad, s)
	for i := range grad {
		grad[i] -= sys.B[i]
	}
	return grad
}

// Anchors returns the active pixels whose gray value is at least the given
// percentile (0–100) of the gray values inside the mask.
func Anchors(gray *Grid, idx *ActiveIndex, percentile float64) []Coord {
	vals := idx.Gather(gray)
	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	p := min(1.0, max(0.0, percentile/100))
	threshold := stat.Quantile(p, stat.Empirical, sorted, nil)

	var out []Coord
	for i, v := range vals {
		if v >= threshold {
			out = append(out, idx.Coord(i))
		}
	}
	return out
}

// Assemble builds the sparse system from the local Retinex term, the group
// term and the anchor term. rng drives group subsampling; a nil rng uses a
// generator seeded with 1.
func Assemble(sc *Scene, idx *ActiveIndex, groups []Group, anchors []Coord, p AssembleParams, rng *rand.Rand) (*System, error) {
	if idx.W != sc.W || idx.H != sc.H {
		return nil, ShapeError{What: "active index", WantW: sc.W, WantH: sc.H, GotW: idx.W, GotH: idx.H}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	n := idx.Len()
	sys := &System{B: make([]float64, n)}

	local := assembleLocal(sc, idx, p, sys.B)
	for _, c := range local.c {
		sys.C += c
	}
	trip := local.trip

	for _, g := range groups {
		members := make([]int, 0, len(g))
		for _, c := range g {
			i, ok := idx.Index(c)
			if !ok {
				sys.Dropped++
				continue
			}
			members = append(members, i)
		}
		sys.C += addGroup(trip, sys.B, sc.LogGray, idx, members, p, rng)
	}

	for _, a := range anchors {
		i, ok := idx.Index(a)
		if !ok {
			return nil, fmt.Errorf("intrinsic: anchor (%d,%d) is outside the mask: %w", a.Row, a.Col, ErrShapeMismatch)
		}
		trip.Add(i, i, p.LambdaA)
		sys.B[i] += -2 * p.AbsConstVal * p.LambdaA
		sys.C += p.AbsConstVal * p.AbsConstVal * p.LambdaA
	}

	for i := range sys.B {
		sys.B[i] = -sys.B[i]
	}
	sys.A = trip.ToCSR()
	sys.A.Scale(2)
	return sys, nil
}

type localTerm struct {
	trip *Triplets
	c    []float64
}

// assembleLocal adds the Retinex term for every 4-connected pair of active
// pixels. Each pair (p, q) is visited from both ends, so contributions are
// gathered per pixel: row p receives its own share of both visits and every
// stripe writes only the rows and b entries it owns.
func assembleLocal(sc *Scene, idx *ActiveIndex, p AssembleParams, b []float64) localTerm {
	n := idx.Len()
	cPix := make([]float64, n)
	parts := make([]*Triplets, numStripes(n))
	parallelStripes(n, func(part, start, end int) {
		t := NewTriplets(n, n, (end-start)*5)
		for i := start; i < end; i++ {
			c := idx.Coord(i)
			pIdx := labelOffset(sc.W, c.Col, c.Row)
			diag := 0.0
			for k := range 4 {
				q := Coord{Row: c.Row + dy4[k], Col: c.Col + dx4[k]}
				j, ok := idx.Index(q)
				if !ok {
					continue
				}
				dI := sc.LogGray.Pix[pIdx] - sc.LogGray.Pix[labelOffset(sc.W, q.Col, q.Row)]
				weight := PairWeight(sc.Chrom, c, q, p.ThresholdChrom)
				k2 := 2 * (1 + weight) * p.LambdaL
				diag += k2
				t.Add(i, j, -k2)
				b[i] += -4 * weight * dI * p.LambdaL
				cPix[i] += weight * dI * dI * p.LambdaL
			}
			t.Add(i, i, diag)
		}
		parts[part] = t
	})

	total := 0
	for _, t := range parts {
		total += t.Len()
	}
	trip := NewTriplets(n, n, total+n)
	for _, t := range parts {
		trip.Append(t)
	}
	return localTerm{trip: trip, c: cPix}
}

// addGroup adds the pairwise group term for the members of one group and
// returns its contribution to the constant.
func addGroup(trip *Triplets, b []float64, logGray *Grid, idx *ActiveIndex, members []int, p AssembleParams, rng *rand.Rand) float64 {
	samplingWeight := 1.0
	if p.SampleCount > 0 && len(members) > p.SampleCount {
		// N/n per pair: in expectation the sampled term is (n-1)/(N-1) of the
		// full group energy.
		samplingWeight = float64(len(members)) / float64(p.SampleCount)
		perm := rng.Perm(len(members))[:p.SampleCount]
		slices.Sort(perm)
		sampled := make([]int, p.SampleCount)
		for k, m := range perm {
			sampled[k] = members[m]
		}
		members = sampled
	}

	vals := make([]float64, len(members))
	for k, i := range members {
		c := idx.Coord(i)
		vals[k] = logGray.At(c.Col, c.Row)
	}

	k := p.LambdaR * samplingWeight
	var cSum float64
	for a := 0; a < len(members); a++ {
		for bb := a + 1; bb < len(members); bb++ {
			pi, qi := members[a], members[bb]
			dI := vals[a] - vals[bb]
			trip.AddPair(pi, qi, k)
			b[pi] += -2 * dI * k
			b[qi] += 2 * dI * k
			cSum += dI * dI * k
		}
	}
	return cSum
}
