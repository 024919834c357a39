package intrinsic

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sceneOf(t *testing.T, img *Image, mask *Mask) (*Scene, *ActiveIndex) {
	t.Helper()
	sc, err := Chromaticity(img, mask)
	require.NoError(t, err)
	idx, err := NewActiveIndex(mask)
	require.NoError(t, err)
	return sc, idx
}

func TestAssemble_LocalPair(t *testing.T) {
	// Two gray pixels with log intensities 0 and 1.
	img := grayFromLog(2, 1, func(_, col int) float64 { return float64(col) })
	sc, idx := sceneOf(t, img, NewMask(2, 1, true))

	p := AssembleParams{LambdaL: 1, ThresholdChrom: 0.075}
	sys, err := Assemble(sc, idx, nil, nil, p, nil)
	require.NoError(t, err)

	// Pair energy 2λ[(Δs)² + w(Δs − ΔI)²] with w = 100.
	assert.InDelta(t, 404, sys.A.At(0, 0), 1e-9)
	assert.InDelta(t, -404, sys.A.At(0, 1), 1e-9)
	assert.InDelta(t, -400, sys.B[0], 1e-9)
	assert.InDelta(t, 400, sys.B[1], 1e-9)
	assert.InDelta(t, 200, sys.C, 1e-9)

	for _, s := range [][]float64{{0, 0}, {0, 1}, {0.3, -0.2}, {2, 1}} {
		ds := s[0] - s[1]
		want := 2 * (ds*ds + 100*(ds+1)*(ds+1))
		assert.InDelta(t, want, sys.Energy(s), 1e-9, "s=%v", s)
	}
}

func TestAssemble_DifferentSurfaces(t *testing.T) {
	img := NewImage(2, 1)
	img.SetRGB(0, 0, 0.8, 0.1, 0.1)
	img.SetRGB(1, 0, 0.1, 0.1, 0.4)
	sc, idx := sceneOf(t, img, NewMask(2, 1, true))

	sys, err := Assemble(sc, idx, nil, nil, AssembleParams{LambdaL: 1, ThresholdChrom: 0.075}, nil)
	require.NoError(t, err)
	// Only the baseline smoothness remains: 2(Δs)².
	assert.InDelta(t, 4, sys.A.At(0, 0), 1e-12)
	assert.InDelta(t, 0, sys.B[0], 1e-12)
	assert.InDelta(t, 0, sys.C, 1e-12)
}

func TestAssemble_Anchor(t *testing.T) {
	img := randomImage(5, 4, 7)
	sc, idx := sceneOf(t, img, NewMask(5, 4, true))
	p := AssembleParams{LambdaL: 1, LambdaA: 10, AbsConstVal: 0.5, ThresholdChrom: 0.075}

	base, err := Assemble(sc, idx, nil, nil, p, nil)
	require.NoError(t, err)
	anchor := Coord{Row: 2, Col: 3}
	with, err := Assemble(sc, idx, nil, []Coord{anchor}, p, nil)
	require.NoError(t, err)

	i, ok := idx.Index(anchor)
	require.True(t, ok)
	for seed := int64(0); seed < 5; seed++ {
		s := randomVector(idx.Len(), seed)
		want := p.LambdaA * (s[i] - p.AbsConstVal) * (s[i] - p.AbsConstVal)
		assert.InDelta(t, want, with.Energy(s)-base.Energy(s), 1e-8)
	}
}

func TestAssemble_AnchorOutsideMask(t *testing.T) {
	mask := NewMask(3, 3, true)
	mask.Set(1, 1, false)
	sc, idx := sceneOf(t, randomImage(3, 3, 1), mask)
	_, err := Assemble(sc, idx, nil, []Coord{{Row: 1, Col: 1}}, AssembleParams{LambdaA: 1}, nil)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestAssemble_GroupTerm(t *testing.T) {
	img := randomImage(4, 4, 11)
	mask := NewMask(4, 4, true)
	mask.Set(3, 3, false)
	sc, idx := sceneOf(t, img, mask)

	group := Group{{0, 0}, {1, 2}, {3, 1}, {3, 3}}
	p := AssembleParams{LambdaR: 2, ThresholdChrom: 0.075, SampleCount: DefaultSampleCount}
	sys, err := Assemble(sc, idx, []Group{group}, nil, p, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sys.Dropped)

	members := group[:3]
	s := randomVector(idx.Len(), 5)
	var want float64
	for a := range members {
		for b := a + 1; b < len(members); b++ {
			ia, _ := idx.Index(members[a])
			ib, _ := idx.Index(members[b])
			dI := sc.LogGray.At(members[a].Col, members[a].Row) - sc.LogGray.At(members[b].Col, members[b].Row)
			d := s[ia] - s[ib] - dI
			want += p.LambdaR * d * d
		}
	}
	assert.InDelta(t, want, sys.Energy(s), 1e-9)
}

func TestAssemble_GroupSampling(t *testing.T) {
	img := uniformImage(20, 15, 0.4, 0.4, 0.4)
	sc, idx := sceneOf(t, img, NewMask(20, 15, true))
	group := make(Group, 0, idx.Len())
	for i := range idx.Len() {
		group = append(group, idx.Coord(i))
	}
	require.Len(t, group, 300)

	p := AssembleParams{LambdaR: 1, SampleCount: 200}
	sys, err := Assemble(sc, idx, []Group{group}, nil, p, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	// Sampling weight 300/200 on each of the C(200,2) sampled pairs.
	var trace float64
	nonzero := 0
	for _, d := range sys.A.Diagonal() {
		trace += d
		if d != 0 {
			nonzero++
		}
	}
	assert.Equal(t, 200, nonzero)
	assert.InDelta(t, 2*2*1.5*200*199/2, trace, 1e-6)

	again, err := Assemble(sc, idx, []Group{group}, nil, p, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	assert.Equal(t, sys.A.Ind, again.A.Ind)
	assert.Equal(t, sys.A.Data, again.A.Data)

	other, err := Assemble(sc, idx, []Group{group}, nil, p, rand.New(rand.NewSource(43)))
	require.NoError(t, err)
	assert.NotEqual(t, sys.A.Ind, other.A.Ind)
}

func TestAssemble_GroupSamplingExpectedEnergy(t *testing.T) {
	img := randomImage(20, 15, 7)
	sc, idx := sceneOf(t, img, NewMask(20, 15, true))
	group := make(Group, 0, idx.Len())
	for i := range idx.Len() {
		group = append(group, idx.Coord(i))
	}
	s := randomVector(idx.Len(), 3)

	full, err := Assemble(sc, idx, []Group{group}, nil, AssembleParams{LambdaR: 1}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	fullEnergy := full.Energy(s)

	const seeds = 100
	p := AssembleParams{LambdaR: 1, SampleCount: 200}
	var avg float64
	for seed := range int64(seeds) {
		sys, err := Assemble(sc, idx, []Group{group}, nil, p, rand.New(rand.NewSource(seed)))
		require.NoError(t, err)
		avg += sys.Energy(s) / seeds
	}

	// Weighting sampled pairs by N/n keeps a fraction (n-1)/(N-1) of the
	// full group energy in expectation.
	n, total := float64(p.SampleCount), float64(len(group))
	assert.InEpsilon(t, (n-1)/(total-1), avg/fullEnergy, 0.02)
}

func TestAssemble_Symmetric(t *testing.T) {
	img := randomImage(9, 7, 2)
	mask := NewMask(9, 7, true)
	mask.Set(4, 3, false)
	sc, idx := sceneOf(t, img, mask)
	groups, err := SimilarityGroups(sc.Chrom, idx, 3, 0.5)
	require.NoError(t, err)

	p := AssembleParams{LambdaL: 1, LambdaR: 1, LambdaA: 1000, ThresholdChrom: 0.3, SampleCount: 5}
	anchors := Anchors(sc.Gray, idx, 99.9)
	sys, err := Assemble(sc, idx, groups, anchors, p, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.True(t, sys.A.IsSymmetric(1e-9))

	// The energy is a convex quadratic: E(s) − E(0) = ½sᵗAs − Bᵗs.
	s := randomVector(idx.Len(), 9)
	grad := sys.Gradient(make([]float64, idx.Len()), s)
	var quad, lin float64
	for i := range s {
		quad += s[i] * (grad[i] + sys.B[i])
		lin += sys.B[i] * s[i]
	}
	assert.InDelta(t, 0.5*quad-lin, sys.Energy(s)-sys.Energy(make([]float64, len(s))), 1e-6)
}

func TestAssemble_Deterministic(t *testing.T) {
	img := randomImage(16, 16, 4)
	sc, idx := sceneOf(t, img, NewMask(16, 16, true))
	p := AssembleParams{LambdaL: 1, ThresholdChrom: 0.2}
	a, err := Assemble(sc, idx, nil, nil, p, nil)
	require.NoError(t, err)
	b, err := Assemble(sc, idx, nil, nil, p, nil)
	require.NoError(t, err)
	assert.Equal(t, a.A.Data, b.A.Data)
	assert.Equal(t, a.B, b.B)
	assert.Equal(t, a.C, b.C)
}

func TestAnchors(t *testing.T) {
	gray := NewGrid(5, 2)
	for i := range gray.Pix {
		gray.Pix[i] = float64(i)
	}
	mask := NewMask(5, 2, true)
	idx, err := NewActiveIndex(mask)
	require.NoError(t, err)

	assert.Len(t, Anchors(gray, idx, 50), 6)
	assert.Equal(t, []Coord{{Row: 1, Col: 4}}, Anchors(gray, idx, 100))
	assert.Len(t, Anchors(gray, idx, 0), 10)

	// The brightest pixel is ignored once it leaves the mask.
	mask.Set(4, 1, false)
	idx, err = NewActiveIndex(mask)
	require.NoError(t, err)
	assert.Equal(t, []Coord{{Row: 1, Col: 3}}, Anchors(gray, idx, 100))
}
