package intrinsic

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// maxDirect bounds the size of a coarsest level that is factorized densely.
// Larger coarsest levels fall back to Gauss–Seidel sweeps.
const maxDirect = 2000

type level struct {
	A    *CSR
	P    *CSR // prolongation to this level from the next coarser one
	R    *CSR // Pᵗ
	diag []float64

	// work buffers
	x, b, r, corr []float64
}

// Hierarchy is a smoothed aggregation multigrid hierarchy for a symmetric
// positive (semi-)definite matrix.
type Hierarchy struct {
	levels []*level
	sweeps int

	chol *mat.Cholesky
	svd  *mat.SVD
	rank int

	// CoarseCond is the condition number of the densely factorized coarsest
	// level, or 0 when that level is smoothed instead.
	CoarseCond float64
}

// NewHierarchy coarsens a until a level has at most opt.MaxCoarse rows, the
// level limit is reached or aggregation stops reducing the problem.
func NewHierarchy(a *CSR, opt SolverOptions) *Hierarchy {
	h := &Hierarchy{sweeps: max(1, opt.Smoothing)}
	cur := a
	for {
		n, _ := cur.Dims()
		lv := &level{A: cur, diag: cur.Diagonal()}
		h.levels = append(h.levels, lv)
		if n <= opt.MaxCoarse || len(h.levels) >= opt.MaxLevels {
			break
		}
		agg, nAgg := aggregate(cur, opt.Strength)
		if nAgg == 0 || nAgg >= n {
			break
		}
		t := tentativeProlongator(agg, nAgg)
		lv.P = smoothProlongator(cur, t, lv.diag)
		lv.R = lv.P.Transpose()
		lv.r = make([]float64, n)
		lv.corr = make([]float64, n)
		cur = lv.R.Mul(cur.Mul(lv.P))
	}
	for _, lv := range h.levels[1:] {
		n, _ := lv.A.Dims()
		lv.x = make([]float64, n)
		lv.b = make([]float64, n)
	}
	h.factorCoarsest()
	return h
}

// Levels returns the number of levels including the finest.
func (h *Hierarchy) Levels() int { return len(h.levels) }

// aggregate groups strongly connected nodes following the standard
// three-pass aggregation scheme. Nodes without strong connections become
// singleton aggregates.
func aggregate(a *CSR, theta float64) ([]int, int) {
	n, _ := a.Dims()
	diag := a.Diagonal()
	strong := func(i, k int) bool {
		j := a.Ind[k]
		if j == i {
			return false
		}
		v := math.Abs(a.Data[k])
		return v > 0 && v >= theta*math.Sqrt(math.Abs(diag[i]*diag[j]))
	}

	agg := make([]int, n)
	for i := range agg {
		agg[i] = -1
	}
	nAgg := 0

	// Pass 1: nodes whose whole strong neighbourhood is free seed an aggregate.
	for i := range n {
		if agg[i] != -1 {
			continue
		}
		hasStrong, free := false, true
		for k := a.Indptr[i]; k < a.Indptr[i+1]; k++ {
			if !strong(i, k) {
				continue
			}
			hasStrong = true
			if agg[a.Ind[k]] != -1 {
				free = false
				break
			}
		}
		if !hasStrong || !free {
			continue
		}
		agg[i] = nAgg
		for k := a.Indptr[i]; k < a.Indptr[i+1]; k++ {
			if strong(i, k) {
				agg[a.Ind[k]] = nAgg
			}
		}
		nAgg++
	}

	// Pass 2: attach leftovers to a neighbouring pass-1 aggregate.
	seeded := make([]bool, n)
	for i := range n {
		seeded[i] = agg[i] != -1
	}
	for i := range n {
		if seeded[i] {
			continue
		}
		for k := a.Indptr[i]; k < a.Indptr[i+1]; k++ {
			if strong(i, k) && seeded[a.Ind[k]] {
				agg[i] = agg[a.Ind[k]]
				break
			}
		}
	}

	// Pass 3: whatever is left forms new aggregates with its free neighbours.
	for i := range n {
		if agg[i] != -1 {
			continue
		}
		agg[i] = nAgg
		for k := a.Indptr[i]; k < a.Indptr[i+1]; k++ {
			if strong(i, k) && agg[a.Ind[k]] == -1 {
				agg[a.Ind[k]] = nAgg
			}
		}
		nAgg++
	}
	return agg, nAgg
}

func tentativeProlongator(agg []int, nAgg int) *CSR {
	t := NewTriplets(len(agg), nAgg, len(agg))
	for i, g := range agg {
		t.Add(i, g, 1)
	}
	return t.ToCSR()
}

// smoothProlongator returns P = (I − ω D⁻¹A)·T with ω = 4/(3ρ), where ρ is
// the Gershgorin bound on the spectral radius of D⁻¹A.
func smoothProlongator(a, t *CSR, diag []float64) *CSR {
	n, _ := a.Dims()
	_, nc := t.Dims()
	rho := 0.0
	for i := range n {
		if diag[i] == 0 {
			continue
		}
		var sum float64
		for k := a.Indptr[i]; k < a.Indptr[i+1]; k++ {
			sum += math.Abs(a.Data[k])
		}
		rho = max(rho, sum/math.Abs(diag[i]))
	}
	if rho == 0 {
		return t
	}
	omega := 4.0 / (3.0 * rho)

	at := a.Mul(t)
	p := NewTriplets(n, nc, t.NNZ()+at.NNZ())
	for i := range n {
		for k := t.Indptr[i]; k < t.Indptr[i+1]; k++ {
			p.Add(i, t.Ind[k], t.Data[k])
		}
		if diag[i] == 0 {
			continue
		}
		s := -omega / diag[i]
		for k := at.Indptr[i]; k < at.Indptr[i+1]; k++ {
			p.Add(i, at.Ind[k], s*at.Data[k])
		}
	}
	return p.ToCSR()
}

// factorCoarsest prepares the dense solve of the coarsest level: Cholesky
// when the level is positive definite, a truncated SVD pseudo-inverse when it
// is only semi-definite.
func (h *Hierarchy) factorCoarsest() {
	a := h.levels[len(h.levels)-1].A
	n, _ := a.Dims()
	if n > maxDirect {
		return
	}
	sym := mat.NewSymDense(n, nil)
	for i := range n {
		for k := a.Indptr[i]; k < a.Indptr[i+1]; k++ {
			j := a.Ind[k]
			if j < i {
				continue
			}
			sym.SetSym(i, j, 0.5*(a.Data[k]+a.At(j, i)))
		}
	}

	var chol mat.Cholesky
	if chol.Factorize(sym) {
		h.chol = &chol
		h.CoarseCond = chol.Cond()
		return
	}
	var svd mat.SVD
	if !svd.Factorize(sym, mat.SVDThin) {
		return
	}
	h.svd = &svd
	h.rank = svd.Rank(1e-12)
	if h.rank > 0 {
		sv := svd.Values(nil)
		h.CoarseCond = sv[0] / sv[h.rank-1]
	}
}

func (h *Hierarchy) solveCoarsest(lv *level, x, b []float64) {
	n := len(x)
	switch {
	case h.chol != nil:
		// A mat.Condition error still leaves a usable correction in x.
		_ = h.chol.SolveVecTo(mat.NewVecDense(n, x), mat.NewVecDense(n, b))
	case h.svd != nil && h.rank > 0:
		h.svd.SolveVecTo(mat.NewVecDense(n, x), mat.NewVecDense(n, b), h.rank)
	default:
		for i := range x {
			x[i] = 0
		}
		for range 20 {
			lv.gaussSeidel(x, b, true)
			lv.gaussSeidel(x, b, false)
		}
	}
}

// gaussSeidel runs one sweep in place. Rows with a zero diagonal are left
// untouched.
func (lv *level) gaussSeidel(x, b []float64, forward bool) {
	a := lv.A
	n := len(x)
	step := func(i int) {
		d := lv.diag[i]
		if d == 0 {
			return
		}
		sum := b[i]
		for k := a.Indptr[i]; k < a.Indptr[i+1]; k++ {
			j := a.Ind[k]
			if j != i {
				sum -= a.Data[k] * x[j]
			}
		}
		x[i] = sum / d
	}
	if forward {
		for i := 0; i < n; i++ {
			step(i)
		}
		return
	}
	for i := n - 1; i >= 0; i-- {
		step(i)
	}
}

// cycle runs one V-cycle on level l, improving x in place. Forward sweeps
// before and backward sweeps after the coarse correction keep the cycle
// symmetric, so it can precondition conjugate gradients.
func (h *Hierarchy) cycle(l int, x, b []float64) {
	lv := h.levels[l]
	if l == len(h.levels)-1 {
		h.solveCoarsest(lv, x, b)
		return
	}
	for range h.sweeps {
		lv.gaussSeidel(x, b, true)
	}

	lv.A.MulVecTo(lv.r, x)
	floats.SubTo(lv.r, b, lv.r)
	next := h.levels[l+1]
	lv.R.MulVecTo(next.b, lv.r)
	for i := range next.x {
		next.x[i] = 0
	}
	h.cycle(l+1, next.x, next.b)
	lv.P.MulVecTo(lv.corr, next.x)
	floats.Add(x, lv.corr)

	for range h.sweeps {
		lv.gaussSeidel(x, b, false)
	}
}

// Precondition sets z to one V-cycle applied to r from a zero initial guess.
func (h *Hierarchy) Precondition(z, r []float64) {
	for i := range z {
		z[i] = 0
	}
	h.cycle(0, z, r)
}
