package intrinsic

import (
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Triplets is a growable coordinate list of matrix entries. Duplicate
// (row, col) pairs are summed when the list is compressed.
type Triplets struct {
	r, c int
	Rows []int
	Cols []int
	Vals []float64
}

func NewTriplets(r, c, capacity int) *Triplets {
	return &Triplets{
		r:    r,
		c:    c,
		Rows: make([]int, 0, capacity),
		Cols: make([]int, 0, capacity),
		Vals: make([]float64, 0, capacity),
	}
}

func (t *Triplets) Add(i, j int, v float64) {
	t.Rows = append(t.Rows, i)
	t.Cols = append(t.Cols, j)
	t.Vals = append(t.Vals, v)
}

// AddPair adds the symmetric rank-2 block k·(e_p − e_q)(e_p − e_q)ᵗ.
func (t *Triplets) AddPair(p, q int, k float64) {
	t.Add(p, p, k)
	t.Add(p, q, -k)
	t.Add(q, p, -k)
	t.Add(q, q, k)
}

// Append copies all entries of o into t.
func (t *Triplets) Append(o *Triplets) {
	t.Rows = append(t.Rows, o.Rows...)
	t.Cols = append(t.Cols, o.Cols...)
	t.Vals = append(t.Vals, o.Vals...)
}

func (t *Triplets) Len() int { return len(t.Vals) }

// ToCSR compresses the triplets. Entries are bucketed by row in insertion
// order, sorted by column and duplicates are summed, so the result only
// depends on the triplet order.
func (t *Triplets) ToCSR() *CSR {
	counts := make([]int, t.r+1)
	for _, i := range t.Rows {
		counts[i+1]++
	}
	for i := range t.r {
		counts[i+1] += counts[i]
	}
	cols := make([]int, len(t.Vals))
	vals := make([]float64, len(t.Vals))
	next := slices.Clone(counts[:t.r])
	for k, i := range t.Rows {
		cols[next[i]] = t.Cols[k]
		vals[next[i]] = t.Vals[k]
		next[i]++
	}

	m := &CSR{r: t.r, c: t.c, Indptr: make([]int, t.r+1)}
	m.Ind = make([]int, 0, len(cols))
	m.Data = make([]float64, 0, len(vals))
	for i := range t.r {
		start, end := counts[i], counts[i+1]
		sort.Stable(byCol{cols[start:end], vals[start:end]})
		for k := start; k < end; k++ {
			n := len(m.Ind)
			if n > m.Indptr[i] && m.Ind[n-1] == cols[k] {
				m.Data[n-1] += vals[k]
				continue
			}
			m.Ind = append(m.Ind, cols[k])
			m.Data = append(m.Data, vals[k])
		}
		m.Indptr[i+1] = len(m.Ind)
	}
	return m
}

type byCol struct {
	cols []int
	vals []float64
}

func (b byCol) Len() int           { return len(b.cols) }
func (b byCol) Less(i, j int) bool { return b.cols[i] < b.cols[j] }
func (b byCol) Swap(i, j int) {
	b.cols[i], b.cols[j] = b.cols[j], b.cols[i]
	b.vals[i], b.vals[j] = b.vals[j], b.vals[i]
}

// CSR is a compressed sparse row matrix with sorted, unique column indices
// per row. It satisfies mat.Matrix, so it can be copied into gonum dense
// types for small solves and inspection.
type CSR struct {
	r, c   int
	Indptr []int
	Ind    []int
	Data   []float64
}

var _ mat.Matrix = (*CSR)(nil)

func (m *CSR) Dims() (r, c int) { return m.r, m.c }

func (m *CSR) At(i, j int) float64 {
	if i < 0 || i >= m.r || j < 0 || j >= m.c {
		panic(mat.ErrIndexOutOfRange)
	}
	row := m.Ind[m.Indptr[i]:m.Indptr[i+1]]
	k, ok := slices.BinarySearch(row, j)
	if !ok {
		return 0
	}
	return m.Data[m.Indptr[i]+k]
}

func (m *CSR) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int { return len(m.Data) }

// Scale multiplies every entry by alpha in place.
func (m *CSR) Scale(alpha float64) {
	for k := range m.Data {
		m.Data[k] *= alpha
	}
}

// MulVecTo computes dst = m·x. Rows are processed in parallel.
func (m *CSR) MulVecTo(dst, x []float64) {
	parallelStripes(m.r, func(_, start, end int) {
		for i := start; i < end; i++ {
			var sum float64
			for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
				sum += m.Data[k] * x[m.Ind[k]]
			}
			dst[i] = sum
		}
	})
}

// Diagonal returns the main diagonal.
func (m *CSR) Diagonal() []float64 {
	d := make([]float64, min(m.r, m.c))
	for i := range d {
		d[i] = m.At(i, i)
	}
	return d
}

// Transpose returns mᵗ as a new CSR matrix.
func (m *CSR) Transpose() *CSR {
	t := &CSR{r: m.c, c: m.r, Indptr: make([]int, m.c+1)}
	for _, j := range m.Ind {
		t.Indptr[j+1]++
	}
	for j := range m.c {
		t.Indptr[j+1] += t.Indptr[j]
	}
	t.Ind = make([]int, len(m.Ind))
	t.Data = make([]float64, len(m.Data))
	next := slices.Clone(t.Indptr[:m.c])
	for i := range m.r {
		for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
			j := m.Ind[k]
			t.Ind[next[j]] = i
			t.Data[next[j]] = m.Data[k]
			next[j]++
		}
	}
	return t
}

// Mul returns m·b using Gustavson's row-by-row algorithm.
func (m *CSR) Mul(b *CSR) *CSR {
	if m.c != b.r {
		panic(mat.ErrShape)
	}
	out := &CSR{r: m.r, c: b.c, Indptr: make([]int, m.r+1)}
	acc := make([]float64, b.c)
	mark := make([]int, b.c)
	for j := range mark {
		mark[j] = -1
	}
	var cols []int
	for i := range m.r {
		cols = cols[:0]
		for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
			a := m.Data[k]
			row := m.Ind[k]
			for kb := b.Indptr[row]; kb < b.Indptr[row+1]; kb++ {
				j := b.Ind[kb]
				if mark[j] != i {
					mark[j] = i
					acc[j] = 0
					cols = append(cols, j)
				}
				acc[j] += a * b.Data[kb]
			}
		}
		slices.Sort(cols)
		for _, j := range cols {
			out.Ind = append(out.Ind, j)
			out.Data = append(out.Data, acc[j])
		}
		out.Indptr[i+1] = len(out.Ind)
	}
	return out
}

// IsSymmetric reports whether |m[i,j] − m[j,i]| <= tol for every stored entry.
func (m *CSR) IsSymmetric(tol float64) bool {
	if m.r != m.c {
		return false
	}
	for i := range m.r {
		for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
			j := m.Ind[k]
			d := m.Data[k] - m.At(j, i)
			if d > tol || d < -tol {
				return false
			}
		}
	}
	return true
}
