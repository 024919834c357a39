package intrinsic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestTriplets_ToCSR(t *testing.T) {
	tr := NewTriplets(3, 4, 0)
	tr.Add(2, 3, 1)
	tr.Add(0, 1, 2)
	tr.Add(0, 0, 5)
	tr.Add(0, 1, 3) // duplicate, summed
	tr.Add(2, 0, -1)
	require.Equal(t, 5, tr.Len())

	m := tr.ToCSR()
	want := mat.NewDense(3, 4, []float64{
		5, 5, 0, 0,
		0, 0, 0, 0,
		-1, 0, 0, 1,
	})
	assert.True(t, mat.Equal(want, m))
	assert.Equal(t, 4, m.NNZ())
	assert.Equal(t, []int{0, 2, 2, 4}, m.Indptr)
	assert.Equal(t, []int{0, 1, 0, 3}, m.Ind)

	r, c := m.Dims()
	assert.Equal(t, [2]int{3, 4}, [2]int{r, c})
	assert.True(t, mat.Equal(want.T(), m.T()))
}

func TestTriplets_AddPair(t *testing.T) {
	tr := NewTriplets(3, 3, 0)
	tr.AddPair(0, 2, 1.5)
	m := tr.ToCSR()
	want := mat.NewDense(3, 3, []float64{
		1.5, 0, -1.5,
		0, 0, 0,
		-1.5, 0, 1.5,
	})
	assert.True(t, mat.Equal(want, m))
	assert.True(t, m.IsSymmetric(0))
}

func TestCSR_Operations(t *testing.T) {
	a := gridLaplacian(4, 0.5)
	dense := mat.DenseCopyOf(a)
	n, _ := a.Dims()

	t.Run("MulVecTo", func(t *testing.T) {
		x := randomVector(n, 1)
		got := make([]float64, n)
		a.MulVecTo(got, x)
		var want mat.VecDense
		want.MulVec(dense, mat.NewVecDense(n, x))
		for i := range got {
			assert.InDelta(t, want.AtVec(i), got[i], 1e-12)
		}
	})

	t.Run("Diagonal", func(t *testing.T) {
		d := a.Diagonal()
		for i := range d {
			assert.Equal(t, dense.At(i, i), d[i])
		}
		assert.Equal(t, 2.5, d[0])
	})

	t.Run("TransposeAndMul", func(t *testing.T) {
		tr := NewTriplets(n, 3, 0)
		for i := range n {
			tr.Add(i, i%3, float64(i+1))
		}
		p := tr.ToCSR()
		rap := p.Transpose().Mul(a.Mul(p))

		var want mat.Dense
		want.Product(mat.DenseCopyOf(p).T(), dense, mat.DenseCopyOf(p))
		assert.True(t, mat.EqualApprox(&want, rap, 1e-9))
		assert.True(t, rap.IsSymmetric(1e-9))
	})

	t.Run("Scale", func(t *testing.T) {
		b := gridLaplacian(4, 0.5)
		b.Scale(2)
		var want mat.Dense
		want.Scale(2, dense)
		assert.True(t, mat.Equal(&want, b))
	})

	t.Run("Asymmetric", func(t *testing.T) {
		tr := NewTriplets(2, 2, 0)
		tr.Add(0, 1, 1)
		assert.False(t, tr.ToCSR().IsSymmetric(1e-12))
	})
}
