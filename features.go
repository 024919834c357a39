package intrinsic

import (
	"gonum.org/v1/gonum/spatial/kdtree"
)

// feature is a flattened window of chromaticity values around one active
// pixel, tagged with the pixel's system index so that it survives the
// reordering done by kdtree.New.
type feature struct {
	vec   []float64
	index int
}

func (f feature) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(feature)
	return f.vec[d] - q.vec[d]
}

func (f feature) Dims() int { return len(f.vec) }

// Distance returns the squared Euclidean distance, as kdtree.Point does.
func (f feature) Distance(c kdtree.Comparable) float64 {
	q := c.(feature)
	var sum float64
	for i, v := range f.vec {
		d := v - q.vec[i]
		sum += d * d
	}
	return sum
}

type features []feature

func (f features) Index(i int) kdtree.Comparable         { return f[i] }
func (f features) Len() int                              { return len(f) }
func (f features) Pivot(d kdtree.Dim) int                { return featurePlane{list: f, dim: d}.Pivot() }
func (f features) Slice(start, end int) kdtree.Interface { return f[start:end] }

// featurePlane sorts features along one dimension for median partitioning.
type featurePlane struct {
	list features
	dim  kdtree.Dim
}

func (p featurePlane) Len() int           { return len(p.list) }
func (p featurePlane) Less(i, j int) bool { return p.list[i].vec[p.dim] < p.list[j].vec[p.dim] }
func (p featurePlane) Swap(i, j int)      { p.list[i], p.list[j] = p.list[j], p.list[i] }
func (p featurePlane) Pivot() int         { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p featurePlane) Slice(start, end int) kdtree.SortSlicer {
	p.list = p.list[start:end]
	return p
}

// windowFeatures extracts a windowSize×windowSize chromaticity window around
// every active pixel. Windows reaching past the image border repeat the edge
// pixels.
func windowFeatures(chrom *Image, idx *ActiveIndex, windowSize int) features {
	shift := (windowSize - 1) / 2
	dims := windowSize * windowSize * 3
	out := make(features, idx.Len())
	parallelStripes(idx.Len(), func(_, start, end int) {
		for i := start; i < end; i++ {
			c := idx.Coord(i)
			vec := make([]float64, 0, dims)
			for dy := -shift; dy <= shift; dy++ {
				y := clampInt(c.Row+dy, 0, chrom.H-1)
				for dx := -shift; dx <= shift; dx++ {
					x := clampInt(c.Col+dx, 0, chrom.W-1)
					off := pixOffset(chrom.W, x, y)
					vec = append(vec, chrom.Pix[off], chrom.Pix[off+1], chrom.Pix[off+2])
				}
			}
			out[i] = feature{vec: vec, index: i}
		}
	})
	return out
}
