package intrinsic

import (
	"fmt"
	"math"
	"slices"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Group is a set of pixels asserted to share one reflectance value.
type Group []Coord

// JudgementPoint is a point of a human reflectance annotation. X and Y are
// normalized to [0,1].
type JudgementPoint struct {
	ID     int     `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Opaque bool    `json:"opaque"`
}

// Comparison says which of two points is darker: "1", "2" or "E" for equal.
// DarkerScore is the annotator confidence and may be absent.
type Comparison struct {
	Point1      int      `json:"point1"`
	Point2      int      `json:"point2"`
	Darker      string   `json:"darker"`
	DarkerScore *float64 `json:"darker_score"`
}

type Judgements struct {
	Points      []JudgementPoint `json:"intrinsic_points"`
	Comparisons []Comparison     `json:"intrinsic_comparisons"`
}

// JudgementGroups turns confident "equal reflectance" comparisons between
// opaque points into groups. Pairs sharing a point are merged transitively.
// Groups and their members are ordered by first appearance.
func JudgementGroups(j *Judgements, width, height int, minConfidence float64) ([]Group, error) {
	points := make(map[int]JudgementPoint, len(j.Points))
	for _, p := range j.Points {
		points[p.ID] = p
	}

	parent := make(map[int]int)
	var order []int
	var find func(id int) int
	find = func(id int) int {
		p, ok := parent[id]
		if !ok {
			parent[id] = id
			order = append(order, id)
			return id
		}
		if p == id {
			return id
		}
		root := find(p)
		parent[id] = root
		return root
	}

	for ci, c := range j.Comparisons {
		p1, ok1 := points[c.Point1]
		p2, ok2 := points[c.Point2]
		if !ok1 || !ok2 {
			return nil, JudgementError{Comparison: ci, Reason: "references an unknown point id"}
		}
		switch c.Darker {
		case "1", "2":
			continue
		case "E":
		default:
			return nil, JudgementError{Comparison: ci, Reason: fmt.Sprintf("unknown darker label %q", c.Darker)}
		}
		if c.DarkerScore == nil || *c.DarkerScore <= 0 || *c.DarkerScore < minConfidence {
			continue
		}
		if !p1.Opaque || !p2.Opaque {
			continue
		}
		for _, p := range []JudgementPoint{p1, p2} {
			if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 || math.IsNaN(p.X) || math.IsNaN(p.Y) {
				return nil, JudgementError{Comparison: ci, Reason: fmt.Sprintf("point %d lies outside the unit square", p.ID)}
			}
		}
		r1, r2 := find(p1.ID), find(p2.ID)
		if r1 != r2 {
			parent[r2] = r1
		}
	}

	groupOf := make(map[int]int)
	var groups []Group
	for _, id := range order {
		root := find(id)
		gi, ok := groupOf[root]
		if !ok {
			gi = len(groups)
			groupOf[root] = gi
			groups = append(groups, nil)
		}
		p := points[id]
		groups[gi] = append(groups[gi], Coord{
			Row: clampInt(int(math.Floor(p.Y*float64(height))), 0, height-1),
			Col: clampInt(int(math.Floor(p.X*float64(width))), 0, width-1),
		})
	}
	return groups, nil
}

// SimilarityGroups groups active pixels whose windowed chromaticity features
// lie within radius of each other. Pixels are visited once in index order;
// each unmatched pixel claims every unmatched pixel inside its radius ball,
// so a pixel belongs to at most one group. Single-pixel groups are dropped.
// The result depends on the scan order by construction.
func SimilarityGroups(chrom *Image, idx *ActiveIndex, windowSize int, radius float64) ([]Group, error) {
	if windowSize <= 0 || windowSize%2 == 0 {
		return nil, fmt.Errorf("intrinsic: window size must be odd and positive, got %d", windowSize)
	}
	if radius < 0 {
		return nil, nil
	}

	byIndex := windowFeatures(chrom, idx, windowSize)
	tree := kdtree.New(slices.Clone(byIndex), false)

	matched := make([]bool, idx.Len())
	var groups []Group
	hits := make([]int, 0, 64)
	for i := range byIndex {
		if matched[i] {
			continue
		}
		keep := kdtree.NewDistKeeper(radius * radius)
		tree.NearestSet(keep, byIndex[i])

		hits = append(hits[:0], i)
		for _, c := range keep.Heap {
			// The keeper starts with a nil sentinel.
			if c.Comparable == nil {
				continue
			}
			j := c.Comparable.(feature).index
			if j != i && !matched[j] {
				hits = append(hits, j)
			}
		}
		slices.Sort(hits)
		for _, j := range hits {
			matched[j] = true
		}
		if len(hits) > 1 {
			g := make(Group, len(hits))
			for k, j := range hits {
				g[k] = idx.Coord(j)
			}
			groups = append(groups, g)
		}
	}
	return groups, nil
}

// PaletteGroups assigns every active pixel to the palette color with the
// nearest chromaticity, provided it is within threshold. Each palette entry
// yields at most one group; entries matching fewer than two pixels are
// dropped.
func PaletteGroups(chrom *Image, idx *ActiveIndex, palette []colorful.Color, threshold float64) []Group {
	if len(palette) == 0 || threshold < 0 {
		return nil
	}
	centers := make([][3]float64, len(palette))
	for i, c := range palette {
		r, g, b := c.LinearRgb()
		inv := 1 / max(r+g+b, intensityFloor)
		centers[i] = [3]float64{r * inv, g * inv, b * inv}
	}

	buckets := make([]Group, len(palette))
	for i := range idx.Len() {
		c := idx.Coord(i)
		off := pixOffset(chrom.W, c.Col, c.Row)
		best, bestD := -1, math.MaxFloat64
		for k, ctr := range centers {
			dR := chrom.Pix[off] - ctr[0]
			dG := chrom.Pix[off+1] - ctr[1]
			dB := chrom.Pix[off+2] - ctr[2]
			d := dR*dR + dG*dG + dB*dB
			if d < bestD {
				bestD = d
				best = k
			}
		}
		if best >= 0 && math.Sqrt(bestD) <= threshold {
			buckets[best] = append(buckets[best], c)
		}
	}

	var groups []Group
	for _, g := range buckets {
		if len(g) > 1 {
			groups = append(groups, g)
		}
	}
	return groups
}

// groupedPixels counts the members of all groups.
func groupedPixels(groups []Group) int {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	return n
}
