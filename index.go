package intrinsic

// ActiveIndex maps the masked pixels of a W×H grid onto the dense range
// [0, Len()) used by the linear system. Indices follow a row-major scan, so
// the same mask always produces the same numbering.
type ActiveIndex struct {
	W, H    int
	forward []int // len W*H, -1 for pixels outside the mask
	coords  []Coord
}

func NewActiveIndex(mask *Mask) (*ActiveIndex, error) {
	ai := &ActiveIndex{
		W:       mask.W,
		H:       mask.H,
		forward: make([]int, mask.W*mask.H),
	}
	for y := range mask.H {
		for x := range mask.W {
			pIdx := labelOffset(mask.W, x, y)
			if !mask.Bits[pIdx] {
				ai.forward[pIdx] = -1
				continue
			}
			ai.forward[pIdx] = len(ai.coords)
			ai.coords = append(ai.coords, Coord{Row: y, Col: x})
		}
	}
	if len(ai.coords) == 0 {
		return nil, ErrEmptyMask
	}
	return ai, nil
}

// Len returns the number of active pixels.
func (ai *ActiveIndex) Len() int { return len(ai.coords) }

// Index returns the system index of c and whether c is active.
func (ai *ActiveIndex) Index(c Coord) (int, bool) {
	if c.Row < 0 || c.Col < 0 || c.Row >= ai.H || c.Col >= ai.W {
		return -1, false
	}
	i := ai.forward[labelOffset(ai.W, c.Col, c.Row)]
	return i, i >= 0
}

// Coord returns the pixel coordinate of system index i.
func (ai *ActiveIndex) Coord(i int) Coord { return ai.coords[i] }

// Scatter writes v (one value per active pixel) into a W×H grid, leaving
// inactive pixels at zero.
func (ai *ActiveIndex) Scatter(v []float64) *Grid {
	g := NewGrid(ai.W, ai.H)
	for i, c := range ai.coords {
		g.Set(c.Col, c.Row, v[i])
	}
	return g
}

// Gather reads one value per active pixel out of g.
func (ai *ActiveIndex) Gather(g *Grid) []float64 {
	v := make([]float64, len(ai.coords))
	for i, c := range ai.coords {
		v[i] = g.At(c.Col, c.Row)
	}
	return v
}
