package utils

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"log"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"github.com/setanarut/intrinsic"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type PaletteMethod int

const (
	PaletteMethodDominantColor PaletteMethod = iota
	PaletteMethodKMeans
)

type weightedColor struct {
	Col    colorful.Color
	Weight float64
}

// SortPaletteByBrightness orders colors from darkest to brightest.
func SortPaletteByBrightness(palette []colorful.Color) {
	slices.SortFunc(palette, func(a, b colorful.Color) int {
		ri, gi, bi := a.LinearRgb()
		rj, gj, bj := b.LinearRgb()
		yi := 0.2126*ri + 0.7152*gi + 0.0722*bi
		yj := 0.2126*rj + 0.7152*gj + 0.0722*bj
		if yi < yj {
			return -1
		}
		if yi > yj {
			return 1
		}
		return 0
	})
}

func (m PaletteMethod) String() string {
	switch m {
	case PaletteMethodKMeans:
		return "kmeans"
	default:
		return "dominantcolor"
	}
}

// ParsePaletteMethod maps "kmeans" and "dominantcolor" to a PaletteMethod.
func ParsePaletteMethod(s string) (PaletteMethod, error) {
	switch strings.ToLower(s) {
	case "kmeans":
		return PaletteMethodKMeans, nil
	case "dominantcolor", "":
		return PaletteMethodDominantColor, nil
	default:
		return 0, fmt.Errorf("unknown palette method %q", s)
	}
}

func ExtractDominantPalette(img image.Image, k int) []colorful.Color {
	if k <= 0 {
		return nil
	}

	nCandidates := max(24, k*8)
	candidates := dominantcolor.FindWeight(img, nCandidates)
	if len(candidates) == 0 {
		return nil
	}

	weighted := make([]weightedColor, 0, len(candidates))
	for _, c := range candidates {
		col, _ := colorful.MakeColor(c.RGBA)
		w := c.Weight
		if w <= 0 {
			w = 1e-6
		}
		weighted = append(weighted, weightedColor{Col: col.Clamped(), Weight: w})
	}
	return SelectDiverseWeightedColors(weighted, k)
}

// SelectDiverseWeightedColors greedily picks k colors that are heavy and far
// apart in Lab space, starting from the heaviest one.
func SelectDiverseWeightedColors(cands []weightedColor, k int) []colorful.Color {
	if k <= 0 || len(cands) == 0 {
		return nil
	}
	type item struct {
		col colorful.Color
		lab [3]float64
		w   float64
	}
	items := make([]item, 0, len(cands))
	maxW := 0.0
	for _, c := range cands {
		col := c.Col.Clamped()
		l, a, b := col.Lab()
		w := c.Weight
		if w <= 0 {
			w = 1e-6
		}
		if w > maxW {
			maxW = w
		}
		items = append(items, item{
			col: col,
			lab: [3]float64{l, a, b},
			w:   w,
		})
	}
	if k > len(items) {
		k = len(items)
	}

	selectedIdx := make([]int, 0, k)
	selected := make([]bool, len(items))

	bestSeed := 0
	for i := 1; i < len(items); i++ {
		if items[i].w > items[bestSeed].w {
			bestSeed = i
		}
	}
	selectedIdx = append(selectedIdx, bestSeed)
	selected[bestSeed] = true

	for len(selectedIdx) < k {
		bestIdx := -1
		bestScore := -1.0
		for i := range items {
			if selected[i] {
				continue
			}
			minD2 := math.MaxFloat64
			for _, s := range selectedIdx {
				d0 := items[i].lab[0] - items[s].lab[0]
				d1 := items[i].lab[1] - items[s].lab[1]
				d2 := items[i].lab[2] - items[s].lab[2]
				minD2 = min(minD2, d0*d0+d1*d1+d2*d2)
			}
			score := math.Sqrt(minD2) * (0.55 + 0.45*math.Sqrt(items[i].w/maxW))
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		selected[bestIdx] = true
		selectedIdx = append(selectedIdx, bestIdx)
	}

	out := make([]colorful.Color, 0, len(selectedIdx))
	for _, idx := range selectedIdx {
		out = append(out, items[idx].col)
	}
	return out
}

// ExtractKMeansPalette clusters the colors of the masked pixels. A nil mask
// uses every pixel.
func ExtractKMeansPalette(img *intrinsic.Image, mask *intrinsic.Mask, k int) []colorful.Color {
	if k <= 0 || img.W == 0 || img.H == 0 {
		return nil
	}

	// Subsample to keep kmeans tractable on large images.
	maxSamples := 12000
	step := 1
	if img.W*img.H > maxSamples {
		step = int(math.Sqrt(float64(img.W*img.H)/float64(maxSamples))) + 1
	}

	dataset := make(clusters.Observations, 0, min(img.W*img.H, maxSamples))
	for y := 0; y < img.H; y += step {
		for x := 0; x < img.W; x += step {
			if mask != nil && !mask.At(x, y) {
				continue
			}
			c := colorful.LinearRgb(img.RGB(x, y)).Clamped()
			dataset = append(dataset, clusters.Coordinates{c.R, c.G, c.B})
		}
	}
	if len(dataset) == 0 {
		return nil
	}

	workK := min(max(k*4, k+2), len(dataset))
	km := kmeans.New()
	cc, err := km.Partition(dataset, workK)
	if err != nil || len(cc) == 0 {
		return nil
	}

	// Dominant clusters first.
	slices.SortFunc(cc, func(a, b clusters.Cluster) int {
		return len(b.Observations) - len(a.Observations)
	})

	weighted := make([]weightedColor, 0, len(cc))
	for _, c := range cc {
		if len(c.Center) < 3 || len(c.Observations) == 0 {
			continue
		}
		col := colorful.Color{R: c.Center[0], G: c.Center[1], B: c.Center[2]}.Clamped()
		weighted = append(weighted, weightedColor{Col: col, Weight: float64(len(c.Observations))})
	}
	return SelectDiverseWeightedColors(weighted, k)
}

// maskedPixels packs the masked pixels of img into a near-square image so
// that palette extractors without mask support only see them. Trailing cells
// repeat pixels from the start. A nil or full mask returns img itself.
func maskedPixels(img *intrinsic.Image, mask *intrinsic.Mask) image.Image {
	if mask == nil {
		return img
	}
	n := mask.Count()
	if n == 0 || n == img.W*img.H {
		return img
	}

	src := make([]intrinsic.Coord, 0, n)
	for y := range img.H {
		for x := range img.W {
			if mask.At(x, y) {
				src = append(src, intrinsic.Coord{Row: y, Col: x})
			}
		}
	}

	w := int(math.Ceil(math.Sqrt(float64(n))))
	h := (n + w - 1) / w
	dst := intrinsic.NewImage(w, h)
	for i := range w * h {
		c := src[i%n]
		r, g, b := img.RGB(c.Col, c.Row)
		dst.SetRGB(i%w, i/w, r, g, b)
	}
	return dst
}

// ExtractPalette returns up to k representative colors of the masked pixels
// of img, sorted from dark to bright. A nil mask samples every pixel.
func ExtractPalette(img *intrinsic.Image, mask *intrinsic.Mask, k int, method PaletteMethod) []colorful.Color {
	var p []colorful.Color
	switch method {
	case PaletteMethodKMeans:
		p = ExtractKMeansPalette(img, mask, k)
		if len(p) == 0 {
			log.Println("palette warning: kmeans returned empty palette, falling back to dominantcolor")
			p = ExtractDominantPalette(maskedPixels(img, mask), k)
		}
	default:
		p = ExtractDominantPalette(maskedPixels(img, mask), k)
	}
	SortPaletteByBrightness(p)
	return p
}

// ReadImage decodes a PNG, JPEG, TIFF, WebP or Radiance HDR file.
func ReadImage(path string) (img image.Image, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	img, _, err = image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// SaveImage writes img as TIFF when filename ends in .tif or .tiff and as
// PNG otherwise.
func SaveImage(img image.Image, filename string) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		return tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	default:
		return png.Encode(f, img)
	}
}

// SaveGrid writes a [0,1] layer as a 16-bit grayscale image.
func SaveGrid(g *intrinsic.Grid, filename string) error {
	return SaveImage(g.Gray16(), filename)
}

func SavePalette(palette []colorful.Color, tileSize int, filename string) error {
	if len(palette) == 0 {
		return fmt.Errorf("empty palette")
	}
	if tileSize <= 0 {
		tileSize = 64
	}

	w := tileSize * len(palette)
	h := tileSize
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, c := range palette {
		r, g, b := c.Clamped().RGB255()
		x0 := i * tileSize
		for y := range h {
			for x := x0; x < x0+tileSize; x++ {
				img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
			}
		}
	}
	return SaveImage(img, filename)
}

// MaskFromImage marks pixels that are opaque and brighter than half gray.
func MaskFromImage(img image.Image) *intrinsic.Mask {
	b := img.Bounds()
	m := intrinsic.NewMask(b.Dx(), b.Dy(), false)
	for y := range b.Dy() {
		for x := range b.Dx() {
			c := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			_, _, _, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			m.Set(x, y, a > 0 && c.Y > 0x7fff)
		}
	}
	return m
}

// LoadJudgements reads a reflectance judgement file with
// "intrinsic_points" and "intrinsic_comparisons" arrays.
func LoadJudgements(path string) (*intrinsic.Judgements, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var j intrinsic.Judgements
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &j, nil
}
