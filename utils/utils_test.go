package utils

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setanarut/intrinsic"
)

func twoColorImage(w, h int) *intrinsic.Image {
	img := intrinsic.NewImage(w, h)
	for y := range h {
		for x := range w {
			if x < w/2 {
				img.SetRGB(x, y, 0.6, 0.05, 0.05)
			} else {
				img.SetRGB(x, y, 0.05, 0.05, 0.6)
			}
		}
	}
	return img
}

func TestMaskFromImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	src.Set(0, 0, color.NRGBA{255, 255, 255, 255})
	src.Set(1, 0, color.NRGBA{40, 40, 40, 255})
	src.Set(2, 0, color.NRGBA{255, 255, 255, 0})

	m := MaskFromImage(src)
	assert.Equal(t, []bool{true, false, false}, m.Bits)
	assert.Equal(t, 1, m.Count())
}

func TestMaskedPixels(t *testing.T) {
	img := twoColorImage(4, 2)
	mask := intrinsic.NewMask(4, 2, false)
	mask.Set(2, 0, true)
	mask.Set(3, 0, true)
	mask.Set(3, 1, true)

	packed := maskedPixels(img, mask).(*intrinsic.Image)
	require.Equal(t, 2, packed.W)
	require.Equal(t, 2, packed.H)
	for y := range 2 {
		for x := range 2 {
			r, _, b := packed.RGB(x, y)
			assert.Equal(t, 0.05, r)
			assert.Equal(t, 0.6, b)
		}
	}

	assert.Same(t, img, maskedPixels(img, nil))
	assert.Same(t, img, maskedPixels(img, intrinsic.NewMask(4, 2, true)))
}

func TestSelectDiverseWeightedColors(t *testing.T) {
	red := colorful.Color{R: 0.9, G: 0.1, B: 0.1}
	nearRed := colorful.Color{R: 0.88, G: 0.12, B: 0.1}
	blue := colorful.Color{R: 0.1, G: 0.1, B: 0.9}
	cands := []weightedColor{
		{Col: nearRed, Weight: 5},
		{Col: red, Weight: 10},
		{Col: blue, Weight: 3},
	}
	got := SelectDiverseWeightedColors(cands, 2)
	require.Len(t, got, 2)
	assert.Equal(t, red, got[0])
	assert.Equal(t, blue, got[1])

	assert.Len(t, SelectDiverseWeightedColors(cands, 10), 3)
	assert.Nil(t, SelectDiverseWeightedColors(nil, 2))
}

func TestSortPaletteByBrightness(t *testing.T) {
	p := []colorful.Color{
		{R: 1, G: 1, B: 1},
		{R: 0, G: 0, B: 0},
		{R: 0, G: 1, B: 0},
		{R: 0, G: 0, B: 1},
	}
	SortPaletteByBrightness(p)
	assert.Equal(t, []colorful.Color{
		{R: 0, G: 0, B: 0},
		{R: 0, G: 0, B: 1},
		{R: 0, G: 1, B: 0},
		{R: 1, G: 1, B: 1},
	}, p)
}

func TestExtractPalette(t *testing.T) {
	img := twoColorImage(20, 10)
	mask := intrinsic.NewMask(20, 10, true)

	for _, method := range []PaletteMethod{PaletteMethodDominantColor, PaletteMethodKMeans} {
		t.Run(method.String(), func(t *testing.T) {
			p := ExtractPalette(img, mask, 2, method)
			require.NotEmpty(t, p)
			assert.LessOrEqual(t, len(p), 2)
		})
	}

	// Only the masked half is sampled by kmeans.
	half := intrinsic.NewMask(20, 10, false)
	for y := range 10 {
		for x := range 10 {
			half.Set(x, y, true)
		}
	}
	p := ExtractKMeansPalette(img, half, 1)
	require.Len(t, p, 1)
	r, g, b := p[0].LinearRgb()
	assert.InDelta(t, 0.6, r, 0.01)
	assert.InDelta(t, 0.05, g, 0.01)
	assert.InDelta(t, 0.05, b, 0.01)

	// The dominant color path honours the mask too.
	right := intrinsic.NewMask(20, 10, false)
	for y := range 10 {
		for x := 10; x < 20; x++ {
			right.Set(x, y, true)
		}
	}
	p = ExtractPalette(img, right, 2, PaletteMethodDominantColor)
	require.NotEmpty(t, p)
	for _, c := range p {
		r, _, b := c.LinearRgb()
		assert.Greater(t, b, r, "only blue pixels are inside the mask")
	}

	assert.Nil(t, ExtractKMeansPalette(img, intrinsic.NewMask(20, 10, false), 2))
	assert.Nil(t, ExtractDominantPalette(img, 0))
}

func TestParsePaletteMethod(t *testing.T) {
	m, err := ParsePaletteMethod("KMeans")
	require.NoError(t, err)
	assert.Equal(t, PaletteMethodKMeans, m)

	m, err = ParsePaletteMethod("")
	require.NoError(t, err)
	assert.Equal(t, PaletteMethodDominantColor, m)

	_, err = ParsePaletteMethod("median-cut")
	assert.Error(t, err)
}

func TestSaveAndReadImage(t *testing.T) {
	dir := t.TempDir()
	g := intrinsic.NewGrid(4, 3)
	for i := range g.Pix {
		g.Pix[i] = float64(i) / 11
	}

	for _, name := range []string{"layer.png", "layer.tiff"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, SaveGrid(g, path))
			img, err := ReadImage(path)
			require.NoError(t, err)
			require.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())
			for y := range 3 {
				for x := range 4 {
					got := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
					assert.InDelta(t, g.At(x, y)*65535, float64(got), 1)
				}
			}
		})
	}

	_, err := ReadImage(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestSavePalette(t *testing.T) {
	path := filepath.Join(t.TempDir(), "palette.png")
	require.NoError(t, SavePalette([]colorful.Color{{R: 1}, {B: 1}}, 8, path))
	img, err := ReadImage(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())

	assert.Error(t, SavePalette(nil, 8, path))
}

func TestLoadJudgements(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "judgements.json")
	doc := `{"intrinsic_points":[{"id":1,"x":0.1,"y":0.1,"opaque":true},{"id":2,"x":0.9,"y":0.9,"opaque":true}],
	"intrinsic_comparisons":[{"point1":1,"point2":2,"darker":"E","darker_score":0.7}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	j, err := LoadJudgements(path)
	require.NoError(t, err)
	require.Len(t, j.Points, 2)
	require.Len(t, j.Comparisons, 1)
	assert.InDelta(t, 0.7, *j.Comparisons[0].DarkerScore, 1e-12)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = LoadJudgements(bad)
	assert.Error(t, err)
}
