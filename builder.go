package intrinsic

import (
	"fmt"
	"io"
	"log"
	"math/rand"

	"github.com/lucasb-eyer/go-colorful"
)

// Decomposer splits one linear RGB image into shading and reflectance.
// Build fills the exported fields stage by stage, so intermediate results
// stay available for inspection after a run.
type Decomposer struct {
	Input *Image
	Mask  *Mask
	// Palette feeds GroupsPalette. Typically produced by utils.ExtractPalette.
	Palette []colorful.Color

	Scene       *Scene
	Index       *ActiveIndex
	Groups      []Group
	Anchors     []Coord
	System      *System
	Solution    *Solution
	Shading     *Grid
	Reflectance *Grid

	logger *log.Logger
}

// NewDecomposer prepares a decomposition of input restricted to mask. A nil
// logger discards diagnostics.
func NewDecomposer(input *Image, mask *Mask, logger *log.Logger) *Decomposer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Decomposer{
		Input:  input,
		Mask:   mask,
		logger: logger,
	}
}

// Build runs the whole pipeline. groups, when non-nil, replaces automatic
// grouping; pass judgement groups here. Each call starts from the input
// again, so Build can be repeated with different options.
func (d *Decomposer) Build(opt Options, groups []Group) error {
	if err := opt.Validate(); err != nil {
		return err
	}
	if err := d.prepare(); err != nil {
		return err
	}
	if err := d.findGroups(opt, groups); err != nil {
		return err
	}
	if err := d.assemble(opt); err != nil {
		return err
	}
	if err := d.solve(opt.Solver); err != nil {
		return err
	}
	return d.reconstruct()
}

func (d *Decomposer) prepare() error {
	sc, err := Chromaticity(d.Input, d.Mask)
	if err != nil {
		return fmt.Errorf("chromaticity: %w", err)
	}
	idx, err := NewActiveIndex(d.Mask)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	d.Scene, d.Index = sc, idx
	d.logger.Printf("unmasked pixel count: %d / %d\n", idx.Len(), sc.W*sc.H)
	return nil
}

func (d *Decomposer) findGroups(opt Options, groups []Group) error {
	switch {
	case groups != nil:
		d.Groups = groups
	case opt.GroupMode == GroupsSimilarity:
		d.logger.Printf("searching similarity groups (window %d, radius %g)\n", opt.WindowSize, opt.ThresholdGroupSim)
		g, err := SimilarityGroups(d.Scene.Chrom, d.Index, opt.WindowSize, opt.ThresholdGroupSim)
		if err != nil {
			return fmt.Errorf("groups: %w", err)
		}
		d.Groups = g
	case opt.GroupMode == GroupsPalette:
		if len(d.Palette) == 0 {
			return fmt.Errorf("groups: palette grouping needs a palette")
		}
		d.Groups = PaletteGroups(d.Scene.Chrom, d.Index, d.Palette, opt.ThresholdGroupSim)
	default:
		d.Groups = nil
	}

	n := d.Index.Len()
	d.logger.Printf("number of groups: %d / %d pixels\n", len(d.Groups), n)
	d.logger.Printf("number of grouped pixels: %d / %d pixels\n", groupedPixels(d.Groups), n)
	return nil
}

func (d *Decomposer) assemble(opt Options) error {
	d.Anchors = Anchors(d.Scene.Gray, d.Index, opt.AnchorPercentile)
	d.logger.Printf("anchor pixels: %d\n", len(d.Anchors))

	d.logger.Println("assembling retinex, group and absolute scale terms")
	rng := rand.New(rand.NewSource(opt.Seed))
	sys, err := Assemble(d.Scene, d.Index, d.Groups, d.Anchors, opt.assembleParams(), rng)
	if err != nil {
		return fmt.Errorf("assemble: %w", err)
	}
	if sys.Dropped > 0 {
		d.logger.Printf("warn: dropped %d group members outside the mask\n", sys.Dropped)
	}
	d.logger.Printf("system: %d unknowns, %d non-zeros\n", len(sys.B), sys.A.NNZ())
	d.System = sys
	return nil
}

func (d *Decomposer) solve(opt SolverOptions) error {
	sol, err := Solve(d.System, opt)
	if err != nil {
		return fmt.Errorf("solve: %w", err)
	}
	d.logger.Printf("solver %s: %d levels, %d iterations, residual %.3g\n",
		opt.Method, sol.Levels, sol.Iterations, sol.Residual)
	switch {
	case sol.CoarseCond >= 1e12:
		d.logger.Printf("warn: coarsest level is nearly singular, condition number %.3g\n", sol.CoarseCond)
	case sol.CoarseCond > 0:
		d.logger.Printf("coarsest level condition number: %.3g\n", sol.CoarseCond)
	}
	d.Solution = sol
	return nil
}

func (d *Decomposer) reconstruct() error {
	shading, refl, err := Reconstruct(d.Solution.X, d.Index, d.Scene)
	if err != nil {
		return fmt.Errorf("reconstruct: %w", err)
	}
	d.Shading, d.Reflectance = shading, refl
	return nil
}
