// Command intrinsic decomposes a photograph into shading and reflectance.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/setanarut/intrinsic"
	"github.com/setanarut/intrinsic/internal/config"
	"github.com/setanarut/intrinsic/utils"
)

func main() {
	logger := log.New(os.Stdout, "[INTRINSIC] ", log.LstdFlags)

	if err := run(logger); err != nil {
		logger.Fatalf("application failed: %v\n", err)
	}
}

func run(logger *log.Logger) error {
	var configPath, input, mask, judgements, output, groups string
	flag.StringVar(&configPath, "config", "intrinsic.json", "config file")
	flag.StringVar(&input, "input", "", "input image (overrides config)")
	flag.StringVar(&mask, "mask", "", "mask image (overrides config)")
	flag.StringVar(&judgements, "judgements", "", "reflectance judgement file (overrides config)")
	flag.StringVar(&output, "output", "", "output directory (overrides config)")
	flag.StringVar(&groups, "groups", "", "group mode: none, similarity or palette (overrides config)")
	flag.Parse()

	cfg, err := config.NewConfig(configPath, logger)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if input != "" {
		cfg.Paths.Input = input
	}
	if mask != "" {
		cfg.Paths.Mask = mask
	}
	if judgements != "" {
		cfg.Paths.Judgements = judgements
	}
	if output != "" {
		cfg.Paths.OutputDir = output
	}
	if groups != "" {
		cfg.Algorithm.GroupMode = intrinsic.GroupMode(groups)
	}

	logger.Printf("loading %s\n", cfg.Paths.Input)
	src, err := utils.ReadImage(cfg.Paths.Input)
	if err != nil {
		return fmt.Errorf("failed to load image '%s': %w", cfg.Paths.Input, err)
	}
	src = utils.Downscale(src, cfg.MaxSide, false)
	img := utils.LinearImage(src, cfg.Linear)
	logger.Printf("image size: %dx%d\n", img.W, img.H)

	m := intrinsic.NewMask(img.W, img.H, true)
	if cfg.Paths.Mask != "" {
		maskImg, err := utils.ReadImage(cfg.Paths.Mask)
		if err != nil {
			return fmt.Errorf("failed to load mask '%s': %w", cfg.Paths.Mask, err)
		}
		m = utils.MaskFromImage(utils.Downscale(maskImg, max(img.W, img.H), true))
	}

	d := intrinsic.NewDecomposer(img, m, logger)

	var fixed []intrinsic.Group
	if cfg.Paths.Judgements != "" {
		j, err := utils.LoadJudgements(cfg.Paths.Judgements)
		if err != nil {
			return fmt.Errorf("failed to load judgements: %w", err)
		}
		fixed, err = intrinsic.JudgementGroups(j, img.W, img.H, cfg.MinConfidence)
		if err != nil {
			return fmt.Errorf("judgement groups: %w", err)
		}
		if fixed == nil {
			fixed = []intrinsic.Group{}
		}
	}

	if err = os.MkdirAll(cfg.Paths.OutputDir, 0755); err != nil {
		return fmt.Errorf("error creating output directory '%s': %w", cfg.Paths.OutputDir, err)
	}

	if fixed == nil && cfg.Algorithm.GroupMode == intrinsic.GroupsPalette {
		method, err := utils.ParsePaletteMethod(cfg.Palette.Method)
		if err != nil {
			return err
		}
		d.Palette = utils.ExtractPalette(img, m, cfg.Palette.Size, method)
		logger.Printf("palette: %d colors (%s)\n", len(d.Palette), method)
		if len(d.Palette) > 0 {
			if err := utils.SavePalette(d.Palette, 64, filepath.Join(cfg.Paths.OutputDir, "palette.png")); err != nil {
				return fmt.Errorf("error saving palette: %w", err)
			}
		}
	}

	if err = d.Build(cfg.Algorithm, fixed); err != nil {
		return err
	}

	outputs := []struct {
		name string
		grid *intrinsic.Grid
	}{
		{"shading.png", d.Shading},
		{"reflectance.png", d.Reflectance},
		{"contour.png", intrinsic.RetinexContour(d.Scene, cfg.Algorithm.ThresholdChrom)},
	}
	for _, o := range outputs {
		p := filepath.Join(cfg.Paths.OutputDir, o.name)
		if err := utils.SaveGrid(o.grid, p); err != nil {
			return fmt.Errorf("error saving '%s': %w", p, err)
		}
		logger.Printf("saved %s\n", p)
	}

	quad, shannon, err := intrinsic.Entropy(d.Reflectance, cfg.Entropy)
	if err != nil {
		return fmt.Errorf("entropy: %w", err)
	}
	logger.Printf("reflectance entropy: quadratic %.6f, shannon %.6f\n", quad, shannon)
	return nil
}
