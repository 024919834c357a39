// Package config loads the settings of the intrinsic command from a JSON file.
package config

import (
	"encoding/json"
	"log"
	"os"

	"github.com/setanarut/intrinsic"
)

// PathsConfig holds input and output locations.
type PathsConfig struct {
	// Input is the photograph (PNG, JPEG, TIFF or Radiance .hdr).
	Input string `json:"input"`
	// Mask marks the pixels to decompose. Empty means every pixel.
	Mask string `json:"mask"`
	// Judgements is an optional reflectance judgement file used for groups.
	Judgements string `json:"judgements"`
	// OutputDir receives shading, reflectance and contour images.
	OutputDir string `json:"output_dir"`
}

// PaletteConfig controls palette extraction for palette grouping.
type PaletteConfig struct {
	Size   int    `json:"size"`
	Method string `json:"method"`
}

// Config is the root of the configuration file.
type Config struct {
	Paths     PathsConfig              `json:"paths"`
	Algorithm intrinsic.Options        `json:"algorithm"`
	Entropy   intrinsic.EntropyOptions `json:"entropy"`
	Palette   PaletteConfig            `json:"palette"`
	// MinConfidence drops judgements with a lower darker_score.
	MinConfidence float64 `json:"min_confidence"`
	// Linear reports that the input is already linear RGB. Otherwise it is
	// decoded as sRGB. Radiance .hdr inputs are always linear.
	Linear bool `json:"linear"`
	// MaxSide downscales inputs whose longer side exceeds it. 0 keeps the
	// original size.
	MaxSide int `json:"max_side"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			Input:     "input.png",
			OutputDir: "results",
		},
		Algorithm: intrinsic.DefaultOptions(),
		Entropy:   intrinsic.DefaultEntropyOptions(),
		Palette: PaletteConfig{
			Size:   8,
			Method: "dominantcolor",
		},
		MinConfidence: 0,
	}
}

// NewConfig reads path and decodes it over the defaults. A missing file is
// not an error: a warning is logged and the defaults are returned.
func NewConfig(path string, logger *log.Logger) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("warn: config file '%s' not found, using default settings.\n", path)
			return &cfg, nil
		}
		return nil, err
	}

	if err = json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
