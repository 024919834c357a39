package intrinsic

import "fmt"

// GroupMode selects where non-local reflectance groups come from when the
// caller does not supply them.
type GroupMode string

const (
	GroupsNone       GroupMode = "none"
	GroupsSimilarity GroupMode = "similarity"
	GroupsPalette    GroupMode = "palette"
)

type Options struct {
	// Local Retinex smoothness weight.
	LambdaL float64 `json:"lambda_l"`
	// Non-local group weight. 0 turns groups off in the energy.
	LambdaR float64 `json:"lambda_r"`
	// Absolute scale anchor weight.
	LambdaA float64 `json:"lambda_a"`
	// Log-shading the brightest pixels are pulled towards.
	AbsConstVal float64 `json:"abs_const_val"`
	// Radius in window-feature space for similarity grouping, also the
	// chromaticity distance used by palette grouping.
	ThresholdGroupSim float64 `json:"threshold_group_sim"`
	// Chromaticity distance under which neighbours share a surface.
	// Negative disables same-surface detection.
	ThresholdChrom float64 `json:"threshold_chrom"`
	// Odd side length of the similarity feature window.
	WindowSize int `json:"window_size"`
	// Maximum members of a group that enter the energy.
	SampleCount int `json:"sample_count"`
	// Seed of the group subsampling generator.
	Seed int64 `json:"seed"`
	// Pixels at or above this gray percentile (0–100) are anchors.
	AnchorPercentile float64   `json:"anchor_percentile"`
	GroupMode        GroupMode `json:"group_mode"`

	Solver SolverOptions `json:"solver"`
}

func DefaultOptions() Options {
	return Options{
		LambdaL:           1,
		LambdaR:           1,
		LambdaA:           1000,
		AbsConstVal:       0,
		ThresholdGroupSim: 0.1,
		ThresholdChrom:    0.075,
		WindowSize:        3,
		SampleCount:       DefaultSampleCount,
		Seed:              1,
		AnchorPercentile:  99.9,
		GroupMode:         GroupsNone,
		Solver:            DefaultSolverOptions(),
	}
}

// Validate rejects options the pipeline cannot run with.
func (o Options) Validate() error {
	switch {
	case o.LambdaL < 0 || o.LambdaR < 0 || o.LambdaA < 0:
		return fmt.Errorf("intrinsic: lambdas must be non-negative (l=%g r=%g a=%g)", o.LambdaL, o.LambdaR, o.LambdaA)
	case o.AnchorPercentile < 0 || o.AnchorPercentile > 100:
		return fmt.Errorf("intrinsic: anchor percentile %g outside [0,100]", o.AnchorPercentile)
	case o.Solver.Tolerance <= 0 || o.Solver.MaxIterations <= 0:
		return fmt.Errorf("intrinsic: solver needs a positive tolerance and iteration budget")
	}
	switch o.GroupMode {
	case GroupsNone, GroupsPalette, "":
	case GroupsSimilarity:
		if o.WindowSize <= 0 || o.WindowSize%2 == 0 {
			return fmt.Errorf("intrinsic: window size must be odd and positive, got %d", o.WindowSize)
		}
	default:
		return fmt.Errorf("intrinsic: unknown group mode %q", o.GroupMode)
	}
	return nil
}

func (o Options) assembleParams() AssembleParams {
	return AssembleParams{
		LambdaL:        o.LambdaL,
		LambdaR:        o.LambdaR,
		LambdaA:        o.LambdaA,
		AbsConstVal:    o.AbsConstVal,
		ThresholdChrom: o.ThresholdChrom,
		SampleCount:    o.SampleCount,
	}
}
