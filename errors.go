package intrinsic

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMask               = errors.New("intrinsic: mask has no active pixels")
	ErrShapeMismatch           = errors.New("intrinsic: shape mismatch")
	ErrSolverNotConverged      = errors.New("intrinsic: solver did not converge")
	ErrDegenerateNormalization = errors.New("intrinsic: degenerate normalization")
	ErrInvalidJudgement        = errors.New("intrinsic: invalid judgement")
)

// ShapeError reports two arrays whose dimensions disagree.
type ShapeError struct {
	What         string
	WantW, WantH int
	GotW, GotH   int
}

func (e ShapeError) Error() string {
	return fmt.Sprintf("intrinsic: %s is %dx%d, want %dx%d", e.What, e.GotW, e.GotH, e.WantW, e.WantH)
}

func (e ShapeError) Unwrap() error { return ErrShapeMismatch }

// ConvergenceError is returned when an iterative solve runs out of iterations
// before the relative residual drops below the tolerance.
type ConvergenceError struct {
	Method     string
	Iterations int
	Residual   float64
	Tolerance  float64
}

func (e ConvergenceError) Error() string {
	return fmt.Sprintf("intrinsic: %s stopped after %d iterations with residual %.3g (tolerance %.3g)",
		e.Method, e.Iterations, e.Residual, e.Tolerance)
}

func (e ConvergenceError) Unwrap() error { return ErrSolverNotConverged }

// JudgementError points at the comparison record that could not be used.
type JudgementError struct {
	Comparison int
	Reason     string
}

func (e JudgementError) Error() string {
	return fmt.Sprintf("intrinsic: comparison %d: %s", e.Comparison, e.Reason)
}

func (e JudgementError) Unwrap() error { return ErrInvalidJudgement }
