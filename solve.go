package intrinsic

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

type SolverMethod string

const (
	// MethodAMG runs multigrid V-cycles, optionally as a preconditioner for
	// conjugate gradients.
	MethodAMG SolverMethod = "amg"
	// MethodLBFGS minimizes the energy directly with limited-memory BFGS.
	MethodLBFGS SolverMethod = "lbfgs"
)

type SolverOptions struct {
	Method SolverMethod `json:"method"`
	// Relative residual ‖B − A·s‖ / ‖B‖ at which the solve stops.
	Tolerance     float64 `json:"tolerance"`
	MaxIterations int     `json:"max_iterations"`
	// Accelerate wraps the V-cycle in preconditioned conjugate gradients.
	Accelerate bool `json:"accelerate"`
	// Coarsening stops at this many rows.
	MaxCoarse int `json:"max_coarse"`
	MaxLevels int `json:"max_levels"`
	// Strength-of-connection threshold for aggregation.
	Strength float64 `json:"strength"`
	// Gauss–Seidel sweeps before and after each coarse correction.
	Smoothing int `json:"smoothing"`
}

func DefaultSolverOptions() SolverOptions {
	return SolverOptions{
		Method:        MethodAMG,
		Tolerance:     1e-8,
		MaxIterations: 200,
		Accelerate:    true,
		MaxCoarse:     300,
		MaxLevels:     10,
		Strength:      0.08,
		Smoothing:     1,
	}
}

// Solution is the minimizer of a System together with solver diagnostics.
type Solution struct {
	X          []float64
	Iterations int
	Residual   float64
	Levels     int
	// CoarseCond is the condition number of the dense coarsest solve, 0 if
	// there was none.
	CoarseCond float64
}

// Solve finds s with A·s = B. It returns a ConvergenceError instead of a
// partial result when the tolerance is not reached within MaxIterations.
func Solve(sys *System, opt SolverOptions) (*Solution, error) {
	switch opt.Method {
	case MethodAMG, "":
		return solveAMG(sys, opt)
	case MethodLBFGS:
		return solveLBFGS(sys, opt)
	default:
		return nil, fmt.Errorf("intrinsic: unknown solver method %q", opt.Method)
	}
}

func relativeResidual(sys *System, x, work []float64) float64 {
	bnorm := floats.Norm(sys.B, 2)
	sys.A.MulVecTo(work, x)
	floats.SubTo(work, sys.B, work)
	if bnorm == 0 {
		return floats.Norm(work, 2)
	}
	return floats.Norm(work, 2) / bnorm
}

func solveAMG(sys *System, opt SolverOptions) (*Solution, error) {
	h := NewHierarchy(sys.A, opt)
	n := len(sys.B)
	sol := &Solution{X: make([]float64, n), Levels: h.Levels(), CoarseCond: h.CoarseCond}

	var converged bool
	if opt.Accelerate {
		sol.Iterations, sol.Residual, converged = h.pcg(sys, sol.X, opt.Tolerance, opt.MaxIterations)
	} else {
		sol.Iterations, sol.Residual, converged = h.stationary(sys, sol.X, opt.Tolerance, opt.MaxIterations)
	}
	if !converged {
		return nil, ConvergenceError{Method: "amg", Iterations: sol.Iterations, Residual: sol.Residual, Tolerance: opt.Tolerance}
	}
	return sol, nil
}

// stationary repeats x ← x + M(B − A·x) with one V-cycle as M.
func (h *Hierarchy) stationary(sys *System, x []float64, tol float64, maxIter int) (int, float64, bool) {
	n := len(x)
	r := make([]float64, n)
	z := make([]float64, n)
	bnorm := floats.Norm(sys.B, 2)
	if bnorm == 0 {
		return 0, 0, true
	}
	for it := 0; ; it++ {
		sys.A.MulVecTo(r, x)
		floats.SubTo(r, sys.B, r)
		res := floats.Norm(r, 2) / bnorm
		if res <= tol {
			return it, res, true
		}
		if it == maxIter || math.IsNaN(res) {
			return it, res, false
		}
		h.Precondition(z, r)
		floats.Add(x, z)
	}
}

// pcg runs conjugate gradients preconditioned with one V-cycle per step.
func (h *Hierarchy) pcg(sys *System, x []float64, tol float64, maxIter int) (int, float64, bool) {
	n := len(x)
	bnorm := floats.Norm(sys.B, 2)
	if bnorm == 0 {
		return 0, 0, true
	}
	r := make([]float64, n)
	sys.A.MulVecTo(r, x)
	floats.SubTo(r, sys.B, r)
	res := floats.Norm(r, 2) / bnorm
	if res <= tol {
		return 0, res, true
	}

	z := make([]float64, n)
	h.Precondition(z, r)
	p := make([]float64, n)
	copy(p, z)
	ap := make([]float64, n)
	rz := floats.Dot(r, z)
	for it := 1; it <= maxIter; it++ {
		sys.A.MulVecTo(ap, p)
		pAp := floats.Dot(p, ap)
		if pAp <= 0 || math.IsNaN(pAp) {
			return it, res, false
		}
		alpha := rz / pAp
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)
		res = floats.Norm(r, 2) / bnorm
		if res <= tol {
			return it, res, true
		}
		h.Precondition(z, r)
		rzNew := floats.Dot(r, z)
		beta := rzNew / rz
		rz = rzNew
		for i := range p {
			p[i] = z[i] + beta*p[i]
		}
	}
	return maxIter, res, false
}

func solveLBFGS(sys *System, opt SolverOptions) (*Solution, error) {
	n := len(sys.B)
	problem := optimize.Problem{
		Func: sys.Energy,
		Grad: func(grad, x []float64) { sys.Gradient(grad, x) },
	}
	// The gradient A·s − B is the negative residual; gonum checks its
	// infinity norm, which bounds the 2-norm by a factor of sqrt(n).
	threshold := opt.Tolerance * floats.Norm(sys.B, 2) / math.Sqrt(float64(n))
	settings := &optimize.Settings{
		GradientThreshold: max(threshold, 1e-300),
		MajorIterations:   opt.MaxIterations,
		Converger:         &optimize.FunctionConverge{Iterations: opt.MaxIterations},
	}
	result, err := optimize.Minimize(problem, make([]float64, n), settings, &optimize.LBFGS{})
	if result == nil {
		return nil, fmt.Errorf("intrinsic: lbfgs: %w", err)
	}

	sol := &Solution{X: result.X, Iterations: result.MajorIterations, Levels: 1}
	sol.Residual = relativeResidual(sys, sol.X, make([]float64, n))
	if sol.Residual > opt.Tolerance || math.IsNaN(sol.Residual) {
		return nil, ConvergenceError{Method: "lbfgs", Iterations: sol.Iterations, Residual: sol.Residual, Tolerance: opt.Tolerance}
	}
	return sol, nil
}
