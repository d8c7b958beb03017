// Package leastsq implements dense weighted non-linear least squares via the
// Levenberg-Marquardt algorithm.
//
// The solver is deliberately small: the fitting problems in this module have
// a handful of parameters, so the normal equations are formed explicitly and
// solved by Gaussian elimination with partial pivoting. The damping term is
// a ridge on the diagonal of the normal matrix, scaled per-parameter by the
// corresponding curvature (Marquardt scaling).
package leastsq

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned by the solver.
var (
	ErrNoConvergence = errors.New("leastsq: no convergence within iteration budget")
	ErrSingular      = errors.New("leastsq: normal matrix is singular")
	ErrBadProblem    = errors.New("leastsq: malformed problem")
)

// Problem describes a weighted curve-fitting problem y ~ f(p, x).
type Problem struct {
	// X and Y are the observation abscissae and values. They must have
	// equal, non-zero length.
	X, Y []float64

	// Eval returns the model value f(p, x).
	Eval func(p []float64, x float64) float64

	// Grad fills g with the partial derivatives df/dp_j at (p, x).
	// len(g) equals the parameter count.
	Grad func(p []float64, x float64, g []float64)

	// Sigma returns the expected standard deviation of the observation at
	// (p, x). It is consulted every iteration, which makes heteroscedastic
	// model-dependent weighting (sigma proportional to the current model
	// value) an iteratively reweighted fit. A nil Sigma means unit weights.
	Sigma func(p []float64, x float64) float64
}

// Settings control the iteration budget and damping schedule.
// Zero values select defaults.
type Settings struct {
	MaxIter    int     // default 200
	TolRelChi  float64 // relative chi-square improvement considered converged, default 1e-10
	InitLambda float64 // initial damping, default 1e-3
	LambdaUp   float64 // damping multiplier on a rejected step, default 10
	LambdaDown float64 // damping divisor on an accepted step, default 10
}

func (s Settings) normalized() Settings {
	if s.MaxIter <= 0 {
		s.MaxIter = 200
	}
	if s.TolRelChi <= 0 {
		s.TolRelChi = 1e-10
	}
	if s.InitLambda <= 0 {
		s.InitLambda = 1e-3
	}
	if s.LambdaUp <= 1 {
		s.LambdaUp = 10
	}
	if s.LambdaDown <= 1 {
		s.LambdaDown = 10
	}
	return s
}

// Solution holds the converged parameters and their covariance.
type Solution struct {
	Params []float64
	// Cov is the parameter covariance (J^T W J)^-1 scaled by the reduced
	// chi-square, so supplied sigmas only need to be correct up to a
	// common factor.
	Cov    [][]float64
	ChiSq  float64 // weighted residual sum of squares at the solution
	Iters  int
	DoF    int // observations minus parameters
}

// Solve runs Levenberg-Marquardt from the initial guess p0.
func Solve(prob Problem, p0 []float64, settings Settings) (Solution, error) {
	n := len(prob.X)
	m := len(p0)
	switch {
	case n == 0 || len(prob.Y) != n:
		return Solution{}, fmt.Errorf("%w: %d observations, %d values", ErrBadProblem, n, len(prob.Y))
	case m == 0:
		return Solution{}, fmt.Errorf("%w: no parameters", ErrBadProblem)
	case n <= m:
		return Solution{}, fmt.Errorf("%w: %d observations for %d parameters", ErrBadProblem, n, m)
	case prob.Eval == nil || prob.Grad == nil:
		return Solution{}, fmt.Errorf("%w: missing model callbacks", ErrBadProblem)
	}

	settings = settings.normalized()

	p := append([]float64(nil), p0...)
	trial := make([]float64, m)
	grad := make([]float64, m)
	jtr := make([]float64, m)
	jtj := newMatrix(m)
	damped := newMatrix(m)
	step := make([]float64, m)

	chi := chiSquare(prob, p)
	if math.IsNaN(chi) || math.IsInf(chi, 0) {
		return Solution{}, fmt.Errorf("%w: initial guess yields non-finite residuals", ErrBadProblem)
	}

	lambda := settings.InitLambda
	converged := false
	iters := 0

	for iters = 1; iters <= settings.MaxIter; iters++ {
		// Build the normal equations at the current point.
		for j := range jtr {
			jtr[j] = 0
			for k := range jtj[j] {
				jtj[j][k] = 0
			}
		}
		for i := 0; i < n; i++ {
			x := prob.X[i]
			w := 1.0
			if prob.Sigma != nil {
				s := prob.Sigma(p, x)
				if s > 0 && !math.IsInf(s, 0) {
					w = 1 / s
				}
			}
			r := (prob.Y[i] - prob.Eval(p, x)) * w
			prob.Grad(p, x, grad)
			for j := 0; j < m; j++ {
				gj := grad[j] * w
				jtr[j] += gj * r
				for k := j; k < m; k++ {
					jtj[j][k] += gj * grad[k] * w
				}
			}
		}
		for j := 1; j < m; j++ {
			for k := 0; k < j; k++ {
				jtj[j][k] = jtj[k][j]
			}
		}

		accepted := false
		for attempt := 0; attempt < maxLambdaGrowth; attempt++ {
			for j := 0; j < m; j++ {
				copy(damped[j], jtj[j])
				damped[j][j] += lambda * jtj[j][j]
				if damped[j][j] == 0 {
					damped[j][j] = lambda
				}
			}
			if err := solveLinear(damped, jtr, step); err != nil {
				lambda *= settings.LambdaUp
				continue
			}

			for j := 0; j < m; j++ {
				trial[j] = p[j] + step[j]
			}
			trialChi := chiSquare(prob, trial)
			if !math.IsNaN(trialChi) && trialChi <= chi {
				if chi-trialChi <= settings.TolRelChi*chi {
					converged = true
				}
				copy(p, trial)
				chi = trialChi
				lambda /= settings.LambdaDown
				if lambda < minLambda {
					lambda = minLambda
				}
				accepted = true
				break
			}
			lambda *= settings.LambdaUp
		}

		if !accepted {
			// Damping grew until steps stopped changing chi-square:
			// treat the current point as stationary.
			converged = true
		}
		if converged {
			break
		}
	}

	if !converged {
		return Solution{}, fmt.Errorf("%w after %d iterations (chi2=%g)", ErrNoConvergence, settings.MaxIter, chi)
	}

	cov, err := covariance(prob, p, chi)
	if err != nil {
		return Solution{}, err
	}

	return Solution{
		Params: p,
		Cov:    cov,
		ChiSq:  chi,
		Iters:  iters,
		DoF:    n - m,
	}, nil
}

const (
	maxLambdaGrowth = 50
	minLambda       = 1e-12
)

func chiSquare(prob Problem, p []float64) float64 {
	sum := 0.0
	for i := range prob.X {
		x := prob.X[i]
		w := 1.0
		if prob.Sigma != nil {
			s := prob.Sigma(p, x)
			if s > 0 && !math.IsInf(s, 0) {
				w = 1 / s
			}
		}
		r := (prob.Y[i] - prob.Eval(p, x)) * w
		sum += r * r
	}
	return sum
}

// covariance computes (J^T W J)^-1 * chi2/(n-m) at the solution.
func covariance(prob Problem, p []float64, chi float64) ([][]float64, error) {
	n := len(prob.X)
	m := len(p)

	jtj := newMatrix(m)
	grad := make([]float64, m)
	for i := 0; i < n; i++ {
		x := prob.X[i]
		w := 1.0
		if prob.Sigma != nil {
			s := prob.Sigma(p, x)
			if s > 0 && !math.IsInf(s, 0) {
				w = 1 / s
			}
		}
		prob.Grad(p, x, grad)
		for j := 0; j < m; j++ {
			for k := j; k < m; k++ {
				jtj[j][k] += grad[j] * grad[k] * w * w
			}
		}
	}
	for j := 1; j < m; j++ {
		for k := 0; k < j; k++ {
			jtj[j][k] = jtj[k][j]
		}
	}

	inv, err := invert(jtj)
	if err != nil {
		return nil, err
	}

	scale := chi / float64(n-m)
	for j := range inv {
		for k := range inv[j] {
			inv[j][k] *= scale
		}
	}
	return inv, nil
}

func newMatrix(m int) [][]float64 {
	out := make([][]float64, m)
	for i := range out {
		out[i] = make([]float64, m)
	}
	return out
}

// solveLinear solves A x = b by Gaussian elimination with partial pivoting.
// A and b are left unmodified.
func solveLinear(a [][]float64, b, x []float64) error {
	m := len(b)
	aug := make([][]float64, m)
	for i := range aug {
		aug[i] = make([]float64, m+1)
		copy(aug[i], a[i])
		aug[i][m] = b[i]
	}

	for col := 0; col < m; col++ {
		pivot := col
		for row := col + 1; row < m; row++ {
			if math.Abs(aug[row][col]) > math.Abs(aug[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(aug[pivot][col]) < pivotTol {
			return ErrSingular
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		for row := col + 1; row < m; row++ {
			f := aug[row][col] / aug[col][col]
			for k := col; k <= m; k++ {
				aug[row][k] -= f * aug[col][k]
			}
		}
	}

	for row := m - 1; row >= 0; row-- {
		sum := aug[row][m]
		for k := row + 1; k < m; k++ {
			sum -= aug[row][k] * x[k]
		}
		x[row] = sum / aug[row][row]
	}
	return nil
}

// invert returns the inverse of a symmetric positive-definite matrix by
// solving against unit vectors.
func invert(a [][]float64) ([][]float64, error) {
	m := len(a)
	inv := newMatrix(m)
	e := make([]float64, m)
	col := make([]float64, m)
	for j := 0; j < m; j++ {
		for i := range e {
			e[i] = 0
		}
		e[j] = 1
		if err := solveLinear(a, e, col); err != nil {
			return nil, err
		}
		for i := 0; i < m; i++ {
			inv[i][j] = col[i]
		}
	}
	return inv, nil
}

const pivotTol = 1e-300
