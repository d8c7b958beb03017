package leastsq

import (
	"errors"
	"math"
	"testing"
)

// expProblem builds y = p0 * exp(-p1 * x) sampled on a grid.
func expProblem(p0, p1 float64, n int) Problem {
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = float64(i) * 0.1
		y[i] = p0 * math.Exp(-p1*x[i])
	}
	return Problem{
		X: x,
		Y: y,
		Eval: func(p []float64, x float64) float64 {
			return p[0] * math.Exp(-p[1]*x)
		},
		Grad: func(p []float64, x float64, g []float64) {
			e := math.Exp(-p[1] * x)
			g[0] = e
			g[1] = -p[0] * x * e
		},
	}
}

func TestSolveRecoversExponential(t *testing.T) {
	prob := expProblem(5, 1.3, 50)

	sol, err := Solve(prob, []float64{2, 0.5}, Settings{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if math.Abs(sol.Params[0]-5) > 1e-6 {
		t.Fatalf("p0=%v want 5", sol.Params[0])
	}
	if math.Abs(sol.Params[1]-1.3) > 1e-6 {
		t.Fatalf("p1=%v want 1.3", sol.Params[1])
	}
	if sol.DoF != 48 {
		t.Fatalf("DoF=%d want 48", sol.DoF)
	}
	// Noise-free data converges to essentially zero residual.
	if sol.ChiSq > 1e-12 {
		t.Fatalf("chi2=%v want ~0", sol.ChiSq)
	}
}

func TestSolveRecoversQuadratic(t *testing.T) {
	// Linear-in-parameters model: LM must land on the exact solution.
	x := make([]float64, 30)
	y := make([]float64, 30)
	for i := range x {
		x[i] = float64(i-15) * 0.5
		y[i] = 2 + 0.7*x[i] - 1.1*x[i]*x[i]
	}
	prob := Problem{
		X: x,
		Y: y,
		Eval: func(p []float64, x float64) float64 {
			return p[0] + p[1]*x + p[2]*x*x
		},
		Grad: func(p []float64, x float64, g []float64) {
			g[0] = 1
			g[1] = x
			g[2] = x * x
		},
	}

	sol, err := Solve(prob, []float64{0, 0, 0}, Settings{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	want := []float64{2, 0.7, -1.1}
	for i, w := range want {
		if math.Abs(sol.Params[i]-w) > 1e-8 {
			t.Fatalf("p%d=%v want %v", i, sol.Params[i], w)
		}
	}
}

func TestSolveHeteroscedasticWeights(t *testing.T) {
	prob := expProblem(5, 1.3, 50)
	// Sigma proportional to the model value: the weighted fit must still
	// recover the exact parameters for noise-free data.
	prob.Sigma = func(p []float64, x float64) float64 {
		return p[0] * math.Exp(-p[1]*x)
	}

	sol, err := Solve(prob, []float64{3, 1}, Settings{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if math.Abs(sol.Params[0]-5) > 1e-6 || math.Abs(sol.Params[1]-1.3) > 1e-6 {
		t.Fatalf("params=%v want [5 1.3]", sol.Params)
	}
}

func TestSolveCovarianceShape(t *testing.T) {
	prob := expProblem(5, 1.3, 50)
	// Perturb one observation so the residual variance is non-zero and
	// the covariance scale is meaningful.
	prob.Y[10] *= 1.01

	sol, err := Solve(prob, []float64{2, 0.5}, Settings{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sol.Cov) != 2 || len(sol.Cov[0]) != 2 {
		t.Fatalf("covariance shape %dx%d", len(sol.Cov), len(sol.Cov[0]))
	}
	for i := 0; i < 2; i++ {
		if sol.Cov[i][i] <= 0 {
			t.Fatalf("cov[%d][%d]=%v not positive", i, i, sol.Cov[i][i])
		}
	}
	if math.Abs(sol.Cov[0][1]-sol.Cov[1][0]) > 1e-15*math.Abs(sol.Cov[0][1]) {
		t.Fatalf("covariance not symmetric: %v vs %v", sol.Cov[0][1], sol.Cov[1][0])
	}
}

func TestSolveBadProblems(t *testing.T) {
	good := expProblem(5, 1.3, 50)

	cases := []struct {
		name string
		prob Problem
		p0   []float64
	}{
		{"no observations", Problem{Eval: good.Eval, Grad: good.Grad}, []float64{1, 1}},
		{"mismatched lengths", Problem{X: good.X, Y: good.Y[:10], Eval: good.Eval, Grad: good.Grad}, []float64{1, 1}},
		{"no parameters", good, nil},
		{"underdetermined", Problem{X: good.X[:2], Y: good.Y[:2], Eval: good.Eval, Grad: good.Grad}, []float64{1, 1}},
		{"missing callbacks", Problem{X: good.X, Y: good.Y}, []float64{1, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Solve(tc.prob, tc.p0, Settings{}); !errors.Is(err, ErrBadProblem) {
				t.Fatalf("got %v, want ErrBadProblem", err)
			}
		})
	}
}

func TestSolveIterationBudget(t *testing.T) {
	prob := expProblem(5, 1.3, 50)

	_, err := Solve(prob, []float64{0.5, 4}, Settings{MaxIter: 1})
	if !errors.Is(err, ErrNoConvergence) {
		t.Fatalf("got %v, want ErrNoConvergence", err)
	}
}

func TestSolveLinearSingular(t *testing.T) {
	a := [][]float64{{1, 2}, {2, 4}}
	x := make([]float64, 2)
	if err := solveLinear(a, []float64{1, 2}, x); !errors.Is(err, ErrSingular) {
		t.Fatalf("got %v, want ErrSingular", err)
	}
}
