package calib

import (
	"errors"
	"math"
	"testing"

	"github.com/ZhenghaoDing/optoanalysis/uncert"
)

func relDiff(got, want float64) float64 {
	return math.Abs(got-want) / math.Abs(want)
}

func TestExtractPinnedValues(t *testing.T) {
	// Hand-computed from the closed-form relations for a representative
	// low-vacuum measurement: Gamma = 4000 +/- 100 1/s, A = 6e11 +/- 1%,
	// P = 0.4 mbar with 15% gauge uncertainty.
	a := uncert.V(6e11, 6e9)
	gamma := uncert.V(4000, 100)

	params, err := Extract(a, gamma, 0.4, 0.15)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if d := relDiff(params.Radius.N, 3.43372e-8); d > 3e-3 {
		t.Fatalf("radius=%v want ~3.434e-8 m (rel %v)", params.Radius.N, d)
	}
	if d := relDiff(params.Radius.S, 5.2216e-9); d > 3e-3 {
		t.Fatalf("radius sigma=%v want ~5.22e-9 m (rel %v)", params.Radius.S, d)
	}
	if d := relDiff(params.Mass.N, 3.73086e-19); d > 3e-3 {
		t.Fatalf("mass=%v want ~3.731e-19 kg (rel %v)", params.Mass.N, d)
	}
	if d := relDiff(params.Mass.S, 1.1347e-19); d > 3e-3 {
		t.Fatalf("mass sigma=%v want ~1.135e-19 kg (rel %v)", params.Mass.S, d)
	}
	if d := relDiff(params.ConvFactor.N, 2.06027e5); d > 3e-3 {
		t.Fatalf("conv=%v want ~2.060e5 V/m (rel %v)", params.ConvFactor.N, d)
	}
	if d := relDiff(params.ConvFactor.S, 6.2906e4); d > 3e-3 {
		t.Fatalf("conv sigma=%v want ~6.29e4 V/m (rel %v)", params.ConvFactor.S, d)
	}
}

func TestExtractPropagationIdentities(t *testing.T) {
	a := uncert.V(6e11, 6e9)
	gamma := uncert.V(4000, 100)

	params, err := Extract(a, gamma, 0.4, 0.15)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	relR := params.Radius.RelErr()
	relM := params.Mass.RelErr()
	relC := params.ConvFactor.RelErr()

	// Radius combines pressure and damping errors in quadrature.
	wantR := math.Hypot(0.15, gamma.RelErr())
	if math.Abs(relR-wantR) > 1e-12 {
		t.Fatalf("rel radius=%v want %v", relR, wantR)
	}
	// Mass error is exactly twice the radius error.
	if math.Abs(relM-2*relR) > 1e-12 {
		t.Fatalf("rel mass=%v want %v", relM, 2*relR)
	}
	// Conversion factor combines amplitude, mass and damping errors.
	wantC := math.Sqrt(a.RelErr()*a.RelErr() + relM*relM + gamma.RelErr()*gamma.RelErr())
	if math.Abs(relC-wantC) > 1e-12 {
		t.Fatalf("rel conv=%v want %v", relC, wantC)
	}
}

func TestExtractScalesWithPressure(t *testing.T) {
	a := uncert.V(6e11, 6e9)
	gamma := uncert.V(4000, 100)

	p1, err := Extract(a, gamma, 0.4, 0.15)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	p2, err := Extract(a, gamma, 0.8, 0.15)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	// Radius is linear in pressure at fixed damping; mass goes as r^3.
	if d := relDiff(p2.Radius.N, 2*p1.Radius.N); d > 1e-12 {
		t.Fatalf("radius not linear in pressure (rel %v)", d)
	}
	if d := relDiff(p2.Mass.N, 8*p1.Mass.N); d > 1e-12 {
		t.Fatalf("mass not cubic in radius (rel %v)", d)
	}
}

func TestExtractExactInputs(t *testing.T) {
	// Exact inputs with zero pressure error give an exact radius.
	params, err := Extract(uncert.Exact(6e11), uncert.Exact(4000), 0.4, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if params.Radius.S != 0 || params.Mass.S != 0 || params.ConvFactor.S != 0 {
		t.Fatalf("exact inputs produced uncertainty: %+v", params)
	}
}

func TestExtractErrors(t *testing.T) {
	a := uncert.V(6e11, 6e9)
	gamma := uncert.V(4000, 100)

	if _, err := Extract(a, gamma, 0, 0.15); !errors.Is(err, ErrInvalidPressure) {
		t.Fatalf("zero pressure: got %v", err)
	}
	if _, err := Extract(a, gamma, -1, 0.15); !errors.Is(err, ErrInvalidPressure) {
		t.Fatalf("negative pressure: got %v", err)
	}
	if _, err := Extract(a, gamma, 0.4, -0.1); !errors.Is(err, ErrInvalidPressure) {
		t.Fatalf("negative relative error: got %v", err)
	}
	if _, err := Extract(a, uncert.V(-5, 1), 0.4, 0.15); !errors.Is(err, ErrNonPhysical) {
		t.Fatalf("negative damping: got %v", err)
	}
	if _, err := Extract(uncert.V(0, 1), gamma, 0.4, 0.15); !errors.Is(err, ErrNonPhysical) {
		t.Fatalf("zero amplitude: got %v", err)
	}
}
