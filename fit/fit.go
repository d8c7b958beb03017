package fit

import (
	"errors"
	"fmt"
	"math"

	"github.com/ZhenghaoDing/optoanalysis/internal/leastsq"
	"github.com/ZhenghaoDing/optoanalysis/psd"
	"github.com/ZhenghaoDing/optoanalysis/uncert"
)

// Errors returned by the fitting entry points.
var (
	ErrNoConvergence = errors.New("fit: optimizer did not converge")
	ErrOutOfBounds   = errors.New("fit: fitted parameters outside physical bounds")
)

const minFitBins = 8

// Window selects a contiguous frequency sub-range of a spectrum for
// fitting, centered on the resonance.
type Window struct {
	Center    float64 // Hz
	HalfWidth float64 // Hz
}

// Low and High return the window bounds in Hz.
func (w Window) Low() float64  { return w.Center - w.HalfWidth }
func (w Window) High() float64 { return w.Center + w.HalfWidth }

// Guess holds initial parameter values for the optimizer.
type Guess struct {
	A      float64 // amplitude scale
	Omega0 float64 // trap angular frequency, rad/s
	Gamma  float64 // damping rate, 1/s
}

// Config controls the optimizer budget. Zero values select defaults.
type Config struct {
	MaxIter int     // default 200
	Tol     float64 // relative chi-square convergence tolerance, default 1e-10
}

// Result holds the three fitted parameters with their standard deviations
// and the full parameter covariance. A Result is immutable: every fit
// invocation produces a new one.
type Result struct {
	A      uncert.Value // amplitude scale
	Omega0 uncert.Value // trap angular frequency, rad/s
	Gamma  uncert.Value // damping rate, 1/s

	// Cov is the (A, Omega0, Gamma) covariance matrix. Downstream
	// propagation should use it rather than the diagonal alone when the
	// parameter correlations matter.
	Cov [3][3]float64

	ChiSq  float64 // weighted residual sum of squares
	DoF    int     // fitted bins minus three
	Window Window  // the window the fit ran on
}

// PSD fits the oscillator model to the spectrum bins inside the given
// window, starting from the supplied guesses (manual mode).
func PSD(s *psd.Spectrum, win Window, guess Guess, cfg Config) (*Result, error) {
	return fitCore(s, win, guess, cfg)
}

// PSDAuto locates the resonance near approxFreq and fits it (automatic
// mode). Window bounds and initial guesses are derived from the located
// peak; the fit itself is the same core as [PSD].
func PSDAuto(s *psd.Spectrum, approxFreq float64, peakCfg psd.PeakConfig, cfg Config) (*Result, error) {
	pk, err := psd.FindPeak(s, approxFreq, peakCfg)
	if err != nil {
		return nil, err
	}
	win, guess := FromPeak(pk)
	return fitCore(s, win, guess, cfg)
}

// FromPeak derives a fit window and initial guesses from a located peak.
//
// The guessed damping is the full width of the peak in angular units
// (FWHM_omega approximates Gamma for this model), and the guessed amplitude
// reproduces the observed peak height: S(Omega0) = A/(Omega0^2*Gamma^2).
func FromPeak(pk psd.Peak) (Window, Guess) {
	win := Window{
		Center:    (pk.WinLow + pk.WinHigh) / 2,
		HalfWidth: (pk.WinHigh - pk.WinLow) / 2,
	}
	omega0 := 2 * math.Pi * pk.Freq
	gamma := 2 * math.Pi * 2 * pk.HalfWidth
	guess := Guess{
		A:      pk.Power * omega0 * omega0 * gamma * gamma,
		Omega0: omega0,
		Gamma:  gamma,
	}
	return win, guess
}

func fitCore(s *psd.Spectrum, win Window, guess Guess, cfg Config) (*Result, error) {
	if win.HalfWidth <= 0 {
		return nil, fmt.Errorf("fit: window half-width must be positive: %v", win.HalfWidth)
	}
	if guess.A <= 0 || guess.Omega0 <= 0 || guess.Gamma <= 0 {
		return nil, fmt.Errorf("fit: initial guesses must be positive: %+v", guess)
	}

	freqs, power := s.Slice(win.Low(), win.High())
	if len(freqs) < minFitBins {
		return nil, fmt.Errorf("fit: window [%v, %v] Hz holds only %d bins, need %d",
			win.Low(), win.High(), len(freqs), minFitBins)
	}

	omegas := make([]float64, len(freqs))
	for i, f := range freqs {
		omegas[i] = 2 * math.Pi * f
	}

	prob := leastsq.Problem{
		X:    omegas,
		Y:    power,
		Eval: evalModel,
		Grad: gradModel,
		// Averaged-periodogram bins scatter proportionally to their
		// expected value.
		Sigma: evalModel,
	}

	sol, err := leastsq.Solve(prob, []float64{guess.A, guess.Omega0, guess.Gamma}, leastsq.Settings{
		MaxIter:   cfg.MaxIter,
		TolRelChi: cfg.Tol,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoConvergence, err)
	}

	a, omega0, gamma := sol.Params[0], sol.Params[1], sol.Params[2]
	if err := checkBounds(a, omega0, gamma); err != nil {
		return nil, err
	}

	res := &Result{
		A:      uncert.V(a, math.Sqrt(sol.Cov[0][0])),
		Omega0: uncert.V(omega0, math.Sqrt(sol.Cov[1][1])),
		Gamma:  uncert.V(gamma, math.Sqrt(sol.Cov[2][2])),
		ChiSq:  sol.ChiSq,
		DoF:    sol.DoF,
		Window: win,
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			res.Cov[i][j] = sol.Cov[i][j]
		}
	}
	return res, nil
}

// checkBounds rejects converged parameters that are not physically valid:
// amplitude, trap frequency and damping must all be positive.
func checkBounds(a, omega0, gamma float64) error {
	if a <= 0 || omega0 <= 0 || gamma <= 0 {
		return fmt.Errorf("%w: A=%g Omega0=%g Gamma=%g", ErrOutOfBounds, a, omega0, gamma)
	}
	if math.IsNaN(a) || math.IsNaN(omega0) || math.IsNaN(gamma) {
		return fmt.Errorf("%w: non-finite parameters", ErrOutOfBounds)
	}
	return nil
}
