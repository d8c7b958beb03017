// Package optoanalysis analyses time-series voltage data from
// optical-tweezers and levitated-nanoparticle experiments.
//
// A [Dataset] bundles a voltage trace with its PSD estimate and exposes the
// full analysis surface: time-domain range queries, spectral queries, manual
// and automatic Lorentzian fitting, and physical calibration. Datasets are
// immutable values: the PSD is computed once at construction, every query is
// idempotent, and nothing is cached behind the caller's back.
//
//	ds, err := optoanalysis.New(samples, 10e6)
//	res, err := ds.FitAuto(70e3)
//	params, err := ds.ExtractPhysicalParameters(res, 0.377, 0.15)
package optoanalysis

import (
	"fmt"

	"github.com/ZhenghaoDing/optoanalysis/calib"
	"github.com/ZhenghaoDing/optoanalysis/fit"
	"github.com/ZhenghaoDing/optoanalysis/internal/rawio"
	"github.com/ZhenghaoDing/optoanalysis/psd"
	"github.com/ZhenghaoDing/optoanalysis/trace"
	"github.com/ZhenghaoDing/optoanalysis/window"
)

// Option configures Dataset construction.
type Option func(*config)

type config struct {
	psdCfg  psd.Config
	peakCfg psd.PeakConfig
	fitCfg  fit.Config
}

// WithSegmentLength sets the Welch segment length (a power of two).
func WithSegmentLength(n int) Option {
	return func(c *config) { c.psdCfg.SegmentLength = n }
}

// WithOverlap sets the fractional Welch segment overlap.
func WithOverlap(f float64) Option {
	return func(c *config) { c.psdCfg.Overlap = f }
}

// WithWindow sets the Welch segment taper.
func WithWindow(t window.Type) Option {
	return func(c *config) { c.psdCfg.Window = t }
}

// WithPeakSearch overrides the automatic peak-location parameters.
func WithPeakSearch(cfg psd.PeakConfig) Option {
	return func(c *config) { c.peakCfg = cfg }
}

// WithFitBudget overrides the optimizer iteration budget and tolerance.
func WithFitBudget(cfg fit.Config) Option {
	return func(c *config) { c.fitCfg = cfg }
}

// Dataset is an immutable trace plus its PSD estimate.
type Dataset struct {
	tr      *trace.Trace
	sp      *psd.Spectrum
	peakCfg psd.PeakConfig
	fitCfg  fit.Config
}

// New builds a Dataset from a raw sample stream and its sample rate.
func New(samples []float64, sampleRate float64, opts ...Option) (*Dataset, error) {
	var cfg config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	tr, err := trace.New(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	sp, err := psd.Welch(tr, cfg.psdCfg)
	if err != nil {
		return nil, err
	}

	return &Dataset{
		tr:      tr,
		sp:      sp,
		peakCfg: cfg.peakCfg,
		fitCfg:  cfg.fitCfg,
	}, nil
}

// Load reads a raw sample stream from a file and builds a Dataset.
func Load(path string, sampleRate float64, opts ...Option) (*Dataset, error) {
	samples, err := rawio.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(samples, sampleRate, opts...)
}

// LoadWithMetadata reads a raw sample stream plus a YAML metadata sidecar
// carrying the sample rate and ambient pressure. It returns the Dataset and
// the pressure in mbar.
func LoadWithMetadata(dataPath, metaPath string, opts ...Option) (*Dataset, float64, error) {
	meta, err := rawio.ReadMetadata(metaPath)
	if err != nil {
		return nil, 0, err
	}
	if meta.SampleRate <= 0 {
		return nil, 0, fmt.Errorf("optoanalysis: metadata %s: sample rate %v", metaPath, meta.SampleRate)
	}
	pressure := 0.0
	if meta.Pressure != "" {
		pressure, err = rawio.ParsePressure(meta.Pressure)
		if err != nil {
			return nil, 0, err
		}
	}

	ds, err := Load(dataPath, meta.SampleRate, opts...)
	if err != nil {
		return nil, 0, err
	}
	return ds, pressure, nil
}

// Trace returns the underlying voltage trace.
func (d *Dataset) Trace() *trace.Trace { return d.tr }

// PSD returns the whole-range spectral estimate.
func (d *Dataset) PSD() *psd.Spectrum { return d.sp }

// TimeData returns the (time, voltage) samples in the closed-open interval
// [start, end) seconds.
func (d *Dataset) TimeData(start, end float64) (times, voltage []float64, err error) {
	return d.tr.TimeData(start, end)
}

// AreaUnderPSD integrates the PSD over the closed frequency range
// [fLow, fHigh] Hz.
func (d *Dataset) AreaUnderPSD(fLow, fHigh float64) (float64, error) {
	return d.sp.Area(fLow, fHigh)
}

// Fit runs the oscillator fit on an explicit window with explicit initial
// guesses (manual mode).
func (d *Dataset) Fit(win fit.Window, guess fit.Guess) (*fit.Result, error) {
	return fit.PSD(d.sp, win, guess, d.fitCfg)
}

// FitAuto locates the resonance near approxFreq and fits it. Given the
// window and guesses that the peak locator derives, it is numerically
// identical to Fit.
func (d *Dataset) FitAuto(approxFreq float64) (*fit.Result, error) {
	return fit.PSDAuto(d.sp, approxFreq, d.peakCfg, d.fitCfg)
}

// ExtractPhysicalParameters converts a fit result plus the ambient pressure
// in mbar (with fractional uncertainty) into particle radius, mass and
// conversion factor.
func (d *Dataset) ExtractPhysicalParameters(res *fit.Result, pressureMbar, pressureRelErr float64) (calib.Parameters, error) {
	if res == nil {
		return calib.Parameters{}, fmt.Errorf("optoanalysis: nil fit result")
	}
	return calib.Extract(res.A, res.Gamma, pressureMbar, pressureRelErr)
}

// AnalyzeAuto chains the full pipeline: locate the resonance near
// approxFreq, fit it, and calibrate against the ambient pressure.
func (d *Dataset) AnalyzeAuto(approxFreq, pressureMbar, pressureRelErr float64) (*fit.Result, calib.Parameters, error) {
	res, err := d.FitAuto(approxFreq)
	if err != nil {
		return nil, calib.Parameters{}, err
	}
	params, err := d.ExtractPhysicalParameters(res, pressureMbar, pressureRelErr)
	if err != nil {
		return nil, calib.Parameters{}, err
	}
	return res, params, nil
}
