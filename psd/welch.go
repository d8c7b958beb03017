// Package psd estimates one-sided power spectral densities from voltage
// traces via Welch's method, and locates resonance peaks in them.
//
// The estimate is density-scaled: integrating the PSD over frequency
// approximates the mean-squared signal power (Parseval consistency). The
// frequency axis spans [0, sampleRate/2] inclusive of the Nyquist bin.
package psd

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/ZhenghaoDing/optoanalysis/trace"
	"github.com/ZhenghaoDing/optoanalysis/window"
)

// ErrPeakNotFound reports that no local maximum exceeding the surrounding
// noise floor was found within the search neighborhood.
var ErrPeakNotFound = errors.New("psd: no peak above noise floor near target frequency")

const (
	defaultOverlap    = 0.5
	maxSegmentLength  = 1 << 20
	defaultWindowType = window.TypeHann
)

// Config holds Welch estimation parameters. Zero values select defaults.
type Config struct {
	// SegmentLength is the per-segment FFT size. It must be a power of
	// two. Zero selects the largest power of two not exceeding the trace
	// length, capped at 2^20.
	SegmentLength int
	// Overlap is the fractional segment overlap in [0, 1). Zero selects
	// 0.5. Use a negative value for explicit zero overlap.
	Overlap float64
	// Window is the taper applied to each segment (default Hann).
	Window window.Type
}

func (c Config) normalized(traceLen int) (Config, error) {
	if c.SegmentLength == 0 {
		c.SegmentLength = floorPowerOf2(traceLen)
		if c.SegmentLength > maxSegmentLength {
			c.SegmentLength = maxSegmentLength
		}
	}
	if c.SegmentLength < 2 || c.SegmentLength&(c.SegmentLength-1) != 0 {
		return c, fmt.Errorf("psd: segment length must be a power of two >= 2: %d", c.SegmentLength)
	}
	if c.SegmentLength > traceLen {
		return c, fmt.Errorf("psd: segment length %d exceeds trace length %d", c.SegmentLength, traceLen)
	}
	switch {
	case c.Overlap == 0:
		c.Overlap = defaultOverlap
	case c.Overlap < 0:
		c.Overlap = 0
	case c.Overlap >= 1:
		return c, fmt.Errorf("psd: overlap must be < 1: %v", c.Overlap)
	}
	if c.Window == 0 {
		c.Window = defaultWindowType
	}
	return c, nil
}

// Spectrum is an immutable one-sided PSD estimate.
type Spectrum struct {
	freqs      []float64
	power      []float64
	sampleRate float64
	resolution float64
	segments   int
}

// Freqs returns the strictly increasing frequency axis in Hz. The slice is
// shared with the Spectrum and must not be modified.
func (s *Spectrum) Freqs() []float64 { return s.freqs }

// Power returns the PSD values in V^2/Hz, aligned with Freqs. The slice is
// shared with the Spectrum and must not be modified.
func (s *Spectrum) Power() []float64 { return s.power }

// SampleRate returns the sample rate of the source trace in Hz.
func (s *Spectrum) SampleRate() float64 { return s.sampleRate }

// Resolution returns the bin spacing in Hz.
func (s *Spectrum) Resolution() float64 { return s.resolution }

// Segments returns the number of averaged periodogram segments.
func (s *Spectrum) Segments() int { return s.segments }

// Len returns the number of frequency bins.
func (s *Spectrum) Len() int { return len(s.freqs) }

// Welch estimates the PSD of a trace by averaging windowed, overlapping
// periodogram segments.
//
// Each segment has its mean removed, is tapered by the configured window in
// periodic form, transformed, and accumulated as magnitude squared. The
// average is normalized by 2/(sampleRate * sum(w^2)), with the DC and
// Nyquist bins not doubled. The result is bit-for-bit reproducible: segments
// are accumulated in index order regardless of any internal batching.
func Welch(tr *trace.Trace, cfg Config) (*Spectrum, error) {
	cfg, err := cfg.normalized(tr.Len())
	if err != nil {
		return nil, err
	}

	seg := cfg.SegmentLength
	hop := seg - int(math.Round(cfg.Overlap*float64(seg)))
	if hop < 1 {
		hop = 1
	}

	coeffs := window.Generate(cfg.Window, seg, window.WithPeriodic())
	winEnergy := window.Energy(coeffs)

	plan, err := algofft.NewPlan64(seg)
	if err != nil {
		return nil, fmt.Errorf("psd: fft plan: %w", err)
	}

	bins := seg/2 + 1
	acc := make([]float64, bins)
	segPower := make([]float64, bins)
	re := make([]float64, bins)
	im := make([]float64, bins)
	buf := make([]float64, seg)
	in := make([]complex128, seg)
	out := make([]complex128, seg)

	voltage := tr.Voltage()
	count := 0
	for start := 0; start+seg <= len(voltage); start += hop {
		segment := voltage[start : start+seg]

		mean := 0.0
		for _, v := range segment {
			mean += v
		}
		mean /= float64(seg)

		for i, v := range segment {
			buf[i] = v - mean
		}
		if err := window.ApplyCoefficientsInPlace(buf, coeffs); err != nil {
			return nil, fmt.Errorf("psd: window: %w", err)
		}

		for i, v := range buf {
			in[i] = complex(v, 0)
		}
		if err := plan.Forward(out, in); err != nil {
			return nil, fmt.Errorf("psd: fft: %w", err)
		}

		for i := 0; i < bins; i++ {
			re[i] = real(out[i])
			im[i] = imag(out[i])
		}
		vecmath.Power(segPower, re, im)
		vecmath.AddBlockInPlace(acc, segPower)
		count++
	}
	if count == 0 {
		return nil, fmt.Errorf("psd: trace too short for segment length %d", seg)
	}

	sampleRate := tr.SampleRate()
	scale := 2 / (sampleRate * winEnergy * float64(count))
	for i := range acc {
		acc[i] *= scale
	}
	// One-sided spectrum: DC and Nyquist have no mirror bin.
	acc[0] /= 2
	acc[bins-1] /= 2

	freqs := make([]float64, bins)
	resolution := sampleRate / float64(seg)
	for i := range freqs {
		freqs[i] = float64(i) * resolution
	}

	return &Spectrum{
		freqs:      freqs,
		power:      acc,
		sampleRate: sampleRate,
		resolution: resolution,
		segments:   count,
	}, nil
}

// Area integrates the PSD over the closed frequency range [fLow, fHigh]
// using the trapezoidal rule, interpolating at the range edges when they
// fall between bins. It is a pure function of the already-computed estimate.
func (s *Spectrum) Area(fLow, fHigh float64) (float64, error) {
	if fHigh <= fLow {
		return 0, fmt.Errorf("psd: frequency range [%v, %v] is empty or reversed", fLow, fHigh)
	}
	nyquist := s.freqs[len(s.freqs)-1]
	if fLow < 0 || fHigh > nyquist {
		return 0, fmt.Errorf("psd: frequency range [%v, %v] outside [0, %v]", fLow, fHigh, nyquist)
	}

	area := 0.0
	prevF := fLow
	prevP := s.interpolate(fLow)
	for i := range s.freqs {
		f := s.freqs[i]
		if f <= fLow {
			continue
		}
		if f >= fHigh {
			break
		}
		area += 0.5 * (prevP + s.power[i]) * (f - prevF)
		prevF = f
		prevP = s.power[i]
	}
	area += 0.5 * (prevP + s.interpolate(fHigh)) * (fHigh - prevF)

	return area, nil
}

// Slice returns the (freqs, power) bins whose frequency falls in the closed
// range [fLow, fHigh]. The returned slices alias the Spectrum.
func (s *Spectrum) Slice(fLow, fHigh float64) (freqs, power []float64) {
	lo := 0
	for lo < len(s.freqs) && s.freqs[lo] < fLow {
		lo++
	}
	hi := lo
	for hi < len(s.freqs) && s.freqs[hi] <= fHigh {
		hi++
	}
	return s.freqs[lo:hi], s.power[lo:hi]
}

// interpolate returns the PSD value at frequency f by linear interpolation
// between neighbouring bins. f must lie within the frequency axis.
func (s *Spectrum) interpolate(f float64) float64 {
	idx := f / s.resolution
	i := int(idx)
	if i >= len(s.freqs)-1 {
		return s.power[len(s.power)-1]
	}
	t := idx - float64(i)
	return s.power[i] + t*(s.power[i+1]-s.power[i])
}

func floorPowerOf2(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}
