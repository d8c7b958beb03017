package psd

import (
	"fmt"
	"math"
	"sort"
)

// PeakConfig controls resonance-peak location. Zero values select defaults.
type PeakConfig struct {
	// SearchHalfWidth is the half-width in Hz of the neighborhood searched
	// around the approximate frequency (default 10 kHz).
	SearchHalfWidth float64
	// SmoothBins is the moving-average length applied to the PSD before
	// the maximum search, to reduce noise sensitivity. Even values are
	// rounded up to odd (default 11).
	SmoothBins int
	// NoiseFactor is the factor by which the smoothed peak must exceed the
	// median smoothed power of the neighborhood (default 3).
	NoiseFactor float64
	// WindowLinewidths sets the fit-window half-width as a multiple of the
	// estimated peak half-width (default 10).
	WindowLinewidths float64
	// MinHalfWidth and MaxHalfWidth clamp the fit-window half-width in Hz
	// (defaults 500 and 15000, after the original's width search bounds).
	MinHalfWidth float64
	MaxHalfWidth float64
}

func (c PeakConfig) normalized() PeakConfig {
	if c.SearchHalfWidth <= 0 {
		c.SearchHalfWidth = 10e3
	}
	if c.SmoothBins <= 0 {
		c.SmoothBins = 11
	}
	if c.SmoothBins%2 == 0 {
		c.SmoothBins++
	}
	if c.NoiseFactor <= 0 {
		c.NoiseFactor = 3
	}
	if c.WindowLinewidths <= 0 {
		c.WindowLinewidths = 10
	}
	if c.MinHalfWidth <= 0 {
		c.MinHalfWidth = 500
	}
	if c.MaxHalfWidth <= 0 {
		c.MaxHalfWidth = 15e3
	}
	return c
}

// Peak describes a located resonance and a fit window bracketing it.
type Peak struct {
	Freq      float64 // refined peak frequency in Hz
	Power     float64 // raw PSD value at the peak bin
	HalfWidth float64 // -3 dB half-width of the smoothed peak in Hz

	// WinLow and WinHigh bound a frequency window suitable for fitting:
	// wide enough to bracket the resonance, narrow enough to exclude most
	// off-resonance baseline.
	WinLow  float64
	WinHigh float64
}

// FindPeak searches a neighborhood of approxFreq for the resonance peak.
//
// The PSD is smoothed with a short moving average, the maximum bin within
// the neighborhood is taken as the peak, and its -3 dB half-width estimates
// the linewidth. ErrPeakNotFound is returned when the smoothed maximum does
// not exceed the neighborhood's median power by the configured factor.
func FindPeak(s *Spectrum, approxFreq float64, cfg PeakConfig) (Peak, error) {
	cfg = cfg.normalized()

	nyquist := s.freqs[len(s.freqs)-1]
	if approxFreq <= 0 || approxFreq >= nyquist {
		return Peak{}, fmt.Errorf("psd: approximate frequency %v outside (0, %v)", approxFreq, nyquist)
	}

	lo := int(math.Ceil((approxFreq - cfg.SearchHalfWidth) / s.resolution))
	hi := int(math.Floor((approxFreq + cfg.SearchHalfWidth) / s.resolution))
	if lo < 1 {
		lo = 1
	}
	if hi > len(s.freqs)-1 {
		hi = len(s.freqs) - 1
	}
	if hi-lo+1 < cfg.SmoothBins {
		return Peak{}, fmt.Errorf("psd: search neighborhood around %v Hz holds only %d bins", approxFreq, hi-lo+1)
	}

	smoothed := movingAverage(s.power[lo:hi+1], cfg.SmoothBins)

	peakIdx := 0
	peakVal := smoothed[0]
	for i, v := range smoothed {
		if v > peakVal {
			peakVal = v
			peakIdx = i
		}
	}

	floor := median(smoothed)
	if floor <= 0 || peakVal < cfg.NoiseFactor*floor {
		return Peak{}, fmt.Errorf("%w: %v Hz (peak %.3g, floor %.3g)", ErrPeakNotFound, approxFreq, peakVal, floor)
	}

	peakBin := lo + peakIdx
	peakFreq := s.freqs[peakBin]

	halfWidth := s.halfWidthAt(smoothed, peakIdx)
	winHalf := clamp(cfg.WindowLinewidths*halfWidth, cfg.MinHalfWidth, cfg.MaxHalfWidth)

	winLow := peakFreq - winHalf
	if winLow < s.resolution {
		winLow = s.resolution
	}
	winHigh := peakFreq + winHalf
	if winHigh > nyquist {
		winHigh = nyquist
	}

	return Peak{
		Freq:      peakFreq,
		Power:     s.power[peakBin],
		HalfWidth: halfWidth,
		WinLow:    winLow,
		WinHigh:   winHigh,
	}, nil
}

// halfWidthAt estimates the -3 dB half-width in Hz of the peak at index
// peakIdx of the smoothed neighborhood, interpolating the crossing between
// bins on each side and averaging the two. A side that never crosses
// contributes the distance to the neighborhood edge.
func (s *Spectrum) halfWidthAt(smoothed []float64, peakIdx int) float64 {
	threshold := smoothed[peakIdx] / 2

	leftDist := float64(peakIdx)
	for i := peakIdx; i >= 1; i-- {
		if smoothed[i-1] <= threshold && smoothed[i] > threshold {
			x := crossing(float64(i-1), float64(i), smoothed[i-1], smoothed[i], threshold)
			leftDist = float64(peakIdx) - x
			break
		}
	}

	rightDist := float64(len(smoothed) - 1 - peakIdx)
	for i := peakIdx; i < len(smoothed)-1; i++ {
		if smoothed[i+1] <= threshold && smoothed[i] > threshold {
			x := crossing(float64(i), float64(i+1), smoothed[i], smoothed[i+1], threshold)
			rightDist = x - float64(peakIdx)
			break
		}
	}

	hw := (leftDist + rightDist) / 2 * s.resolution
	if hw <= 0 {
		hw = s.resolution
	}
	return hw
}

// crossing linearly interpolates the fractional index where the value
// crosses the threshold between two bins.
func crossing(i0, i1, v0, v1, threshold float64) float64 {
	denom := v1 - v0
	if denom == 0 {
		return (i0 + i1) / 2
	}
	return i0 + (threshold-v0)/denom*(i1-i0)
}

func movingAverage(values []float64, span int) []float64 {
	half := span / 2
	out := make([]float64, len(values))
	for i := range values {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi > len(values)-1 {
			hi = len(values) - 1
		}
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
