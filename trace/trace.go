// Package trace holds uniformly sampled voltage time series.
//
// A Trace is immutable once constructed. Timestamps are never stored; they
// are derived from the sample index and the sample rate, so range queries
// resolve in O(1) index arithmetic.
package trace

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned by trace construction and queries.
var (
	ErrEmptyStream       = errors.New("trace: sample stream is empty")
	ErrInvalidSampleRate = errors.New("trace: sample rate must be positive")
)

// Trace is an ordered sequence of voltage samples with a uniform time base.
//
// Sample i was taken at time i/SampleRate seconds.
type Trace struct {
	voltage    []float64
	sampleRate float64
}

// New constructs a Trace from a raw sample stream and a known sample rate.
//
// The samples are copied; the Trace owns its data exclusively. Voltages are
// taken as-is, with no implicit unit conversion.
func New(samples []float64, sampleRate float64) (*Trace, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyStream
	}
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSampleRate, sampleRate)
	}

	return &Trace{
		voltage:    append([]float64(nil), samples...),
		sampleRate: sampleRate,
	}, nil
}

// Len returns the number of samples.
func (t *Trace) Len() int { return len(t.voltage) }

// SampleRate returns the sample rate in Hz.
func (t *Trace) SampleRate() float64 { return t.sampleRate }

// Duration returns the trace length in seconds.
func (t *Trace) Duration() float64 {
	return float64(len(t.voltage)) / t.sampleRate
}

// Time returns the timestamp of sample i in seconds.
func (t *Trace) Time(i int) float64 {
	return float64(i) / t.sampleRate
}

// Voltage returns the full sample sequence. The returned slice is shared
// with the Trace and must not be modified.
func (t *Trace) Voltage() []float64 { return t.voltage }

// Times materializes the full time axis.
func (t *Trace) Times() []float64 {
	out := make([]float64, len(t.voltage))
	for i := range out {
		out[i] = float64(i) / t.sampleRate
	}
	return out
}

// TimeData returns the (time, voltage) pairs whose timestamps fall in the
// closed-open interval [start, end).
//
// For a range aligned to the sample grid this yields exactly
// round((end-start)*SampleRate) samples. A start before the first sample
// clamps to the beginning of the trace; an end past the last sample clamps
// to the trace length. The voltage slice aliases the Trace and must not be
// modified.
func (t *Trace) TimeData(start, end float64) (times, voltage []float64, err error) {
	if end <= start {
		return nil, nil, fmt.Errorf("trace: time range [%v, %v) is empty or reversed", start, end)
	}

	first := int(math.Ceil(start*t.sampleRate - timeEps))
	last := first + int(math.Round((end-start)*t.sampleRate))
	if first < 0 {
		first = 0
	}
	if last > len(t.voltage) {
		last = len(t.voltage)
	}
	if first >= len(t.voltage) || last <= first {
		return []float64{}, []float64{}, nil
	}

	times = make([]float64, last-first)
	for i := range times {
		times[i] = float64(first+i) / t.sampleRate
	}

	return times, t.voltage[first:last], nil
}

// timeEps absorbs floating-point noise when mapping timestamps onto the
// sample grid, so a start time that is numerically a hair above a grid
// point still selects that sample.
const timeEps = 1e-9
