package trace

import (
	"errors"
	"math"
	"testing"
)

func rampTrace(t *testing.T, n int, rate float64) *Trace {
	t.Helper()
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = float64(i)
	}
	tr, err := New(samples, rate)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, 1e6); !errors.Is(err, ErrEmptyStream) {
		t.Fatalf("empty stream: got %v", err)
	}
	if _, err := New([]float64{1}, 0); !errors.Is(err, ErrInvalidSampleRate) {
		t.Fatalf("zero rate: got %v", err)
	}
	if _, err := New([]float64{1}, -5); !errors.Is(err, ErrInvalidSampleRate) {
		t.Fatalf("negative rate: got %v", err)
	}
	if _, err := New([]float64{1}, math.NaN()); !errors.Is(err, ErrInvalidSampleRate) {
		t.Fatalf("NaN rate: got %v", err)
	}
}

func TestOwnsSamples(t *testing.T) {
	raw := []float64{1, 2, 3}
	tr, err := New(raw, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw[0] = 99
	if tr.Voltage()[0] != 1 {
		t.Fatalf("trace shares caller memory: %v", tr.Voltage())
	}
}

func TestUniformTimeBase(t *testing.T) {
	rate := 10e6
	tr := rampTrace(t, 1000, rate)

	times := tr.Times()
	want := 1 / rate
	for i := 1; i < len(times); i++ {
		dt := times[i] - times[i-1]
		if math.Abs(dt-want) > want*1e-9 {
			t.Fatalf("dt[%d]=%v want %v", i, dt, want)
		}
	}
	if tr.Time(0) != 0 {
		t.Fatalf("time[0]=%v want 0", tr.Time(0))
	}
	if got := tr.Duration(); math.Abs(got-1000/rate) > 1e-15 {
		t.Fatalf("duration=%v want %v", got, 1000/rate)
	}
}

func TestTimeDataExactCount(t *testing.T) {
	// One millisecond of a 10 MHz trace is exactly 10000 samples.
	tr := rampTrace(t, 20000, 10e6)

	times, volts, err := tr.TimeData(0, 1e-3)
	if err != nil {
		t.Fatalf("TimeData: %v", err)
	}
	if len(times) != len(volts) {
		t.Fatalf("len(t)=%d len(v)=%d", len(times), len(volts))
	}
	if len(times) != 10000 {
		t.Fatalf("len=%d want 10000", len(times))
	}
	if volts[0] != 0 || volts[9999] != 9999 {
		t.Fatalf("window content wrong: first=%v last=%v", volts[0], volts[9999])
	}
}

func TestTimeDataInterior(t *testing.T) {
	tr := rampTrace(t, 1000, 1000) // 1 kHz, 1 s

	times, volts, err := tr.TimeData(0.25, 0.5)
	if err != nil {
		t.Fatalf("TimeData: %v", err)
	}
	if len(times) != 250 {
		t.Fatalf("len=%d want 250", len(times))
	}
	if volts[0] != 250 {
		t.Fatalf("first sample=%v want 250", volts[0])
	}
	if math.Abs(times[0]-0.25) > 1e-12 {
		t.Fatalf("first time=%v want 0.25", times[0])
	}
}

func TestTimeDataClamping(t *testing.T) {
	tr := rampTrace(t, 100, 1000) // 0.1 s

	// Start before the trace clamps to the beginning without dragging the
	// end along: [-0.05, 0.01) still ends at 10 ms.
	times, volts, err := tr.TimeData(-0.05, 0.01)
	if err != nil {
		t.Fatalf("TimeData: %v", err)
	}
	if len(volts) != 10 || volts[0] != 0 || volts[9] != 9 {
		t.Fatalf("clamped start: len=%d volts=%v", len(volts), volts)
	}
	if times[0] != 0 {
		t.Fatalf("clamped start time=%v", times[0])
	}

	// End past the trace clamps to the end.
	_, volts, err = tr.TimeData(0.05, 1)
	if err != nil {
		t.Fatalf("TimeData: %v", err)
	}
	if len(volts) != 50 {
		t.Fatalf("clamped end len=%d want 50", len(volts))
	}

	// Fully outside.
	times, volts, err = tr.TimeData(5, 6)
	if err != nil {
		t.Fatalf("TimeData: %v", err)
	}
	if len(times) != 0 || len(volts) != 0 {
		t.Fatalf("out-of-range window should be empty: %d/%d", len(times), len(volts))
	}
}

func TestTimeDataReversedRange(t *testing.T) {
	tr := rampTrace(t, 100, 1000)
	if _, _, err := tr.TimeData(0.5, 0.5); err == nil {
		t.Fatalf("expected error for empty range")
	}
	if _, _, err := tr.TimeData(0.6, 0.5); err == nil {
		t.Fatalf("expected error for reversed range")
	}
}

func TestTimeDataIdempotent(t *testing.T) {
	tr := rampTrace(t, 1000, 1e6)

	t1, v1, err := tr.TimeData(1e-5, 5e-4)
	if err != nil {
		t.Fatalf("TimeData: %v", err)
	}
	t2, v2, err := tr.TimeData(1e-5, 5e-4)
	if err != nil {
		t.Fatalf("TimeData: %v", err)
	}
	if len(t1) != len(t2) {
		t.Fatalf("call lengths differ: %d vs %d", len(t1), len(t2))
	}
	for i := range t1 {
		if t1[i] != t2[i] || v1[i] != v2[i] {
			t.Fatalf("repeated call differs at %d", i)
		}
	}
}
