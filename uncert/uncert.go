// Package uncert provides scalar values that carry a standard deviation.
//
// Arithmetic propagates uncertainty to first order (linearization around the
// nominal value), assuming independent operands. This is the standard error
// propagation used throughout the fitting and calibration packages; callers
// that know their operands are correlated must propagate through the full
// covariance themselves.
package uncert

import (
	"fmt"
	"math"
)

// Value is a nominal value with an associated standard deviation.
//
// The zero Value is an exact zero.
type Value struct {
	N float64 // nominal value
	S float64 // standard deviation, always >= 0
}

// V returns a Value with the given nominal value and standard deviation.
// A negative standard deviation is treated as its absolute value.
func V(nominal, stdDev float64) Value {
	return Value{N: nominal, S: math.Abs(stdDev)}
}

// Exact returns a Value with zero uncertainty.
func Exact(nominal float64) Value {
	return Value{N: nominal}
}

// RelErr returns S/|N|. It returns +Inf for an uncertain zero and 0 for an
// exact zero.
func (v Value) RelErr() float64 {
	if v.N == 0 {
		if v.S == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return v.S / math.Abs(v.N)
}

// Add returns v + o.
func (v Value) Add(o Value) Value {
	return Value{N: v.N + o.N, S: math.Hypot(v.S, o.S)}
}

// Sub returns v - o.
func (v Value) Sub(o Value) Value {
	return Value{N: v.N - o.N, S: math.Hypot(v.S, o.S)}
}

// Mul returns v * o with sigma = sqrt((o.N*v.S)^2 + (v.N*o.S)^2).
func (v Value) Mul(o Value) Value {
	return Value{
		N: v.N * o.N,
		S: math.Hypot(o.N*v.S, v.N*o.S),
	}
}

// Div returns v / o. Division by an exact zero yields NaN/Inf in the usual
// floating-point way rather than panicking.
func (v Value) Div(o Value) Value {
	n := v.N / o.N
	return Value{
		N: n,
		S: math.Hypot(v.S/o.N, v.N*o.S/(o.N*o.N)),
	}
}

// Scale returns k * v for an exact scalar k.
func (v Value) Scale(k float64) Value {
	return Value{N: k * v.N, S: math.Abs(k) * v.S}
}

// Pow returns v^p for an exact exponent p.
func (v Value) Pow(p float64) Value {
	n := math.Pow(v.N, p)
	return Value{
		N: n,
		S: math.Abs(p*math.Pow(v.N, p-1)) * v.S,
	}
}

// Sqrt returns the square root of v.
func (v Value) Sqrt() Value {
	return v.Pow(0.5)
}

// Apply returns f(v) with the uncertainty propagated through the supplied
// derivative: sigma_out = |dfdx(N)| * S.
func (v Value) Apply(f, dfdx func(float64) float64) Value {
	return Value{
		N: f(v.N),
		S: math.Abs(dfdx(v.N)) * v.S,
	}
}

// String renders the value as "nominal +/- stddev".
func (v Value) String() string {
	return fmt.Sprintf("%.6g +/- %.3g", v.N, v.S)
}
