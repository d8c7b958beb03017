// Package calib converts fitted oscillator parameters and ambient pressure
// into physical particle properties.
//
// In the molecular-flow regime the gas damping rate of a levitated sphere is
// set by kinetic theory (Epstein drag), which makes the pressure-to-damping
// ratio a direct measure of the particle radius. Mass follows from the
// radius and the material density, and the voltage-to-displacement
// conversion factor from the equipartition-calibrated fit amplitude. All
// relations are closed-form; the computation is deterministic and performs
// no iteration.
package calib

import (
	"errors"
	"fmt"
	"math"

	"github.com/ZhenghaoDing/optoanalysis/uncert"
)

// Physical constants of the standard experiment: a silica nanosphere
// levitated in air at room temperature.
const (
	densitySilica       = 2200.0        // kg/m^3
	airMoleculeDiameter = 0.372e-9      // m (O'Hanlon, 2003)
	airViscosity        = 18.27e-6      // Pa s
	temperature         = 300.0         // K
	boltzmann           = 1.38064852e-23 // J/K
	pascalsPerMbar      = 100.0
)

// Errors returned by Extract.
var (
	ErrInvalidPressure = errors.New("calib: pressure must be positive")
	ErrNonPhysical     = errors.New("calib: derived quantity is non-physical")
)

// Parameters holds the derived physical quantities with propagated
// uncertainties.
type Parameters struct {
	Radius     uncert.Value // particle radius, m
	Mass       uncert.Value // particle mass, kg
	ConvFactor uncert.Value // detector conversion factor, V/m
}

// Extract derives particle radius, mass and conversion factor from a fitted
// amplitude and damping rate, the ambient pressure in mbar and its
// fractional uncertainty.
//
// The radius follows Epstein drag,
//
//	r = (0.619 * 9*pi * eta * dm^2) / (sqrt(2) * rho * kB * T0) * P/Gamma,
//
// the mass is rho * (4/3)*pi*r^3, and the conversion factor is
// sqrt(pi * A * m / (kB * T0 * Gamma)). Uncertainties propagate to first
// order: the relative radius error combines the pressure and damping errors
// in quadrature, the mass error is twice the relative radius error, and the
// conversion-factor error combines amplitude, mass and damping errors.
func Extract(a, gamma uncert.Value, pressureMbar, pressureRelErr float64) (Parameters, error) {
	if pressureMbar <= 0 || math.IsNaN(pressureMbar) {
		return Parameters{}, fmt.Errorf("%w: %v mbar", ErrInvalidPressure, pressureMbar)
	}
	if pressureRelErr < 0 || math.IsNaN(pressureRelErr) {
		return Parameters{}, fmt.Errorf("%w: relative error %v", ErrInvalidPressure, pressureRelErr)
	}
	if gamma.N <= 0 {
		return Parameters{}, fmt.Errorf("%w: damping rate %v", ErrNonPhysical, gamma.N)
	}
	if a.N <= 0 {
		return Parameters{}, fmt.Errorf("%w: fit amplitude %v", ErrNonPhysical, a.N)
	}

	pressure := pressureMbar * pascalsPerMbar

	radius := radiusCoefficient() * pressure / gamma.N
	relRadius := math.Hypot(pressureRelErr, gamma.RelErr())

	mass := densitySilica * (4.0 / 3.0) * math.Pi * radius * radius * radius
	relMass := 2 * relRadius

	if radius <= 0 || mass <= 0 || math.IsNaN(radius) || math.IsNaN(mass) {
		return Parameters{}, fmt.Errorf("%w: radius %g m, mass %g kg", ErrNonPhysical, radius, mass)
	}

	conv := math.Sqrt(math.Pi * a.N * mass / (boltzmann * temperature * gamma.N))
	relConv := math.Sqrt(a.RelErr()*a.RelErr() + relMass*relMass + gamma.RelErr()*gamma.RelErr())
	if math.IsNaN(conv) {
		return Parameters{}, fmt.Errorf("%w: conversion factor", ErrNonPhysical)
	}

	return Parameters{
		Radius:     uncert.V(radius, radius*relRadius),
		Mass:       uncert.V(mass, mass*relMass),
		ConvFactor: uncert.V(conv, conv*relConv),
	}, nil
}

// radiusCoefficient returns the Epstein-drag prefactor relating P/Gamma to
// the particle radius.
func radiusCoefficient() float64 {
	dm2 := airMoleculeDiameter * airMoleculeDiameter
	return (0.619 * 9 * math.Pi * airViscosity * dm2) /
		(math.Sqrt2 * densitySilica * boltzmann * temperature)
}
