// Package fit performs weighted non-linear least-squares fitting of the
// damped-harmonic-oscillator PSD model to a spectral estimate.
//
// The model is the Lorentzian-family displacement PSD
//
//	S(omega; A, Omega0, Gamma) = A / ((Omega0^2 - omega^2)^2 + omega^2*Gamma^2)
//
// with omega = 2*pi*f, trap (corner) angular frequency Omega0 and damping
// rate Gamma. Bins of an averaged periodogram have a standard deviation
// proportional to their expected value, so residuals are weighted by the
// current model value (heteroscedastic, iteratively reweighted); a uniform
// fit would be dominated by the high-power bins near resonance.
//
// Two entry points share one fit core: [PSD] takes an explicit window and
// initial guess, [PSDAuto] derives both from the located peak. Given equal
// window and guess inputs the two produce numerically identical results.
//
// A failed fit returns no result. Callers retry only after adjusting the
// window or guesses; refitting identical inputs is pointless because the
// computation is deterministic.
package fit
