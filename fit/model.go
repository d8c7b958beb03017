package fit

// Lorentzian evaluates the oscillator PSD model at angular frequency omega.
func Lorentzian(a, omega0, gamma, omega float64) float64 {
	d := omega0*omega0 - omega*omega
	return a / (d*d + omega*omega*gamma*gamma)
}

func evalModel(p []float64, omega float64) float64 {
	return Lorentzian(p[0], p[1], p[2], omega)
}

// gradModel fills g with the partial derivatives of the model with respect
// to (A, Omega0, Gamma) at angular frequency omega.
func gradModel(p []float64, omega float64, g []float64) {
	a, omega0, gamma := p[0], p[1], p[2]
	d := omega0*omega0 - omega*omega
	den := d*d + omega*omega*gamma*gamma
	den2 := den * den

	g[0] = 1 / den
	g[1] = -4 * a * omega0 * d / den2
	g[2] = -2 * a * omega * omega * gamma / den2
}
