package perturb

// Project returns a copy of p with every component clamped to
// [-eps, eps]: the L∞ ball projection applied after each update.
func Project(p []float64, eps float64) []float64 {
	out := make([]float64, len(p))
	for i, v := range p {
		switch {
		case v > eps:
			out[i] = eps
		case v < -eps:
			out[i] = -eps
		default:
			out[i] = v
		}
	}
	return out
}

// ClampRange returns a copy of samples limited to [lo, hi].
func ClampRange(samples []float64, lo, hi float64) []float64 {
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = clamp(v, lo, hi)
	}
	return out
}

// Combine returns clamp(x + p) componentwise. x and p must have the same
// length. The clamp may shrink the effective perturbation below its budget
// on near-full-scale samples.
func Combine(x, p []float64, lo, hi float64) []float64 {
	if len(x) != len(p) {
		panic("perturb: waveform and perturbation length mismatch")
	}
	out := make([]float64, len(x))
	for i := range x {
		out[i] = clamp(x[i]+p[i], lo, hi)
	}
	return out
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
