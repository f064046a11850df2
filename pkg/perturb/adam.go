package perturb

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// adam holds the moment estimates for one run.
//
// The update follows PyTorch's torch.optim.Adam (no weight decay, no
// amsgrad) so that recorded runs stay reproducible:
//
//	m ← m + (1-β1)·(g - m)
//	v ← β2·v + (1-β2)·g²
//	θ ← θ - (lr/(1-β1ᵗ)) · m / (√v/√(1-β2ᵗ) + eps)
//
// Zero gradients are not skipped; they still decay the moments.
type adam struct {
	lr, beta1, beta2, eps float64

	m, v []float64
	sq   []float64 // g² scratch
	t    int
}

func newAdam(n int, cfg Config) *adam {
	return &adam{
		lr:    cfg.LR,
		beta1: cfg.Beta1,
		beta2: cfg.Beta2,
		eps:   cfg.AdamEps,
		m:     make([]float64, n),
		v:     make([]float64, n),
		sq:    make([]float64, n),
	}
}

// step applies one descent update to params in place.
func (a *adam) step(params, grads []float64) {
	a.t++
	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))
	stepSize := a.lr / bc1
	bc2Sqrt := math.Sqrt(bc2)

	vecmath.MulBlock(a.sq, grads, grads)
	for i, g := range grads {
		a.m[i] += (1 - a.beta1) * (g - a.m[i])
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*a.sq[i]
		denom := math.Sqrt(a.v[i])/bc2Sqrt + a.eps
		params[i] -= stepSize * a.m[i] / denom
	}
}
