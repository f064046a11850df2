package perturb

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// CosineSimilarity returns dot(a, b) / (|a|·|b|), in [-1, 1]. It returns 0
// when the lengths differ or either vector has zero norm.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	scratch := make([]float64, len(a))
	dot := dotInto(scratch, a, b)
	na := math.Sqrt(dotInto(scratch, a, a))
	nb := math.Sqrt(dotInto(scratch, b, b))
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

// cosineWithGrad returns cos(ref, emb) and its gradient with respect to
// emb:
//
//	∂cos/∂emb = ref/(|ref|·|emb|) - cos·emb/|emb|²
//
// ok is false when either norm is zero and the similarity is undefined.
func cosineWithGrad(ref, emb, scratch []float64) (sim float64, grad []float64, ok bool) {
	dot := dotInto(scratch, ref, emb)
	nr := math.Sqrt(dotInto(scratch, ref, ref))
	ne2 := dotInto(scratch, emb, emb)
	ne := math.Sqrt(ne2)
	if nr == 0 || ne == 0 {
		return 0, nil, false
	}
	sim = dot / (nr * ne)

	grad = make([]float64, len(emb))
	inv := 1 / (nr * ne)
	k := sim / ne2
	for i := range emb {
		grad[i] = ref[i]*inv - k*emb[i]
	}
	return sim, grad, true
}

// dotInto computes sum(a[i]*b[i]) using scratch for the elementwise product.
func dotInto(scratch, a, b []float64) float64 {
	scratch = scratch[:len(a)]
	vecmath.MulBlock(scratch, a, b)
	var sum float64
	for _, v := range scratch {
		sum += v
	}
	return sum
}
