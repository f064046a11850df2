package perturb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"scaled", []float64{1, 2, 3}, []float64{2, 4, 6}, 1},
		{"opposite", []float64{1, -1}, []float64{-1, 1}, -1},
		{"orthogonal", []float64{1, 0}, []float64{0, 5}, 0},
		{"zero norm", []float64{0, 0}, []float64{1, 1}, 0},
		{"length mismatch", []float64{1}, []float64{1, 1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Fatalf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineGradMatchesFiniteDifference(t *testing.T) {
	ref := []float64{0.3, -1.2, 0.8, 0.05}
	emb := []float64{0.1, -0.9, 1.1, -0.4}
	scratch := make([]float64, len(ref))

	_, grad, ok := cosineWithGrad(ref, emb, scratch)
	if !ok {
		t.Fatal("cosineWithGrad reported zero norm")
	}

	const h = 1e-6
	for i := range emb {
		plus := append([]float64(nil), emb...)
		minus := append([]float64(nil), emb...)
		plus[i] += h
		minus[i] -= h
		fd := (CosineSimilarity(ref, plus) - CosineSimilarity(ref, minus)) / (2 * h)
		if math.Abs(fd-grad[i]) > 1e-7 {
			t.Errorf("grad[%d] = %v, finite difference %v", i, grad[i], fd)
		}
	}
}

func TestCosineGradZeroNorm(t *testing.T) {
	scratch := make([]float64, 2)
	if _, _, ok := cosineWithGrad([]float64{1, 1}, []float64{0, 0}, scratch); ok {
		t.Fatal("expected ok=false for zero-norm embedding")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, KindOK},
		{invalidf("steps"), KindInvalidConfig},
		{fmt.Errorf("%w: x", ErrEmbeddingFailure), KindEmbeddingFailure},
		{fmt.Errorf("wrap: %w", fmt.Errorf("%w: nan", ErrNumericDivergence)), KindNumericDivergence},
		{fmt.Errorf("aborted: %w", context.Canceled), KindCanceled},
		{errors.New("boom"), KindOther},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
