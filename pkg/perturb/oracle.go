package perturb

import "context"

// Oracle is a frozen, differentiable speaker-embedding model.
//
// Implementations must be deterministic for identical input and must not
// retain or modify the slices they are given. The optimizer calls Embed
// once for the reference recording and EmbedGrad once per step.
type Oracle interface {
	// Embed returns the embedding of samples.
	Embed(ctx context.Context, samples []float64) ([]float64, error)

	// EmbedGrad returns the embedding of samples together with its
	// vector-Jacobian product. The Backward closure is called at most once.
	EmbedGrad(ctx context.Context, samples []float64) ([]float64, Backward, error)
}

// Backward maps ∂L/∂embedding to ∂L/∂samples. The returned slice has the
// same length as the samples passed to EmbedGrad.
type Backward func(upstream []float64) ([]float64, error)
