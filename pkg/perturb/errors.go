package perturb

import (
	"context"
	"errors"
)

// Sentinel errors. Callers match them with errors.Is; the wrapped message
// carries the step and the offending quantity.
var (
	// ErrInvalidConfiguration is returned for malformed run parameters or
	// input. It is always detected before the oracle is invoked.
	ErrInvalidConfiguration = errors.New("perturb: invalid configuration")

	// ErrEmbeddingFailure is returned when the oracle cannot produce an
	// embedding or a gradient for its input.
	ErrEmbeddingFailure = errors.New("perturb: embedding failure")

	// ErrNumericDivergence is returned when the loss, an embedding or a
	// gradient becomes NaN or infinite.
	ErrNumericDivergence = errors.New("perturb: numeric divergence")
)

// Error kinds reported by Kind.
const (
	KindOK                = "ok"
	KindInvalidConfig     = "invalid_config"
	KindEmbeddingFailure  = "embedding_failure"
	KindNumericDivergence = "numeric_divergence"
	KindCanceled          = "canceled"
	KindOther             = "other"
)

// Kind classifies err into a short label suitable for metrics and run
// records. A configuration error means the caller must fix its input; the
// numeric kinds mean the hyperparameters need to change.
func Kind(err error) string {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrInvalidConfiguration):
		return KindInvalidConfig
	case errors.Is(err, ErrEmbeddingFailure):
		return KindEmbeddingFailure
	case errors.Is(err, ErrNumericDivergence):
		return KindNumericDivergence
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindOther
	}
}
