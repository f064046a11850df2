package voiceprint

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/haivivi/voiceshield/pkg/perturb"
)

// DefaultThreshold is the cosine similarity above which two recordings
// are attributed to the same speaker.
const DefaultThreshold = 0.4

// Verdict is the outcome of a speaker comparison.
type Verdict struct {
	Score       float64 `json:"score" yaml:"score"`
	Threshold   float64 `json:"threshold" yaml:"threshold"`
	SameSpeaker bool    `json:"same_speaker" yaml:"same_speaker"`
}

// Verifier decides whether two recordings share a speaker.
type Verifier struct {
	embedder  Embedder
	threshold float64
}

// NewVerifier creates a Verifier. A threshold outside (-1, 1) selects
// DefaultThreshold.
func NewVerifier(e Embedder, threshold float64) *Verifier {
	if !(threshold > -1 && threshold < 1) {
		threshold = DefaultThreshold
	}
	return &Verifier{embedder: e, threshold: threshold}
}

// Threshold returns the decision threshold.
func (v *Verifier) Threshold() float64 { return v.threshold }

// Verify embeds a and b and compares them.
func (v *Verifier) Verify(ctx context.Context, a, b []float64) (Verdict, error) {
	ea, err := v.embedder.Embed(ctx, a)
	if err != nil {
		return Verdict{}, fmt.Errorf("voiceprint: embed first: %w", err)
	}
	eb, err := v.embedder.Embed(ctx, b)
	if err != nil {
		return Verdict{}, fmt.Errorf("voiceprint: embed second: %w", err)
	}
	return v.Compare(ea, eb), nil
}

// Compare applies the threshold to two precomputed embeddings.
func (v *Verifier) Compare(a, b []float64) Verdict {
	score := perturb.CosineSimilarity(a, b)
	return Verdict{Score: score, Threshold: v.threshold, SameSpeaker: score > v.threshold}
}

// Matrix embeds every recording concurrently and returns the pairwise
// cosine similarity matrix.
func (v *Verifier) Matrix(ctx context.Context, recordings [][]float64) ([][]float64, error) {
	embs := make([][]float64, len(recordings))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, rec := range recordings {
		g.Go(func() error {
			e, err := v.embedder.Embed(ctx, rec)
			if err != nil {
				return fmt.Errorf("voiceprint: embed recording %d: %w", i, err)
			}
			embs[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := make([][]float64, len(embs))
	for i := range embs {
		m[i] = make([]float64, len(embs))
		for j := range embs {
			if i == j {
				m[i][j] = 1
				continue
			}
			m[i][j] = perturb.CosineSimilarity(embs[i], embs[j])
		}
	}
	return m, nil
}
