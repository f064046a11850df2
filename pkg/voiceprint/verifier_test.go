package voiceprint

import (
	"context"
	"errors"
	"math"
	"testing"
)

// tableEmbedder returns a fixed embedding keyed by the first sample.
type tableEmbedder map[float64][]float64

func (e tableEmbedder) Embed(_ context.Context, samples []float64) ([]float64, error) {
	emb, ok := e[samples[0]]
	if !ok {
		return nil, errors.New("unknown recording")
	}
	return emb, nil
}

func TestVerifierVerify(t *testing.T) {
	e := tableEmbedder{
		1: {1, 0, 0},
		2: {0.9, 0.1, 0},
		3: {0, 1, 0},
	}
	v := NewVerifier(e, 0)
	if v.Threshold() != 0 {
		t.Fatalf("Threshold = %v, want 0", v.Threshold())
	}
	v = NewVerifier(e, math.NaN())
	if v.Threshold() != DefaultThreshold {
		t.Fatalf("Threshold = %v, want default", v.Threshold())
	}

	ctx := context.Background()
	same, err := v.Verify(ctx, []float64{1}, []float64{2})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !same.SameSpeaker || same.Score < 0.99 {
		t.Fatalf("verdict = %+v, want same speaker", same)
	}

	diff, err := v.Verify(ctx, []float64{1}, []float64{3})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if diff.SameSpeaker || diff.Score != 0 {
		t.Fatalf("verdict = %+v, want different speakers", diff)
	}

	if _, err := v.Verify(ctx, []float64{1}, []float64{9}); err == nil {
		t.Fatal("expected embed error")
	}
}

func TestVerifierThresholdIsStrict(t *testing.T) {
	v := NewVerifier(tableEmbedder{}, 0.5)
	got := v.Compare([]float64{1, 0}, []float64{0.5, math.Sqrt(3) / 2})
	if math.Abs(got.Score-0.5) > 1e-12 {
		t.Fatalf("score = %v", got.Score)
	}
	if got.Score <= 0.5 && got.SameSpeaker {
		t.Fatal("score at threshold counted as same speaker")
	}
}

func TestVerifierMatrix(t *testing.T) {
	e := tableEmbedder{
		1: {1, 0},
		2: {0, 1},
		3: {1, 1},
	}
	m, err := NewVerifier(e, 0).Matrix(context.Background(), [][]float64{{1}, {2}, {3}})
	if err != nil {
		t.Fatalf("Matrix: %v", err)
	}
	if len(m) != 3 {
		t.Fatalf("rows = %d", len(m))
	}
	for i := range m {
		if m[i][i] != 1 {
			t.Errorf("m[%d][%d] = %v", i, i, m[i][i])
		}
		for j := range m {
			if m[i][j] != m[j][i] {
				t.Errorf("matrix not symmetric at %d,%d", i, j)
			}
		}
	}
	if m[0][1] != 0 || math.Abs(m[0][2]-1/math.Sqrt2) > 1e-12 {
		t.Fatalf("unexpected similarities: %v", m)
	}

	if _, err := NewVerifier(e, 0).Matrix(context.Background(), [][]float64{{1}, {7}}); err == nil {
		t.Fatal("expected error for unknown recording")
	}
}
