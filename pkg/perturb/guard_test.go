package perturb

import (
	"math"
	"testing"
)

func TestProject(t *testing.T) {
	in := []float64{-0.5, -0.01, 0, 0.005, 0.02, 3}
	got := Project(in, 0.01)
	want := []float64{-0.01, -0.01, 0, 0.005, 0.01, 0.01}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Project[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	// Input untouched.
	if in[0] != -0.5 || in[5] != 3 {
		t.Fatalf("Project mutated its input: %v", in)
	}
}

func TestProjectZeroBudget(t *testing.T) {
	got := Project([]float64{0.3, -0.2, 1e-9}, 0)
	for i, v := range got {
		if v != 0 {
			t.Errorf("Project[%d] = %v, want 0", i, v)
		}
	}
}

func TestClampRange(t *testing.T) {
	got := ClampRange([]float64{-1.5, -1, 0.25, 1, 2}, -1, 1)
	want := []float64{-1, -1, 0.25, 1, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ClampRange[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCombineClampsPeakSamples(t *testing.T) {
	x := []float64{0.995, -0.999, 0.5}
	p := []float64{0.01, -0.01, 0.01}
	got := Combine(x, p, -1, 1)

	if got[0] != 1 || got[1] != -1 {
		t.Fatalf("peaks not clamped: %v", got)
	}
	if math.Abs(got[2]-0.51) > 1e-15 {
		t.Fatalf("got[2] = %v, want 0.51", got[2])
	}
	// Effective perturbation shrinks below budget on the clamped samples.
	if d := got[0] - x[0]; d >= p[0] {
		t.Fatalf("effective perturbation %v not reduced by clamp", d)
	}
}

func TestCombineLengthMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on length mismatch")
		}
	}()
	Combine([]float64{1, 2}, []float64{1}, -1, 1)
}
