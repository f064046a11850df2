package resampler

import (
	"errors"
	"math"
	"testing"
)

func sine(n, rate int, freq, amp float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return s
}

func TestOutputLen(t *testing.T) {
	tests := []struct {
		n, from, to, want int
	}{
		{48000, 48000, 16000, 16000},
		{44100, 44100, 16000, 16000},
		{1000, 8000, 16000, 2000},
		{3, 48000, 16000, 1},
	}
	for _, tt := range tests {
		if got := OutputLen(tt.n, tt.from, tt.to); got != tt.want {
			t.Errorf("OutputLen(%d, %d, %d) = %d, want %d", tt.n, tt.from, tt.to, got, tt.want)
		}
	}
}

func TestResampleSameRateCopies(t *testing.T) {
	in := []float64{0.1, -0.2, 0.3}
	out, err := Resample(in, 16000, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	out[0] = 9
	if in[0] != 0.1 {
		t.Fatal("Resample aliases its input")
	}
}

func TestResampleInvalidRate(t *testing.T) {
	if _, err := Resample([]float64{1}, 0, 16000); !errors.Is(err, ErrRate) {
		t.Fatalf("err = %v, want ErrRate", err)
	}
	if _, err := Resample([]float64{1}, 16000, -1); !errors.Is(err, ErrRate) {
		t.Fatalf("err = %v, want ErrRate", err)
	}
}

func TestResampleDown(t *testing.T) {
	const from, to = 48000, 16000
	in := sine(from, from, 440, 0.5)
	out, err := Resample(in, from, to)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out) != to {
		t.Fatalf("len = %d, want %d", len(out), to)
	}

	// A 440 Hz tone survives the conversion with its energy intact.
	mid := out[len(out)/4 : 3*len(out)/4]
	var sum float64
	for _, v := range mid {
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(mid)))
	if math.Abs(rms-0.5/math.Sqrt2) > 0.05 {
		t.Fatalf("rms = %v, want about %v", rms, 0.5/math.Sqrt2)
	}
}
