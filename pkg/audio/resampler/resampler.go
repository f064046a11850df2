package resampler

import (
	"errors"
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// ErrRate is returned for non-positive sample rates.
var ErrRate = errors.New("resampler: sample rate must be positive")

// OutputLen returns the number of samples n input samples map to.
func OutputLen(n, from, to int) int {
	return int(math.Round(float64(n) * float64(to) / float64(from)))
}

// Resample converts a mono waveform from one sample rate to another.
// The result always has OutputLen(len(samples), from, to) samples. When
// the rates match, a copy of the input is returned.
func Resample(samples []float64, from, to int) ([]float64, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrRate, from, to)
	}
	if from == to {
		return append([]float64(nil), samples...), nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resampler: create %d -> %d: %w", from, to, err)
	}

	// Trailing silence pushes the filter tail out of the resampler.
	tail := from / 10
	input := make([]float64, len(samples)+tail)
	copy(input, samples)

	out, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}

	want := OutputLen(len(samples), from, to)
	if len(out) >= want {
		return out[:want:want], nil
	}
	padded := make([]float64, want)
	copy(padded, out)
	return padded, nil
}
