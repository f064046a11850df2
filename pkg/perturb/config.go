package perturb

import (
	"fmt"
	"math"
)

// Waveform is a mono recording with samples nominally in [-1, 1].
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Len returns the number of samples.
func (w Waveform) Len() int { return len(w.Samples) }

// Config holds the parameters of one optimization run. It is treated as
// immutable once a run starts.
type Config struct {
	// Steps is the number of optimization iterations (>= 1).
	Steps int `yaml:"steps" json:"steps" msgpack:"steps"`

	// Epsilon is the L∞ perturbation budget as a fraction of full scale,
	// in [0, 1]. Zero forces the output to equal the input.
	Epsilon float64 `yaml:"epsilon" json:"epsilon" msgpack:"epsilon"`

	// LR is the Adam learning rate (> 0).
	LR float64 `yaml:"lr" json:"lr" msgpack:"lr"`

	// NoiseScale is the standard deviation of the initial Gaussian
	// perturbation. It keeps the first step off the zero-gradient point
	// where the candidate embedding equals the reference.
	NoiseScale float64 `yaml:"noise_scale" json:"noise_scale" msgpack:"noise_scale"`

	// Seed drives the initial noise. Equal seeds give equal runs.
	Seed uint64 `yaml:"seed" json:"seed" msgpack:"seed"`

	// Adam constants. The update rule is pinned to the bias-corrected
	// PyTorch formulation; changing these breaks reproducibility with
	// runs recorded under other values.
	Beta1   float64 `yaml:"beta1" json:"beta1" msgpack:"beta1"`
	Beta2   float64 `yaml:"beta2" json:"beta2" msgpack:"beta2"`
	AdamEps float64 `yaml:"adam_eps" json:"adam_eps" msgpack:"adam_eps"`

	// MinSample and MaxSample bound the legal sample range.
	MinSample float64 `yaml:"min_sample" json:"min_sample" msgpack:"min_sample"`
	MaxSample float64 `yaml:"max_sample" json:"max_sample" msgpack:"max_sample"`

	// LogEvery controls progress logging; the final step is always logged.
	// Zero disables periodic progress lines.
	LogEvery int `yaml:"log_every" json:"log_every" msgpack:"log_every"`
}

// DefaultConfig returns the parameters used by the original protection
// tool: 300 steps, ε = 0.01, lr = 1e-3, initial noise 1e-3.
func DefaultConfig() Config {
	return Config{
		Steps:      300,
		Epsilon:    0.01,
		LR:         1e-3,
		NoiseScale: 1e-3,
		Beta1:      0.9,
		Beta2:      0.999,
		AdamEps:    1e-8,
		MinSample:  -1,
		MaxSample:  1,
		LogEvery:   50,
	}
}

// Validate checks the configuration on its own. Optimize additionally
// validates the waveform.
func (c Config) Validate() error {
	switch {
	case c.Steps < 1:
		return invalidf("steps must be >= 1, got %d", c.Steps)
	case !isFinite(c.Epsilon) || c.Epsilon < 0 || c.Epsilon > 1:
		return invalidf("epsilon must be in [0, 1], got %v", c.Epsilon)
	case !isFinite(c.LR) || c.LR <= 0:
		return invalidf("lr must be > 0, got %v", c.LR)
	case !isFinite(c.NoiseScale) || c.NoiseScale < 0:
		return invalidf("noise scale must be >= 0, got %v", c.NoiseScale)
	case !(c.Beta1 >= 0 && c.Beta1 < 1):
		return invalidf("beta1 must be in [0, 1), got %v", c.Beta1)
	case !(c.Beta2 >= 0 && c.Beta2 < 1):
		return invalidf("beta2 must be in [0, 1), got %v", c.Beta2)
	case !isFinite(c.AdamEps) || c.AdamEps <= 0:
		return invalidf("adam eps must be > 0, got %v", c.AdamEps)
	case !isFinite(c.MinSample) || !isFinite(c.MaxSample) || c.MinSample >= c.MaxSample:
		return invalidf("sample range [%v, %v] is empty", c.MinSample, c.MaxSample)
	case c.LogEvery < 0:
		return invalidf("log every must be >= 0, got %d", c.LogEvery)
	}
	return nil
}

// validateWaveform requires every sample to be finite and inside
// [lo, hi]; the final clamp would otherwise move it by more than the
// budget.
func validateWaveform(w Waveform, lo, hi float64) error {
	if len(w.Samples) == 0 {
		return invalidf("waveform is empty")
	}
	if w.SampleRate <= 0 {
		return invalidf("sample rate must be > 0, got %d", w.SampleRate)
	}
	for i, s := range w.Samples {
		if !isFinite(s) {
			return invalidf("sample %d is not finite", i)
		}
		if s < lo || s > hi {
			return invalidf("sample %d is %v, outside [%v, %v]", i, s, lo, hi)
		}
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfiguration}, args...)...)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
