// Package oracle provides embedding oracles for the perturbation engine.
//
// [Projector] is a self-contained differentiable speaker embedder: it
// frames the waveform, maps each frame through a fixed random projection
// followed by tanh, and mean-pools the frame activations into one
// embedding vector. Its weights are derived from a seed, so two projectors
// built with the same options are identical. It serves as the reference
// oracle for tests and offline runs; production models are reached through
// the remote subpackage.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cwbudde/algo-vecmath"

	"github.com/haivivi/voiceshield/pkg/perturb"
)

// Common errors.
var (
	// ErrSilent is returned for input whose energy is below the silence
	// threshold. Silent recordings carry no speaker information.
	ErrSilent = errors.New("oracle: input is silent")

	// ErrTooShort is returned when the input is shorter than one frame.
	ErrTooShort = errors.New("oracle: input shorter than one frame")
)

// Projector implements [perturb.Oracle]. It is immutable after
// construction and safe for concurrent use.
type Projector struct {
	frame      int
	hop        int
	dim        int
	sampleRate int
	seed       uint64
	silence    float64

	weights [][]float64 // dim × frame
	bias    []float64
}

// ProjectorOption configures a Projector.
type ProjectorOption func(*Projector)

// WithFrame sets the frame length and hop in samples
// (default 400 and 160: 25ms frames every 10ms at 16kHz).
func WithFrame(frame, hop int) ProjectorOption {
	return func(p *Projector) {
		if frame > 0 && hop > 0 {
			p.frame = frame
			p.hop = hop
		}
	}
}

// WithDimension sets the embedding dimension (default 192).
func WithDimension(dim int) ProjectorOption {
	return func(p *Projector) {
		if dim > 0 {
			p.dim = dim
		}
	}
}

// WithSeed sets the seed the weights are drawn from (default 1).
func WithSeed(seed uint64) ProjectorOption {
	return func(p *Projector) {
		p.seed = seed
	}
}

// WithSampleRate records the sample rate the projector expects
// (default 16000). Callers resample input to this rate.
func WithSampleRate(rate int) ProjectorOption {
	return func(p *Projector) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// WithSilenceThreshold sets the mean-square energy below which input is
// rejected with ErrSilent (default 1e-8, about -80 dBFS).
func WithSilenceThreshold(ms float64) ProjectorOption {
	return func(p *Projector) {
		if ms >= 0 {
			p.silence = ms
		}
	}
}

// NewProjector creates a Projector with the given options.
func NewProjector(opts ...ProjectorOption) *Projector {
	p := &Projector{
		frame:      400,
		hop:        160,
		dim:        192,
		sampleRate: 16000,
		seed:       1,
		silence:    1e-8,
	}
	for _, opt := range opts {
		opt(p)
	}

	rng := rand.New(rand.NewPCG(p.seed, p.seed^0xdeadbeef))
	scale := 1 / math.Sqrt(float64(p.frame))
	p.weights = make([][]float64, p.dim)
	p.bias = make([]float64, p.dim)
	for k := range p.weights {
		row := make([]float64, p.frame)
		for j := range row {
			row[j] = rng.NormFloat64() * scale
		}
		p.weights[k] = row
		p.bias[k] = rng.NormFloat64() * 0.1
	}
	return p
}

// Dimension returns the embedding dimension.
func (p *Projector) Dimension() int { return p.dim }

// SampleRate returns the expected input sample rate.
func (p *Projector) SampleRate() int { return p.sampleRate }

// Embed implements [perturb.Oracle].
func (p *Projector) Embed(ctx context.Context, samples []float64) ([]float64, error) {
	emb, _, err := p.forward(ctx, samples)
	return emb, err
}

// EmbedGrad implements [perturb.Oracle].
func (p *Projector) EmbedGrad(ctx context.Context, samples []float64) ([]float64, perturb.Backward, error) {
	emb, acts, err := p.forward(ctx, samples)
	if err != nil {
		return nil, nil, err
	}
	n := len(samples)
	backward := func(upstream []float64) ([]float64, error) {
		if len(upstream) != p.dim {
			return nil, fmt.Errorf("oracle: upstream has %d components, want %d", len(upstream), p.dim)
		}
		frames := len(acts)
		inv := 1 / float64(frames)
		dx := make([]float64, n)
		coef := make([]float64, p.dim)
		for f, h := range acts {
			// ∂e_k/∂z_k for this frame: (1 - tanh²) / F.
			for k := range coef {
				coef[k] = upstream[k] * (1 - h[k]*h[k]) * inv
			}
			seg := dx[f*p.hop : f*p.hop+p.frame]
			for k, c := range coef {
				if c == 0 {
					continue
				}
				row := p.weights[k]
				for j := range seg {
					seg[j] += c * row[j]
				}
			}
		}
		return dx, nil
	}
	return emb, backward, nil
}

// forward returns the pooled embedding and the per-frame activations.
func (p *Projector) forward(ctx context.Context, samples []float64) ([]float64, [][]float64, error) {
	if len(samples) < p.frame {
		return nil, nil, fmt.Errorf("%w: %d samples, frame is %d", ErrTooShort, len(samples), p.frame)
	}
	if meanSquare(samples) < p.silence {
		return nil, nil, ErrSilent
	}

	frames := (len(samples)-p.frame)/p.hop + 1
	emb := make([]float64, p.dim)
	acts := make([][]float64, frames)
	prod := make([]float64, p.frame)
	for f := range frames {
		if f%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		seg := samples[f*p.hop : f*p.hop+p.frame]
		h := make([]float64, p.dim)
		for k, row := range p.weights {
			vecmath.MulBlock(prod, row, seg)
			z := p.bias[k]
			for _, v := range prod {
				z += v
			}
			h[k] = math.Tanh(z)
			emb[k] += h[k]
		}
		acts[f] = h
	}
	inv := 1 / float64(frames)
	for k := range emb {
		emb[k] *= inv
	}
	return emb, acts, nil
}

func meanSquare(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum / float64(len(x))
}
