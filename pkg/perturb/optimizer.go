package perturb

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Result is the outcome of a successful run.
type Result struct {
	// Waveform is clamp(input + δ) with the input's length and sample rate.
	Waveform Waveform

	// FinalLoss is the loss of the last iteration, -cos at that step.
	FinalLoss float64

	// LossTrace holds one loss value per iteration.
	LossTrace []float64

	// InitialSimilarity and FinalSimilarity are the cosine similarities
	// between the reference and candidate embeddings at the first and
	// last iteration.
	InitialSimilarity float64
	FinalSimilarity   float64

	// MaxDeviation is max |output[i] - input[i]|, never above Epsilon.
	MaxDeviation float64

	Steps    int
	Duration time.Duration
}

// StepInfo describes one completed iteration.
type StepInfo struct {
	Step       int // 1-based
	Steps      int
	Loss       float64
	Similarity float64
}

// Optimizer runs perturbation searches against one oracle. It holds no
// per-run state and is safe for concurrent use if the oracle is.
type Optimizer struct {
	oracle Oracle
	logger *slog.Logger
	hook   func(StepInfo)
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger used for progress lines (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(o *Optimizer) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStepHook registers a callback invoked after every iteration.
func WithStepHook(fn func(StepInfo)) Option {
	return func(o *Optimizer) {
		o.hook = fn
	}
}

// NewOptimizer creates an Optimizer bound to oracle.
func NewOptimizer(oracle Oracle, opts ...Option) *Optimizer {
	o := &Optimizer{oracle: oracle, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize runs one search with default options.
func Optimize(ctx context.Context, oracle Oracle, w Waveform, cfg Config) (*Result, error) {
	return NewOptimizer(oracle).Optimize(ctx, w, cfg)
}

// Optimize searches for a perturbation of w that minimizes the cosine
// similarity between f(w) and f(clamp(w + δ)) subject to |δ[i]| ≤ Epsilon.
//
// The input waveform is never modified. On error the returned Result is
// nil: a diverged or aborted run has no trustworthy output.
func (o *Optimizer) Optimize(ctx context.Context, w Waveform, cfg Config) (res *Result, err error) {
	start := time.Now()
	ctx, span := startRunSpan(ctx, w, cfg)
	iterations := 0
	defer func() { finishRun(span, start, iterations, res, err) }()

	if o.oracle == nil {
		return nil, invalidf("oracle is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateWaveform(w, cfg.MinSample, cfg.MaxSample); err != nil {
		return nil, err
	}

	n := len(w.Samples)
	lo, hi := cfg.MinSample, cfg.MaxSample

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	delta := make([]float64, n)
	for i := range delta {
		delta[i] = rng.NormFloat64() * cfg.NoiseScale
	}
	delta = Project(delta, cfg.Epsilon)

	// The input is in range, so the reference needs no clamp.
	oracleCalls.WithLabelValues("embed").Inc()
	ref, err := o.oracle.Embed(ctx, w.Samples)
	if err != nil {
		return nil, fmt.Errorf("%w: reference: %w", ErrEmbeddingFailure, err)
	}
	if err := checkEmbedding(ref, len(ref), "reference"); err != nil {
		return nil, err
	}

	opt := newAdam(n, cfg)
	scratch := make([]float64, len(ref))
	grad := make([]float64, n)
	trace := make([]float64, 0, cfg.Steps)
	var firstSim, lastSim float64

	for step := 1; step <= cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("perturb: aborted before step %d: %w", step, err)
		}

		candidate := Combine(w.Samples, delta, lo, hi)

		oracleCalls.WithLabelValues("embed_grad").Inc()
		emb, backward, err := o.oracle.EmbedGrad(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %w", ErrEmbeddingFailure, step, err)
		}
		if err := checkEmbedding(emb, len(ref), fmt.Sprintf("step %d", step)); err != nil {
			return nil, err
		}

		sim, dSim, ok := cosineWithGrad(ref, emb, scratch)
		if !ok {
			return nil, fmt.Errorf("%w: step %d: zero-norm embedding", ErrEmbeddingFailure, step)
		}
		loss := -sim
		if !isFinite(loss) {
			return nil, fmt.Errorf("%w: step %d: loss is %v", ErrNumericDivergence, step, loss)
		}
		for i := range dSim {
			dSim[i] = -dSim[i]
		}

		oracleCalls.WithLabelValues("backward").Inc()
		dx, err := backward(dSim)
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: backward: %w", ErrEmbeddingFailure, step, err)
		}
		if len(dx) != n {
			return nil, fmt.Errorf("%w: step %d: gradient has %d components, want %d",
				ErrEmbeddingFailure, step, len(dx), n)
		}

		// ∂clamp/∂x is 1 inside the range (bounds included) and 0 outside.
		for i, g := range dx {
			if !isFinite(g) {
				return nil, fmt.Errorf("%w: step %d: gradient component %d is %v",
					ErrNumericDivergence, step, i, g)
			}
			if x := w.Samples[i] + delta[i]; x < lo || x > hi {
				g = 0
			}
			grad[i] = g
		}

		opt.step(delta, grad)
		// Project keeps NaN, so a diverged moment must be caught here.
		for i, d := range delta {
			if !isFinite(d) {
				return nil, fmt.Errorf("%w: step %d: perturbation component %d is %v",
					ErrNumericDivergence, step, i, d)
			}
		}
		delta = Project(delta, cfg.Epsilon)

		trace = append(trace, loss)
		iterations = step
		if step == 1 {
			firstSim = sim
		}
		lastSim = sim

		if cfg.LogEvery > 0 && (step-1)%cfg.LogEvery == 0 || step == cfg.Steps {
			o.logger.Debug("perturb: step",
				"step", step,
				"steps", cfg.Steps,
				"loss", loss,
				"similarity", sim,
			)
		}
		if o.hook != nil {
			o.hook(StepInfo{Step: step, Steps: cfg.Steps, Loss: loss, Similarity: sim})
		}
	}

	out := Combine(w.Samples, delta, lo, hi)
	res = &Result{
		Waveform:          Waveform{Samples: out, SampleRate: w.SampleRate},
		FinalLoss:         trace[len(trace)-1],
		LossTrace:         trace,
		InitialSimilarity: firstSim,
		FinalSimilarity:   lastSim,
		MaxDeviation:      maxDeviation(w.Samples, out),
		Steps:             cfg.Steps,
		Duration:          time.Since(start),
	}
	o.logger.Info("perturb: done",
		"steps", cfg.Steps,
		"final_loss", res.FinalLoss,
		"initial_similarity", firstSim,
		"final_similarity", lastSim,
		"max_deviation", res.MaxDeviation,
		"duration", res.Duration,
	)
	return res, nil
}

// checkEmbedding validates an oracle output against the expected dimension.
func checkEmbedding(emb []float64, dim int, what string) error {
	if len(emb) == 0 {
		return fmt.Errorf("%w: %s: empty embedding", ErrEmbeddingFailure, what)
	}
	if len(emb) != dim {
		return fmt.Errorf("%w: %s: embedding has %d components, want %d",
			ErrEmbeddingFailure, what, len(emb), dim)
	}
	zero := true
	for i, v := range emb {
		if !isFinite(v) {
			return fmt.Errorf("%w: %s: embedding component %d is %v",
				ErrNumericDivergence, what, i, v)
		}
		if v != 0 {
			zero = false
		}
	}
	if zero {
		return fmt.Errorf("%w: %s: zero-norm embedding", ErrEmbeddingFailure, what)
	}
	return nil
}

func maxDeviation(a, b []float64) float64 {
	var d float64
	for i := range a {
		d = math.Max(d, math.Abs(a[i]-b[i]))
	}
	return d
}
