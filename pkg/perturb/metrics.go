package perturb

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// runsTotal counts finished runs by Kind label.
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voiceshield_perturb_runs_total",
		Help: "Perturbation runs by result",
	}, []string{"result"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voiceshield_perturb_run_duration_seconds",
		Help:    "Wall time of a perturbation run",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	runIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voiceshield_perturb_iterations",
		Help:    "Iterations completed per run",
		Buckets: []float64{1, 10, 50, 100, 300, 1000},
	})

	finalSimilarity = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voiceshield_perturb_final_similarity",
		Help:    "Cosine similarity to the reference embedding at the last step",
		Buckets: prometheus.LinearBuckets(-1, 0.25, 9),
	})

	// oracleCalls counts oracle invocations by operation: embed, embed_grad, backward.
	oracleCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voiceshield_perturb_oracle_calls_total",
		Help: "Embedding oracle invocations by operation",
	}, []string{"op"})
)

var (
	tracerOnce    sync.Once
	perturbTracer trace.Tracer
)

// getTracer returns the package tracer, resolved lazily so that a
// provider installed after init is picked up.
func getTracer() trace.Tracer {
	tracerOnce.Do(func() {
		perturbTracer = otel.Tracer("voiceshield/perturb")
	})
	return perturbTracer
}

func startRunSpan(ctx context.Context, w Waveform, cfg Config) (context.Context, trace.Span) {
	return getTracer().Start(ctx, "perturb.Optimize", trace.WithAttributes(
		attribute.Int("perturb.samples", len(w.Samples)),
		attribute.Int("perturb.sample_rate", w.SampleRate),
		attribute.Int("perturb.steps", cfg.Steps),
		attribute.Float64("perturb.epsilon", cfg.Epsilon),
		attribute.Float64("perturb.lr", cfg.LR),
		attribute.Int64("perturb.seed", int64(cfg.Seed)),
	))
}

// finishRun records metrics and closes the span for a run.
func finishRun(span trace.Span, start time.Time, iterations int, res *Result, err error) {
	kind := Kind(err)
	runsTotal.WithLabelValues(kind).Inc()
	runDuration.Observe(time.Since(start).Seconds())
	runIterations.Observe(float64(iterations))

	span.SetAttributes(attribute.Int("perturb.iterations", iterations))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
	} else if res != nil {
		finalSimilarity.Observe(res.FinalSimilarity)
		span.SetAttributes(
			attribute.Float64("perturb.final_loss", res.FinalLoss),
			attribute.Float64("perturb.max_deviation", res.MaxDeviation),
		)
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
