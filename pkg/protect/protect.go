// Package protect runs perturbation jobs end to end: it loads recordings,
// optimizes them against an oracle, fingerprints the speaker before and
// after, stores the protected WAV and records every run in a ledger.
package protect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/voiceshield/pkg/audio/pcm"
	"github.com/haivivi/voiceshield/pkg/audio/resampler"
	"github.com/haivivi/voiceshield/pkg/audio/wav"
	"github.com/haivivi/voiceshield/pkg/ledger"
	"github.com/haivivi/voiceshield/pkg/perturb"
	"github.com/haivivi/voiceshield/pkg/storage"
	"github.com/haivivi/voiceshield/pkg/voiceprint"
)

// SampleRater is implemented by oracles that require a fixed input rate.
type SampleRater interface {
	SampleRate() int
}

// Forker is implemented by oracles that must not interleave runs, such as
// a remote client whose server keeps a bounded number of pending
// gradients per connection. [Service.Batch] forks one oracle per job and
// closes it afterwards when it implements io.Closer.
type Forker interface {
	Fork(ctx context.Context) (perturb.Oracle, error)
}

// Job describes one protection run. Either Waveform or Input must be set;
// Input is a WAV path loaded with [Service.Load] when Waveform is empty.
type Job struct {
	Name     string           `yaml:"name" json:"name"`
	Input    string           `yaml:"input" json:"input"`
	Output   string           `yaml:"output" json:"output"`
	Config   perturb.Config   `yaml:"config" json:"config"`
	Waveform perturb.Waveform `yaml:"-" json:"-"`
}

// Service wires an oracle to artifact storage and the run ledger.
// It is safe for concurrent use if the oracle is.
type Service struct {
	oracle   perturb.Oracle
	store    storage.Store
	ledger   ledger.Store
	logger   *slog.Logger
	verifier *voiceprint.Verifier
	hashBits int
	hashSeed uint64
	depth    int
	hook     func(id string, s perturb.StepInfo)
}

// Option configures a Service.
type Option func(*Service)

// WithStore stores protected recordings in st. Without a store only
// Job.Output receives the result.
func WithStore(st storage.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithLedger records runs in l.
func WithLedger(l ledger.Store) Option {
	return func(s *Service) { s.ledger = l }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithThreshold sets the same-speaker threshold (default 0.4).
func WithThreshold(th float64) Option {
	return func(s *Service) { s.verifier = voiceprint.NewVerifier(s.oracle, th) }
}

// WithHash sets the voice hash width and hyperplane seed
// (default 16 bits, seed 42).
func WithHash(bits int, seed uint64) Option {
	return func(s *Service) {
		if bits > 0 && bits%4 == 0 {
			s.hashBits = bits
		}
		s.hashSeed = seed
	}
}

// WithOutputDepth sets the bit depth of stored WAV files (default 16).
func WithOutputDepth(depth int) Option {
	return func(s *Service) { s.depth = depth }
}

// WithProgress registers a callback invoked after every optimizer step.
func WithProgress(fn func(id string, s perturb.StepInfo)) Option {
	return func(s *Service) { s.hook = fn }
}

// New creates a Service bound to oracle.
func New(oracle perturb.Oracle, opts ...Option) *Service {
	s := &Service{
		oracle:   oracle,
		logger:   slog.Default(),
		verifier: voiceprint.NewVerifier(oracle, voiceprint.DefaultThreshold),
		hashBits: 16,
		hashSeed: 42,
		depth:    wav.DefaultDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load decodes a WAV file into a mono waveform at the oracle's sample
// rate, when the oracle declares one. Samples are within [-1, 1].
func (s *Service) Load(path string) (perturb.Waveform, pcm.Format, error) {
	w, f, err := wav.ReadFile(path)
	if err != nil {
		return w, f, err
	}
	s.logger.Debug("protect: loaded input", "path", path, "format", f.String(), "duration", f.Duration(w.Len()))
	sr, ok := s.oracle.(SampleRater)
	if !ok || sr.SampleRate() == w.SampleRate {
		return w, f, nil
	}
	out, err := resampler.Resample(w.Samples, w.SampleRate, sr.SampleRate())
	if err != nil {
		return w, f, fmt.Errorf("protect: %s: %w", path, err)
	}
	s.logger.Debug("protect: resampled input", "path", path, "from", w.SampleRate, "to", sr.SampleRate())
	// The filter can ring past full scale on near-clipping input.
	out = perturb.ClampRange(out, -1, 1)
	return perturb.Waveform{Samples: out, SampleRate: sr.SampleRate()}, f, nil
}

// Protect runs one job. The returned record is never nil once a run ID
// has been assigned: failed runs are recorded with status "failed" and
// the error is returned alongside the record.
func (s *Service) Protect(ctx context.Context, job Job) (*ledger.Record, error) {
	return s.protect(ctx, s.oracle, job)
}

func (s *Service) protect(ctx context.Context, o perturb.Oracle, job Job) (*ledger.Record, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("protect: run id: %w", err)
	}
	rec := &ledger.Record{
		ID:        id.String(),
		CreatedAt: time.Now().UTC(),
		Name:      job.Name,
		Input:     job.Input,
		Config:    job.Config,
	}
	logger := s.logger.With("run_id", rec.ID)
	start := time.Now()

	err = s.run(ctx, o, job, rec, logger)
	rec.Duration = time.Since(start)
	if err != nil {
		rec.Status = ledger.StatusFailed
		rec.ErrorKind = perturb.Kind(err)
		rec.Error = err.Error()
		logger.Warn("protect: run failed", "kind", rec.ErrorKind, "error", err)
	} else {
		rec.Status = ledger.StatusSucceeded
	}

	if s.ledger != nil {
		// A canceled run is still recorded.
		if perr := s.ledger.Put(context.WithoutCancel(ctx), rec); perr != nil {
			return rec, errors.Join(err, fmt.Errorf("protect: record run %s: %w", rec.ID, perr))
		}
	}
	return rec, err
}

func (s *Service) run(ctx context.Context, o perturb.Oracle, job Job, rec *ledger.Record, logger *slog.Logger) error {
	w := job.Waveform
	if w.Len() == 0 && job.Input != "" {
		var err error
		var f pcm.Format
		if w, f, err = s.Load(job.Input); err != nil {
			return err
		}
		rec.InputFormat = f.String()
	}
	rec.SampleRate = w.SampleRate
	rec.Samples = w.Len()

	opts := []perturb.Option{perturb.WithLogger(logger)}
	if s.hook != nil {
		opts = append(opts, perturb.WithStepHook(func(st perturb.StepInfo) { s.hook(rec.ID, st) }))
	}
	res, err := perturb.NewOptimizer(o, opts...).Optimize(ctx, w, job.Config)
	if err != nil {
		return err
	}
	rec.FinalLoss = res.FinalLoss
	rec.InitialSimilarity = res.InitialSimilarity
	rec.FinalSimilarity = res.FinalSimilarity
	rec.MaxDeviation = res.MaxDeviation

	s.fingerprint(ctx, o, w, res.Waveform, rec, logger)

	data, err := wav.Encode(res.Waveform, s.depth)
	if err != nil {
		return fmt.Errorf("protect: encode output: %w", err)
	}
	if s.store != nil {
		key := storage.ArtifactKey(rec.ID)
		if err := s.store.Put(ctx, key, data, storage.ContentTypeWAV); err != nil {
			return fmt.Errorf("protect: store artifact: %w", err)
		}
		rec.Artifact = key
	}
	if job.Output != "" {
		if err := wav.WriteFile(job.Output, res.Waveform, s.depth); err != nil {
			return fmt.Errorf("protect: write output: %w", err)
		}
	}

	logger.Info("protect: run succeeded",
		"name", rec.Name,
		"initial_similarity", rec.InitialSimilarity,
		"final_similarity", rec.FinalSimilarity,
		"same_speaker", rec.SameSpeaker,
		"voice_before", rec.VoiceBefore,
		"voice_after", rec.VoiceAfter,
		"voice_distance", rec.VoiceDistance,
	)
	return nil
}

// fingerprint fills the voice labels and verifier verdict. Failures here
// do not fail the run; the protected output is already valid.
func (s *Service) fingerprint(ctx context.Context, o perturb.Oracle, before, after perturb.Waveform, rec *ledger.Record, logger *slog.Logger) {
	eb, err := o.Embed(ctx, before.Samples)
	if err != nil {
		logger.Warn("protect: embed original", "error", err)
		return
	}
	ea, err := o.Embed(ctx, after.Samples)
	if err != nil {
		logger.Warn("protect: embed protected", "error", err)
		return
	}
	if len(eb) == 0 || len(eb) != len(ea) {
		logger.Warn("protect: embedding dimensions differ", "original", len(eb), "protected", len(ea))
		return
	}
	h := voiceprint.NewHasher(len(eb), s.hashBits, s.hashSeed)
	hb, ha := h.Hash(eb), h.Hash(ea)
	rec.VoiceBefore = voiceprint.VoiceLabel(hb)
	rec.VoiceAfter = voiceprint.VoiceLabel(ha)
	if d, err := voiceprint.HashDistance(hb, ha); err == nil {
		rec.VoiceDistance = d
	}

	v := s.verifier.Compare(eb, ea)
	rec.VerifyScore = v.Score
	rec.SameSpeaker = v.SameSpeaker
}
