package protect

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/haivivi/voiceshield/pkg/ledger"
	"github.com/haivivi/voiceshield/pkg/perturb"
)

// Batch runs independent jobs with at most concurrency in flight
// (concurrency <= 0 means one). The first failure cancels the jobs that
// have not finished; their records carry the cancellation.
//
// records[i] belongs to jobs[i] and is nil for jobs that never started.
func (s *Service) Batch(ctx context.Context, jobs []Job, concurrency int) ([]*ledger.Record, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	records := make([]*ledger.Record, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			name := job.Name
			if name == "" {
				name = job.Input
			}
			o, release, err := s.jobOracle(gctx)
			if err != nil {
				return fmt.Errorf("protect: job %d (%s): %w", i, name, err)
			}
			defer release()

			rec, err := s.protect(gctx, o, job)
			records[i] = rec
			if err != nil {
				return fmt.Errorf("protect: job %d (%s): %w", i, name, err)
			}
			return nil
		})
	}
	err := g.Wait()
	s.logger.Info("protect: batch finished", "jobs", len(jobs), "concurrency", concurrency, "error", err)
	return records, err
}

// jobOracle returns the oracle for one batch job: a fork when the oracle
// is a [Forker], the shared oracle otherwise.
func (s *Service) jobOracle(ctx context.Context) (perturb.Oracle, func(), error) {
	f, ok := s.oracle.(Forker)
	if !ok {
		return s.oracle, func() {}, nil
	}
	o, err := f.Fork(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fork oracle: %w", err)
	}
	release := func() {
		if c, ok := o.(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.logger.Warn("protect: close forked oracle", "error", err)
			}
		}
	}
	return o, release, nil
}
