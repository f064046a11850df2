package protect

import (
	"context"
	"errors"
	"fmt"

	"github.com/haivivi/voiceshield/pkg/ledger"
	"github.com/haivivi/voiceshield/pkg/storage"
)

// ErrNoLedger is returned by run queries on a Service without a ledger.
var ErrNoLedger = errors.New("protect: no ledger configured")

// Runs lists recorded runs.
func (s *Service) Runs(ctx context.Context, f ledger.Filter) ([]*ledger.Record, error) {
	if s.ledger == nil {
		return nil, ErrNoLedger
	}
	return ledger.Collect(s.ledger.List(ctx, f))
}

// Run returns one recorded run.
func (s *Service) Run(ctx context.Context, id string) (*ledger.Record, error) {
	if s.ledger == nil {
		return nil, ErrNoLedger
	}
	return s.ledger.Get(ctx, id)
}

// Artifact returns the protected WAV of a run.
func (s *Service) Artifact(ctx context.Context, id string) ([]byte, error) {
	rec, err := s.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Artifact == "" || s.store == nil {
		return nil, fmt.Errorf("protect: run %s has no stored artifact", id)
	}
	return s.store.Get(ctx, rec.Artifact)
}

// ArtifactURI returns where the artifact of rec is stored, or "".
func (s *Service) ArtifactURI(rec *ledger.Record) string {
	if rec.Artifact == "" || s.store == nil {
		return ""
	}
	return s.store.URI(rec.Artifact)
}

// DeleteRun removes a run record and its artifact.
func (s *Service) DeleteRun(ctx context.Context, id string) error {
	rec, err := s.Run(ctx, id)
	if err != nil {
		return err
	}
	if s.store != nil {
		key := rec.Artifact
		if key == "" {
			key = storage.ArtifactKey(id)
		}
		if err := s.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("protect: delete artifact of %s: %w", id, err)
		}
	}
	return s.ledger.Delete(ctx, id)
}
