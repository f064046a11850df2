// Package ledger records protection runs. Each run is stored as one
// msgpack-encoded Record under the key "run:<id>".
//
// Run IDs are time-ordered (UUIDv7), so listing in key order lists runs
// oldest first. The package includes a BadgerDB-backed Store for
// production use and an in-memory Store for testing.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/voiceshield/pkg/perturb"
)

// ErrNotFound is returned when a run does not exist in the store.
var ErrNotFound = errors.New("ledger: not found")

// Status is the outcome of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record describes one protection run.
type Record struct {
	ID        string    `msgpack:"id" json:"id" yaml:"id"`
	CreatedAt time.Time `msgpack:"created_at" json:"created_at" yaml:"created_at"`
	Name      string    `msgpack:"name,omitempty" json:"name,omitempty" yaml:"name,omitempty"`

	// Input is the source the waveform was read from, if any.
	Input string `msgpack:"input,omitempty" json:"input,omitempty" yaml:"input,omitempty"`
	// InputFormat describes the file Input was decoded from.
	InputFormat string `msgpack:"input_format,omitempty" json:"input_format,omitempty" yaml:"input_format,omitempty"`
	// Artifact is the storage key of the protected WAV.
	Artifact string `msgpack:"artifact,omitempty" json:"artifact,omitempty" yaml:"artifact,omitempty"`

	SampleRate int            `msgpack:"sample_rate" json:"sample_rate" yaml:"sample_rate"`
	Samples    int            `msgpack:"samples" json:"samples" yaml:"samples"`
	Config     perturb.Config `msgpack:"config" json:"config" yaml:"config"`

	Status    Status `msgpack:"status" json:"status" yaml:"status"`
	ErrorKind string `msgpack:"error_kind,omitempty" json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error     string `msgpack:"error,omitempty" json:"error,omitempty" yaml:"error,omitempty"`

	FinalLoss         float64 `msgpack:"final_loss" json:"final_loss" yaml:"final_loss"`
	InitialSimilarity float64 `msgpack:"initial_similarity" json:"initial_similarity" yaml:"initial_similarity"`
	FinalSimilarity   float64 `msgpack:"final_similarity" json:"final_similarity" yaml:"final_similarity"`
	MaxDeviation      float64 `msgpack:"max_deviation" json:"max_deviation" yaml:"max_deviation"`

	// Voice labels of the original and protected recordings.
	VoiceBefore string `msgpack:"voice_before,omitempty" json:"voice_before,omitempty" yaml:"voice_before,omitempty"`
	VoiceAfter  string `msgpack:"voice_after,omitempty" json:"voice_after,omitempty" yaml:"voice_after,omitempty"`
	// VoiceDistance is the number of hash bits that differ between them.
	VoiceDistance int `msgpack:"voice_distance" json:"voice_distance" yaml:"voice_distance"`

	// VerifyScore is the similarity of the protected recording to the
	// original as seen by the verifier; SameSpeaker is its verdict.
	VerifyScore float64 `msgpack:"verify_score" json:"verify_score" yaml:"verify_score"`
	SameSpeaker bool    `msgpack:"same_speaker" json:"same_speaker" yaml:"same_speaker"`

	Duration time.Duration `msgpack:"duration" json:"duration" yaml:"duration"`
}

// Filter selects records in List. The zero Filter selects everything.
type Filter struct {
	Status Status
	Limit  int
}

func (f Filter) match(r *Record) bool {
	return f.Status == "" || r.Status == f.Status
}

// Store persists run records.
type Store interface {
	// Put stores a record, overwriting any record with the same ID.
	Put(ctx context.Context, r *Record) error

	// Get retrieves a record. Returns ErrNotFound if not present.
	Get(ctx context.Context, id string) (*Record, error)

	// Delete removes a record. Returns ErrNotFound if not present.
	Delete(ctx context.Context, id string) error

	// List iterates over matching records in ID order.
	List(ctx context.Context, f Filter) iter.Seq2[*Record, error]

	// Close releases any resources held by the store.
	Close() error
}

const keyPrefix = "run:"

func key(id string) []byte {
	return []byte(keyPrefix + id)
}

func encode(r *Record) ([]byte, error) {
	if r.ID == "" {
		return nil, errors.New("ledger: record has no id")
	}
	data, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode %s: %w", r.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*Record, error) {
	var r Record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("ledger: decode: %w", err)
	}
	return &r, nil
}

// Collect drains a List iterator into a slice.
func Collect(seq iter.Seq2[*Record, error]) ([]*Record, error) {
	var out []*Record
	for r, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}
