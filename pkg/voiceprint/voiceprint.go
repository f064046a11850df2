// Package voiceprint compares speaker identities before and after
// protection.
//
// Two tools are provided:
//
//  1. [Verifier]: embeds two waveforms with the same oracle and reports
//     whether they belong to the same speaker (cosine similarity above a
//     threshold, 0.4 by default).
//  2. [Hasher]: projects an embedding into a short locality-sensitive hash
//     (e.g., "A3F8"). A protected recording whose hash differs from the
//     original's no longer falls in the same speaker bucket.
//
// # Multi-Level Precision
//
// Voice hashes support multi-level precision via prefix truncation,
// similar to geohash:
//
//	16 bit: A3F8  ← exact match
//	12 bit: A3F   ← fuzzy match
//	 8 bit: A3    ← group level
//	 4 bit: A     ← coarse partition
//
// Run records store the labels ("voice:A3F8") so protected runs can be
// audited without the oracle.
package voiceprint

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"strconv"
)

// Embedder computes speaker embeddings. Any perturb.Oracle satisfies it.
type Embedder interface {
	Embed(ctx context.Context, samples []float64) ([]float64, error)
}

// VoiceLabel returns a prefixed voice label string for a hash.
// Format: "voice:{hash}".
func VoiceLabel(hash string) string {
	return "voice:" + hash
}

// ErrHashLength is returned by HashDistance for hashes of different length.
var ErrHashLength = errors.New("voiceprint: hash lengths differ")

// HashDistance returns the number of differing bits between two hex
// hashes produced by the same Hasher.
func HashDistance(a, b string) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrHashLength, len(a), len(b))
	}
	d := 0
	for i := range len(a) {
		x, err := strconv.ParseUint(a[i:i+1], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("voiceprint: parse %q: %w", a, err)
		}
		y, err := strconv.ParseUint(b[i:i+1], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("voiceprint: parse %q: %w", b, err)
		}
		d += bits.OnesCount8(uint8(x ^ y))
	}
	return d, nil
}
