package voiceprint

import (
	"encoding/hex"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/cwbudde/algo-vecmath"
)

// Hasher projects embedding vectors into compact locality-sensitive
// hashes using random hyperplane LSH.
//
// Each hash is an uppercase hex string of bits/4 characters. For each of
// the `bits` random unit hyperplanes, the sign of its dot product with the
// embedding determines one bit: positive → 1, non-positive → 0. Similar
// embeddings fall on the same side of most hyperplanes, so nearby
// speakers share a hash with high probability.
//
// A Hasher is immutable and safe for concurrent use.
type Hasher struct {
	dim    int
	bits   int
	planes [][]float64 // bits × dim, each row is a unit hyperplane
}

// NewHasher creates a Hasher with the given embedding dimension and
// output bit count. The bits parameter must be a positive multiple of 4
// (for clean hex encoding). The seed controls the random hyperplanes;
// use a fixed seed for reproducible hashes across restarts.
func NewHasher(dim, bits int, seed uint64) *Hasher {
	if bits <= 0 || bits%4 != 0 {
		panic("voiceprint: bits must be a positive multiple of 4")
	}
	if dim <= 0 {
		panic("voiceprint: dim must be positive")
	}

	rng := rand.New(rand.NewPCG(seed, seed^0xdeadbeef))
	planes := make([][]float64, bits)
	for i := range planes {
		plane := make([]float64, dim)
		var norm float64
		for j := range plane {
			v := rng.NormFloat64()
			plane[j] = v
			norm += v * v
		}
		if norm = math.Sqrt(norm); norm > 0 {
			for j := range plane {
				plane[j] /= norm
			}
		}
		planes[i] = plane
	}
	return &Hasher{dim: dim, bits: bits, planes: planes}
}

// Hash projects an embedding vector into a hex hash string.
// The input must have length equal to the hasher's dimension.
func (h *Hasher) Hash(embedding []float64) string {
	if len(embedding) != h.dim {
		panic("voiceprint: embedding dimension mismatch")
	}

	hashBytes := make([]byte, (h.bits+7)/8)
	prod := make([]float64, h.dim)
	for i, plane := range h.planes {
		vecmath.MulBlock(prod, plane, embedding)
		var dot float64
		for _, v := range prod {
			dot += v
		}
		if dot > 0 {
			hashBytes[i/8] |= 1 << (7 - uint(i%8))
		}
	}

	// 12-bit hashes encode to 4 nibbles; keep only bits/4.
	return strings.ToUpper(hex.EncodeToString(hashBytes))[:h.bits/4]
}

// Bits returns the number of hash bits.
func (h *Hasher) Bits() int { return h.bits }

// Dim returns the expected embedding dimension.
func (h *Hasher) Dim() int { return h.dim }
