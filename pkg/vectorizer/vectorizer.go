// Package vectorizer turns weighted term bags into fixed-width dense
// vectors using feature hashing. The encoding is fully deterministic:
// the same term bag always produces the same bytes, so reindexing an
// unchanged business rewrites identical artifacts.
package vectorizer

import (
	"crypto/sha256"
	"math"
	"sort"

	"github.com/placegraph/backend/pkg/textnorm"
)

// Dim is the width of every encoded vector.
const Dim = 384

// EncodeWeightedTerms normalizes each term, hashes it into two-byte
// bucket/sign pairs of its SHA-256 digest, and accumulates the term
// weight into the selected buckets. Terms are folded in sorted order so
// float summation order never depends on map iteration. The result is
// unit-normalized, or all zero when the bag is empty.
func EncodeWeightedTerms(terms map[string]float64) []float32 {
	vec := make([]float64, Dim)

	keys := make([]string, 0, len(terms))
	for term := range terms {
		keys = append(keys, term)
	}
	sort.Strings(keys)

	for _, term := range keys {
		weight := terms[term]
		normalized := textnorm.Normalize(term)
		if weight == 0 || normalized == "" {
			continue
		}
		digest := sha256.Sum256([]byte(normalized))
		for i := 0; i+1 < len(digest); i += 2 {
			bucket := (int(digest[i])<<8 + int(digest[i+1])) % Dim
			sign := 1.0
			if digest[i]%2 != 0 {
				sign = -1.0
			}
			vec[bucket] += sign * weight
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, Dim)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// EncodeTerms encodes a plain term list with uniform weight 1.
func EncodeTerms(terms []string) []float32 {
	weighted := make(map[string]float64, len(terms))
	for _, term := range terms {
		if term == "" {
			continue
		}
		weighted[term] = 1.0
	}
	return EncodeWeightedTerms(weighted)
}

// Cosine returns the cosine similarity of two vectors, or 0 when either
// has zero norm or the widths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
