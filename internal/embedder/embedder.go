// Package embedder defines the Embedder collaborator contract (C3):
// a DistilledConcept reduced to two fixed-dimension unit-norm vectors.
// Concrete implementations live in internal/gemini.
package embedder

import (
	"context"
	"math"

	"smartrouter/internal/core"
)

// Embedder produces title and context embeddings for a DistilledConcept.
//
// Contract (spec.md §4.3):
//   - titleVector is derived from Title alone; contextVector from
//     Title + "\n\n" + Summary.
//   - Both vectors are unit-norm and of fixed dimension D.
//   - Identical inputs served from cache are bitwise-identical; remote
//     providers may differ by < epsilon between calls.
//   - Cached by ContentHash.
type Embedder interface {
	Embed(ctx context.Context, concept *core.DistilledConcept) (*core.VectorEmbeddings, error)
}

// CosineSimilarity computes dot(a,b) for unit-norm vectors a and b. Panics
// if the vectors differ in length — callers must validate dimension first.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		panic("embedder: vectors differ in dimension")
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Normalize renormalizes v to unit length in place and returns it. A
// zero-magnitude vector is left unchanged (spec.md §4.5 numeric rules).
func Normalize(v []float64) []float64 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += x * x
	}
	if sumSquares == 0 {
		return v
	}
	mag := math.Sqrt(sumSquares)
	for i := range v {
		v[i] = v[i] / mag
	}
	return v
}
