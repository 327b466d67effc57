// Package mock provides the credential-free default embedding provider.
//
// Vectors are drawn by independent random sampling on every call, so two
// embeddings of the same text are unrelated. That makes the provider a
// stand-in only: it exercises the full storage path but carries no
// semantic meaning, and similarity rankings under it are arbitrary.
// Substring-matching backends remain usable because they never look at
// the vectors.
package mock

import (
	"context"
	"math"
	"math/rand"
	"sync"
)

// DefaultDimensions matches the original catalog entry for the default
// provider.
const DefaultDimensions = 1536

// Embedder generates random unit vectors of a fixed length.
type Embedder struct {
	dimensions int

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a mock embedder. A non-positive dimensions falls back to
// DefaultDimensions.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{
		dimensions: dimensions,
		rng:        rand.New(rand.NewSource(rand.Int63())),
	}
}

// NewSeeded creates a mock embedder with a fixed seed, for reproducible
// test runs.
func NewSeeded(dimensions int, seed int64) *Embedder {
	e := New(dimensions)
	e.rng = rand.New(rand.NewSource(seed))
	return e
}

// Embed returns one freshly sampled unit vector per input text.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, e.dimensions)
		for j := range vec {
			vec[j] = float32(e.rng.Float64()*2 - 1)
		}
		out[i] = normalize(vec)
	}
	return out, nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// normalize scales a vector to unit length.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
