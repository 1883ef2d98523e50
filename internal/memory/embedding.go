// Package memory stores and retrieves long-lived participant memories.
package memory

import (
	"context"
	"math"
	"unicode/utf16"
)

// HashDimensions is the length of vectors produced by HashEmbedder.
const HashDimensions = 384

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Name() string
}

// HashEmbedder derives a deterministic pseudo-embedding from a rolling hash.
// It needs no network access and yields identical vectors for identical text.
type HashEmbedder struct{}

// Embed returns a HashDimensions-long vector for text.
func (HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	return HashEmbedding(text), nil
}

// Name returns the embedder name.
func (HashEmbedder) Name() string { return "hash" }

// HashEmbedding computes sin(h+i)*cos(h*i) for i in [0, HashDimensions).
func HashEmbedding(text string) []float64 {
	h := float64(SimpleHash(text))
	out := make([]float64, HashDimensions)
	for i := range out {
		fi := float64(i)
		out[i] = math.Sin(h+fi) * math.Cos(h*fi)
	}
	return out
}

// SimpleHash is the 32-bit rolling hash h = h*31 + c over UTF-16 code units.
func SimpleHash(text string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(text)) {
		h = (h << 5) - h + int32(c)
	}
	return h
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is empty, their lengths differ, or either has zero magnitude.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
