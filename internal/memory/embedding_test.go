package memory

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleHashMatchesRollingHash(t *testing.T) {
	assert.Equal(t, int32(0), SimpleHash(""))
	assert.Equal(t, int32(97), SimpleHash("a"))
	assert.Equal(t, int32(97*31+98), SimpleHash("ab"))
	// wraps like a 32-bit integer
	assert.Equal(t, int32(-1260104088), SimpleHash("the quick brown fox jumps"))
}

func TestHashEmbeddingIsDeterministic(t *testing.T) {
	a, err := HashEmbedder{}.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	b := HashEmbedding("hello world")

	require.Len(t, a, HashDimensions)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-9)
	assert.NotEqual(t, a, HashEmbedding("hello world!"))

	h := float64(SimpleHash("hello world"))
	assert.InDelta(t, math.Sin(h+3)*math.Cos(h*3), a[3], 1e-12)
}

func TestCosineSimilarityEdgeCases(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 2}, []float64{1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-12)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-12)
}
