package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "scaled", a: []float32{1, 2, 3}, b: []float32{2, 4, 6}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 0}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestRankHits(t *testing.T) {
	hits := []Hit{
		{Text: "low", Score: 0.1},
		{Text: "tie-1", Score: 0.8},
		{Text: "top", Score: 0.9},
		{Text: "tie-2", Score: 0.8},
	}
	ranked := rankHits(hits, 0.5, 0)
	assert.Equal(t, []string{"top", "tie-1", "tie-2"}, texts(ranked))

	ranked = rankHits([]Hit{{Text: "a", Score: 1}, {Text: "b", Score: 0.5}}, 0, 1)
	assert.Equal(t, []string{"a"}, texts(ranked))
}

func TestBlobRoundTrip(t *testing.T) {
	vec := []float32{0, -1.5, 3.25, 1e-7}
	got, err := blobToVector(vectorToBlob(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = blobToVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
