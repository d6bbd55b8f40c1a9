package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorBytesRoundTrip(t *testing.T) {
	v := []float32{0.5, -1.25, 3.75, 0}
	got, err := VectorFromBytes(VectorBytes(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestVectorFromBytesRejectsTruncatedBlob(t *testing.T) {
	_, err := VectorFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestMeanVector(t *testing.T) {
	mean, err := MeanVector([][]float32{
		{1, 2, 3},
		{3, 4, 5},
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 4}, mean)

	_, err = MeanVector(nil)
	assert.Error(t, err)

	_, err = MeanVector([][]float32{{1, 2}, {1, 2, 3}})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	n := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(n[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(n[1]), 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestCosine(t *testing.T) {
	same, err := Cosine([]float32{1, 2, 3}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, same, 1e-9)

	orth, err := Cosine([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, orth, 1e-9)

	opp, err := Cosine([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, opp, 1e-9)

	_, err = Cosine([]float32{1}, []float32{1, 2})
	assert.Error(t, err)

	zero, err := Cosine([]float32{0, 0}, []float32{1, 2})
	require.NoError(t, err)
	assert.Zero(t, zero)
}

func TestContentIDStable(t *testing.T) {
	v := []float32{0.1, 0.2, 0.3}
	a := ContentID(v)
	b := ContentID([]float32{0.1, 0.2, 0.3})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	// Identity is over the unnormalized vector, so scaling changes it.
	assert.NotEqual(t, a, ContentID([]float32{0.2, 0.4, 0.6}))
}

func TestSampleIndexes(t *testing.T) {
	assert.Nil(t, SampleIndexes(0))
	assert.Equal(t, []int{0}, SampleIndexes(1))
	assert.Equal(t, []int{0, 1}, SampleIndexes(2))
	assert.Equal(t, []int{0, 1, 2}, SampleIndexes(3))
	assert.Equal(t, []int{0, 5, 9}, SampleIndexes(10))
	assert.Equal(t, []int{0, 50, 99}, SampleIndexes(100))
}

func TestSampleHashSensitivity(t *testing.T) {
	a := SampleHash([][]float32{{1, 2}, {3, 4}})
	b := SampleHash([][]float32{{1, 2}, {3, 4}})
	c := SampleHash([][]float32{{1, 2}, {3, 5}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
