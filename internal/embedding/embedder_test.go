package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := NewLocalEmbedder("hashed-bow-v1", 64)

	a, err := e.EmbedPages(context.Background(), []string{"the quick brown fox"})
	require.NoError(t, err)
	b, err := e.EmbedPages(context.Background(), []string{"the quick brown fox"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLocalEmbedderDimAndOrder(t *testing.T) {
	e := NewLocalEmbedder("hashed-bow-v1", 32)
	vecs, err := e.EmbedPages(context.Background(), []string{"first page", "second page", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 32)
	}

	// Empty text embeds to the zero vector.
	assert.Equal(t, make([]float32, 32), vecs[2])
}

func TestLocalEmbedderCaseAndPunctuationInsensitive(t *testing.T) {
	e := NewLocalEmbedder("hashed-bow-v1", 64)
	vecs, err := e.EmbedPages(context.Background(), []string{"Hello, World!", "hello world"})
	require.NoError(t, err)
	assert.Equal(t, vecs[0], vecs[1])
}

func TestLocalEmbedderDistinguishesText(t *testing.T) {
	e := NewLocalEmbedder("hashed-bow-v1", 384)
	vecs, err := e.EmbedPages(context.Background(), []string{
		"deep learning for protein folding",
		"medieval trade routes of the baltic",
	})
	require.NoError(t, err)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestLocalEmbedderDefaultDim(t *testing.T) {
	e := NewLocalEmbedder("hashed-bow-v1", 0)
	assert.Equal(t, 384, e.Dim())
	assert.Equal(t, "hashed-bow-v1", e.ModelName())
}
