package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"unicode"
)

// Embedder turns page text into fixed-dimension vectors. One embedder is
// active per process; all stored vectors of a document share its model name
// and dimension.
type Embedder interface {
	// EmbedPages embeds one vector per input text, in order.
	EmbedPages(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dim() int
}

// LocalEmbedder is the default in-process embedder. It hashes tokens into a
// fixed-size bag-of-words vector, so identical text always produces an
// identical vector with no external service involved.
type LocalEmbedder struct {
	modelName string
	dim       int
}

// NewLocalEmbedder creates the deterministic in-process embedder.
func NewLocalEmbedder(modelName string, dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &LocalEmbedder{modelName: modelName, dim: dim}
}

// EmbedPages implements Embedder.
func (e *LocalEmbedder) EmbedPages(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

// ModelName implements Embedder.
func (e *LocalEmbedder) ModelName() string {
	return e.modelName
}

// Dim implements Embedder.
func (e *LocalEmbedder) Dim() int {
	return e.dim
}

func (e *LocalEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dim)
	for _, tok := range tokenize(text) {
		sum := sha256.Sum256([]byte(tok))
		slot := int(binary.LittleEndian.Uint32(sum[0:4])) % e.dim
		if slot < 0 {
			slot += e.dim
		}
		// Sign bit from a second hash region spreads tokens around zero so
		// common tokens do not push every component positive.
		sign := float32(1)
		if sum[4]&1 == 1 {
			sign = -1
		}
		vec[slot] += sign
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
