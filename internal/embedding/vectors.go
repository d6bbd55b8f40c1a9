package embedding

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// VectorBytes encodes a vector as little-endian IEEE-754 float32 bytes.
// This is the canonical byte form used for storage and content hashing.
func VectorBytes(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// VectorFromBytes decodes the canonical byte form back into a vector.
func VectorFromBytes(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

// MeanVector returns the componentwise mean of the given vectors. All inputs
// must share one dimension.
func MeanVector(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("mean of zero vectors")
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("dimension mismatch: %d vs %d", len(v), dim)
		}
		for i, f := range v {
			sum[i] += float64(f)
		}
	}
	mean := make([]float32, dim)
	n := float64(len(vectors))
	for i := range mean {
		mean[i] = float32(sum[i] / n)
	}
	return mean, nil
}

// Normalize returns the L2-normalized copy of v. A zero vector is returned
// unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

// Cosine returns the cosine similarity of two vectors of equal dimension.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// ContentID derives the stable document identity: the hex SHA-256 of the
// canonical byte form of the unnormalized mean page vector.
func ContentID(meanVector []float32) string {
	sum := sha256.Sum256(VectorBytes(meanVector))
	return hex.EncodeToString(sum[:])
}

// SampleIndexes picks the page indexes used for the sample fingerprint:
// first, middle, and last page, deduplicated for short documents.
func SampleIndexes(pageCount int) []int {
	if pageCount <= 0 {
		return nil
	}
	first := 0
	middle := pageCount / 2
	last := pageCount - 1
	idx := []int{first}
	if middle != first {
		idx = append(idx, middle)
	}
	if last != first && last != middle {
		idx = append(idx, last)
	}
	return idx
}

// SampleHash computes the Level-2 fingerprint: the hex SHA-256 of the
// concatenated canonical bytes of the sampled page vectors.
func SampleHash(pageVectors [][]float32) string {
	h := sha256.New()
	for _, v := range pageVectors {
		h.Write(VectorBytes(v))
	}
	return hex.EncodeToString(h.Sum(nil))
}
