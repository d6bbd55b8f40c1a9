package dedup

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog/log"

	"paperbase/internal/models"
	"paperbase/internal/repositories"
)

// contentHashPages is how many leading pages feed the Level-1 fingerprint.
const contentHashPages = 3

// Match identifies the surviving paper a redundant upload resolved to.
type Match struct {
	Level      int     `json:"level"`
	DocID      string  `json:"doc_id"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Engine runs the four duplicate checks, cheapest first. Levels 0 and 1 run
// before any processing, level 2 after embedding, level 3 against the
// vector store.
type Engine struct {
	papers    repositories.PaperRepository
	vectors   repositories.VectorRepository
	threshold float64
}

// NewEngine creates the duplicate engine.
func NewEngine(papers repositories.PaperRepository, vectors repositories.VectorRepository, threshold float64) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.95
	}
	return &Engine{papers: papers, vectors: vectors, threshold: threshold}
}

// FileHash computes the Level-0 fingerprint over raw upload bytes.
func FileHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ContentHash computes the Level-1 fingerprint over normalized PDF metadata
// and the normalized text of the leading pages.
func ContentHash(metadata string, pageTexts []string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeText(metadata)))
	n := len(pageTexts)
	if n > contentHashPages {
		n = contentHashPages
	}
	for i := 0; i < n; i++ {
		h.Write([]byte(NormalizeText(pageTexts[i])))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CheckFileHash runs the Level-0 lookup.
func (e *Engine) CheckFileHash(ctx context.Context, fileHash string) (*Match, error) {
	paper, err := e.papers.FindByFileHash(ctx, fileHash)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &Match{Level: 0, DocID: paper.DocID, Similarity: 1}, nil
}

// CheckContentHash runs the Level-1 lookup; page counts must match too.
func (e *Engine) CheckContentHash(ctx context.Context, contentHash string, pageCount int) (*Match, error) {
	paper, err := e.papers.FindByContentHash(ctx, contentHash, pageCount)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &Match{Level: 1, DocID: paper.DocID, Similarity: 1}, nil
}

// CheckSampleHash runs the Level-2 lookup over the sample vector fingerprint.
func (e *Engine) CheckSampleHash(ctx context.Context, sampleHash string) (*Match, error) {
	paper, err := e.papers.FindBySampleHash(ctx, sampleHash)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &Match{Level: 2, DocID: paper.DocID, Similarity: 1}, nil
}

// CheckSimilarity runs the Level-3 nearest-neighbor check against stored
// document vectors. Hits below the threshold are not duplicates. Equal
// similarities break toward the oldest paper.
func (e *Engine) CheckSimilarity(ctx context.Context, meanVector []float32) (*Match, error) {
	hits, err := e.vectors.QuerySimilar(ctx, meanVector, 5)
	if err != nil {
		return nil, err
	}

	var best *Match
	var bestCreated time.Time
	for _, hit := range hits {
		if hit.Similarity < e.threshold {
			continue
		}
		paper, err := e.papers.GetByID(ctx, hit.DocID)
		if err != nil {
			if repositories.IsNotFound(err) {
				// Vector without a paper row; the consistency checker
				// handles it, the duplicate check just skips it.
				continue
			}
			return nil, err
		}
		if best == nil ||
			hit.Similarity > best.Similarity ||
			(hit.Similarity == best.Similarity && paper.CreatedAt.Before(bestCreated)) {
			best = &Match{Level: 3, DocID: paper.DocID, Similarity: hit.Similarity}
			bestCreated = paper.CreatedAt
		}
	}
	return best, nil
}

// RecordReference stores a duplicate reference against the surviving paper.
func (e *Engine) RecordReference(ctx context.Context, match *Match, fileHash, filename string) error {
	ref := &models.DuplicateReference{
		DocID:      match.DocID,
		FileHash:   fileHash,
		Filename:   filename,
		Level:      match.Level,
		Similarity: match.Similarity,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.papers.AddDuplicateRef(ctx, ref); err != nil {
		return err
	}
	log.Info().Str("doc_id", match.DocID).Int("level", match.Level).
		Float64("similarity", match.Similarity).Str("filename", filename).
		Msg("duplicate upload recorded")
	return nil
}
