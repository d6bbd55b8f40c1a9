package repositories

import (
	"context"

	"paperbase/internal/models"
)

// SimilarDocument is one nearest-neighbor hit from the vector store.
type SimilarDocument struct {
	DocID      string  `json:"doc_id"`
	Similarity float64 `json:"similarity"`
}

// VectorStoreStats summarizes the vector store.
type VectorStoreStats struct {
	Documents int `json:"documents"`
	Pages     int `json:"pages"`
}

// VectorRepository persists document and page vectors in the vector store.
// Writes normalize vectors so stored entries live on the unit sphere.
type VectorRepository interface {
	Ping(ctx context.Context) error

	// UpsertDocument writes the document-level mean vector.
	UpsertDocument(ctx context.Context, doc *models.DocumentEmbedding, metadata map[string]interface{}) error

	// UpsertPages writes one entry per page, keyed docID_pN.
	UpsertPages(ctx context.Context, docID string, pages []models.PageEmbedding) error

	// DeleteDocument removes the document vector and all its page vectors.
	DeleteDocument(ctx context.Context, docID string) error

	// GetDocumentVector returns the stored (normalized) document vector.
	GetDocumentVector(ctx context.Context, docID string) ([]float32, error)

	// QuerySimilar returns the nearest documents by cosine similarity.
	QuerySimilar(ctx context.Context, vector []float32, n int) ([]SimilarDocument, error)

	// ListDocumentIDs returns every document ID in the store.
	ListDocumentIDs(ctx context.Context) ([]string, error)

	// CountPagesFor returns the number of page vectors stored for a document.
	CountPagesFor(ctx context.Context, docID string) (int, error)

	Stats(ctx context.Context) (*VectorStoreStats, error)
}
