package repositories

import (
	"context"

	"paperbase/internal/models"
)

// FinalizeInput bundles everything written atomically when a pipeline run
// commits its results.
type FinalizeInput struct {
	Paper       models.Paper
	Pages       []models.PageEmbedding
	DocEmbed    models.DocumentEmbedding
	Metadata    *models.Metadata
	Layout      *models.LayoutAnalysis
	Hashes      models.DuplicateHashes
	PendingSync bool
}

// PaperStats summarizes the relational store.
type PaperStats struct {
	Papers        int `json:"papers"`
	Pages         int `json:"pages"`
	DuplicateRefs int `json:"duplicate_refs"`
	PendingSync   int `json:"pending_vector_sync"`
}

// PaperRepository persists papers, their embeddings, metadata, and the
// duplicate-prevention fingerprints.
type PaperRepository interface {
	// CreateProvisional inserts a paper row with no content identity yet.
	CreateProvisional(ctx context.Context, paper *models.Paper) error

	// Finalize commits a completed pipeline run in one transaction. A
	// content-identity collision returns a ContentConflictError and writes
	// nothing.
	Finalize(ctx context.Context, in FinalizeInput) error

	// DeleteProvisional removes a provisional paper row after a failed run.
	DeleteProvisional(ctx context.Context, docID string) error

	GetByID(ctx context.Context, docID string) (*models.Paper, error)
	GetByContentID(ctx context.Context, contentID string) (*models.Paper, error)
	List(ctx context.Context, limit, offset int) ([]models.Paper, error)
	Delete(ctx context.Context, docID string) error

	GetPages(ctx context.Context, docID string) ([]models.PageEmbedding, error)
	GetDocumentEmbedding(ctx context.Context, docID string) (*models.DocumentEmbedding, error)
	GetMetadata(ctx context.Context, docID string) (*models.Metadata, error)
	GetLayout(ctx context.Context, docID string) (*models.LayoutAnalysis, error)

	// Fingerprint lookups for the duplicate engine. Each returns the owning
	// paper or a NotFoundError.
	FindByFileHash(ctx context.Context, fileHash string) (*models.Paper, error)
	FindByContentHash(ctx context.Context, contentHash string, pageCount int) (*models.Paper, error)
	FindBySampleHash(ctx context.Context, sampleHash string) (*models.Paper, error)

	AddDuplicateRef(ctx context.Context, ref *models.DuplicateReference) error
	ListDuplicateRefs(ctx context.Context, docID string) ([]models.DuplicateReference, error)

	SetPendingVectorSync(ctx context.Context, docID string, pending bool) error
	ListPendingVectorSync(ctx context.Context) ([]string, error)

	SearchPageText(ctx context.Context, query string, limit int) ([]models.PageEmbedding, error)
	Stats(ctx context.Context) (*PaperStats, error)
}
