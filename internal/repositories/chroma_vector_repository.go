package repositories

import (
	"context"
	"fmt"

	"paperbase/internal/db"
	"paperbase/internal/embedding"
	"paperbase/internal/models"
)

const (
	// DocumentCollection holds one mean vector per paper.
	DocumentCollection = "papers"
	// PageCollection holds one vector per page, keyed docID_pN.
	PageCollection = "paper_pages"
)

// ChromaVectorRepository implements VectorRepository on ChromaDB. Both
// collections use cosine space, so stored vectors are L2-normalized on write
// and query similarity is 1 minus the reported distance.
type ChromaVectorRepository struct {
	client *db.ChromaDBClient
}

// NewChromaVectorRepository creates a vector repository and ensures both
// collections exist.
func NewChromaVectorRepository(ctx context.Context, client *db.ChromaDBClient) (*ChromaVectorRepository, error) {
	for _, name := range []string{DocumentCollection, PageCollection} {
		if _, err := client.EnsureCollection(ctx, name); err != nil {
			return nil, fmt.Errorf("ensure collection %s: %w", name, err)
		}
	}
	return &ChromaVectorRepository{client: client}, nil
}

// Ping implements VectorRepository.
func (r *ChromaVectorRepository) Ping(ctx context.Context) error {
	return r.client.Heartbeat(ctx)
}

// UpsertDocument implements VectorRepository.
func (r *ChromaVectorRepository) UpsertDocument(ctx context.Context, doc *models.DocumentEmbedding, metadata map[string]interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["doc_id"] = doc.DocID
	metadata["model_name"] = doc.ModelName
	metadata["vector_dim"] = doc.VectorDim

	err := r.client.Upsert(ctx, DocumentCollection,
		[]string{doc.DocID},
		nil,
		[][]float32{embedding.Normalize(doc.Vector)},
		[]map[string]interface{}{metadata})
	if err != nil {
		return NewRepositoryError("upsert document vector", doc.DocID, err)
	}
	return nil
}

// UpsertPages implements VectorRepository.
func (r *ChromaVectorRepository) UpsertPages(ctx context.Context, docID string, pages []models.PageEmbedding) error {
	if len(pages) == 0 {
		return nil
	}
	ids := make([]string, len(pages))
	docs := make([]string, len(pages))
	vectors := make([][]float32, len(pages))
	metas := make([]map[string]interface{}, len(pages))
	for i, page := range pages {
		ids[i] = pageVectorID(docID, page.PageNumber)
		docs[i] = page.PageText
		vectors[i] = embedding.Normalize(page.Vector)
		metas[i] = map[string]interface{}{
			"doc_id":      docID,
			"page_number": page.PageNumber,
			"model_name":  page.ModelName,
		}
	}
	if err := r.client.Upsert(ctx, PageCollection, ids, docs, vectors, metas); err != nil {
		return NewRepositoryError("upsert page vectors", docID, err)
	}
	return nil
}

// DeleteDocument implements VectorRepository.
func (r *ChromaVectorRepository) DeleteDocument(ctx context.Context, docID string) error {
	if err := r.client.Delete(ctx, DocumentCollection, []string{docID}, nil); err != nil {
		return NewRepositoryError("delete document vector", docID, err)
	}
	where := map[string]interface{}{"doc_id": docID}
	if err := r.client.Delete(ctx, PageCollection, nil, where); err != nil {
		return NewRepositoryError("delete page vectors", docID, err)
	}
	return nil
}

// GetDocumentVector implements VectorRepository.
func (r *ChromaVectorRepository) GetDocumentVector(ctx context.Context, docID string) ([]float32, error) {
	resp, err := r.client.Get(ctx, DocumentCollection,
		map[string]interface{}{"doc_id": docID}, 1, true)
	if err != nil {
		return nil, NewRepositoryError("get document vector", docID, err)
	}
	if len(resp.IDs) == 0 || len(resp.Embeddings) == 0 {
		return nil, &NotFoundError{Entity: "document vector", Key: docID}
	}
	return resp.Embeddings[0], nil
}

// QuerySimilar implements VectorRepository.
func (r *ChromaVectorRepository) QuerySimilar(ctx context.Context, vector []float32, n int) ([]SimilarDocument, error) {
	if n <= 0 {
		n = 5
	}
	resp, err := r.client.Query(ctx, DocumentCollection, embedding.Normalize(vector), n, nil)
	if err != nil {
		return nil, NewRepositoryError("query similar documents", "", err)
	}

	hits := []SimilarDocument{}
	if len(resp.IDs) == 0 {
		return hits, nil
	}
	for i, id := range resp.IDs[0] {
		hit := SimilarDocument{DocID: id}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			hit.Similarity = 1 - float64(resp.Distances[0][i])
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// ListDocumentIDs implements VectorRepository.
func (r *ChromaVectorRepository) ListDocumentIDs(ctx context.Context) ([]string, error) {
	resp, err := r.client.Get(ctx, DocumentCollection, nil, 0, false)
	if err != nil {
		return nil, NewRepositoryError("list document vectors", "", err)
	}
	return resp.IDs, nil
}

// CountPagesFor implements VectorRepository.
func (r *ChromaVectorRepository) CountPagesFor(ctx context.Context, docID string) (int, error) {
	resp, err := r.client.Get(ctx, PageCollection,
		map[string]interface{}{"doc_id": docID}, 0, false)
	if err != nil {
		return 0, NewRepositoryError("count page vectors", docID, err)
	}
	return len(resp.IDs), nil
}

// Stats implements VectorRepository.
func (r *ChromaVectorRepository) Stats(ctx context.Context) (*VectorStoreStats, error) {
	docs, err := r.client.Count(ctx, DocumentCollection)
	if err != nil {
		return nil, NewRepositoryError("count documents", "", err)
	}
	pages, err := r.client.Count(ctx, PageCollection)
	if err != nil {
		return nil, NewRepositoryError("count pages", "", err)
	}
	return &VectorStoreStats{Documents: docs, Pages: pages}, nil
}

func pageVectorID(docID string, pageNumber int) string {
	return fmt.Sprintf("%s_p%d", docID, pageNumber)
}
