package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperbase/internal/config"
	"paperbase/internal/db"
	"paperbase/internal/models"
	"paperbase/internal/repositories"
)

// stubVectors records deletes and serves canned similarity hits.
type stubVectors struct {
	repositories.VectorRepository
	deleted []string
	hits    []repositories.SimilarDocument
}

func (s *stubVectors) DeleteDocument(_ context.Context, docID string) error {
	s.deleted = append(s.deleted, docID)
	return nil
}

func (s *stubVectors) QuerySimilar(_ context.Context, _ []float32, _ int) ([]repositories.SimilarDocument, error) {
	return s.hits, nil
}

func paperFixture(t *testing.T) (*repositories.SQLitePaperRepository, *stubVectors, *mux.Router) {
	t.Helper()
	store, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	papers := repositories.NewSQLitePaperRepository(store)
	vectors := &stubVectors{}
	h := NewPaperHandler(papers, vectors, config.StorageConfig{ImageDir: t.TempDir()})

	r := mux.NewRouter()
	r.HandleFunc("/papers", h.List).Methods(http.MethodGet)
	r.HandleFunc("/paper/{doc_id}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/paper/{doc_id}", h.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/paper/{doc_id}/duplicates", h.Duplicates).Methods(http.MethodGet)
	r.HandleFunc("/metadata/{doc_id}", h.Metadata).Methods(http.MethodGet)
	r.HandleFunc("/embedding/{doc_id}", h.Embedding).Methods(http.MethodGet)
	r.HandleFunc("/embedding/{doc_id}/page/{n}", h.PageEmbedding).Methods(http.MethodGet)
	r.HandleFunc("/layout/{doc_id}", h.Layout).Methods(http.MethodGet)
	r.HandleFunc("/text/{doc_id}", h.Text).Methods(http.MethodGet)
	return papers, vectors, r
}

func storePaper(t *testing.T, papers *repositories.SQLitePaperRepository, docID string) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	paper := models.Paper{DocID: docID, Filename: docID + ".pdf",
		OCRQuality: models.OCRQualityGood, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, papers.CreateProvisional(context.Background(), &paper))

	paper.ContentID = "cid-" + docID
	require.NoError(t, papers.Finalize(context.Background(), repositories.FinalizeInput{
		Paper: paper,
		Pages: []models.PageEmbedding{
			{DocID: docID, PageNumber: 1, PageText: "introduction text", VectorDim: 4,
				ModelName: "m", Vector: []float32{1, 0, 0, 0}},
		},
		DocEmbed: models.DocumentEmbedding{DocID: docID, ModelName: "m", VectorDim: 4,
			Vector: []float32{1, 0, 0, 0}},
		Metadata: &models.Metadata{DocID: docID, Title: "A Title", Authors: []string{"A. Author"},
			Tier: models.TierRuleBased},
		Layout: &models.LayoutAnalysis{DocID: docID, PageCount: 1, LayoutJSON: `{"pages":[{"n":1}]}`},
		Hashes: models.DuplicateHashes{DocID: docID, FileHash: "fh-" + docID,
			ContentHash: "ch-" + docID, PageCount: 1, SampleEmbeddingHash: "sh-" + docID,
			SampleStrategy: models.SampleStrategyFirstMiddleLast, SampleVectorDim: 4},
	}))
}

func TestPaperGet(t *testing.T) {
	papers, _, router := paperFixture(t)
	storePaper(t, papers, "doc-1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paper/doc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var dto models.PaperDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, "doc-1", dto.DocID)
	assert.Equal(t, "cid-doc-1", dto.ContentID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paper/none", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaperList(t *testing.T) {
	papers, _, router := paperFixture(t)
	storePaper(t, papers, "doc-1")
	storePaper(t, papers, "doc-2")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/papers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Papers []models.PaperDTO `json:"papers"`
		Count  int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestPaperMetadataAndLayout(t *testing.T) {
	papers, _, router := paperFixture(t)
	storePaper(t, papers, "doc-1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metadata/doc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var meta models.Metadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, "A Title", meta.Title)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/layout/doc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pages":[{"n":1}]}`, rec.Body.String())
}

func TestPaperEmbeddings(t *testing.T) {
	papers, _, router := paperFixture(t)
	storePaper(t, papers, "doc-1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/embedding/doc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/embedding/doc-1/page/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/embedding/doc-1/page/9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/embedding/doc-1/page/zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaperText(t *testing.T) {
	papers, _, router := paperFixture(t)
	storePaper(t, papers, "doc-1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/text/doc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "introduction text")
}

func TestPaperDeleteRemovesVectorsToo(t *testing.T) {
	papers, vectors, router := paperFixture(t)
	storePaper(t, papers, "doc-1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/paper/doc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"doc-1"}, vectors.deleted)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/paper/doc-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaperDownload(t *testing.T) {
	store, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	papers := repositories.NewSQLitePaperRepository(store)
	pdfDir := t.TempDir()
	h := NewPaperHandler(papers, &stubVectors{}, config.StorageConfig{PDFDir: pdfDir})
	router := mux.NewRouter()
	router.HandleFunc("/download/{doc_id}", h.Download).Methods(http.MethodGet)

	// A paper without a preserved original serves the stored copy.
	storePaper(t, papers, "doc-1")
	require.NoError(t, os.WriteFile(filepath.Join(pdfDir, "doc-1.pdf"), []byte("%PDF-1.4 stored"), 0o644))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/doc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "stored")

	// A stored copy that went missing is a 404, not a 500.
	storePaper(t, papers, "doc-2")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/doc-2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaperDuplicates(t *testing.T) {
	papers, _, router := paperFixture(t)
	storePaper(t, papers, "doc-1")
	require.NoError(t, papers.AddDuplicateRef(context.Background(), &models.DuplicateReference{
		DocID: "doc-1", FileHash: "fh2", Filename: "copy.pdf", Level: 0, Similarity: 1,
		CreatedAt: time.Now().UTC(),
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paper/doc-1/duplicates", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Duplicates []models.DuplicateReference `json:"duplicates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Duplicates, 1)
	assert.Equal(t, "copy.pdf", resp.Duplicates[0].Filename)
}
