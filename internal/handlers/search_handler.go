package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"paperbase/internal/models"
	"paperbase/internal/repositories"
)

// SearchHandler serves keyword and vector search.
type SearchHandler struct {
	papers  repositories.PaperRepository
	vectors repositories.VectorRepository
}

// NewSearchHandler creates the search handler.
func NewSearchHandler(papers repositories.PaperRepository, vectors repositories.VectorRepository) *SearchHandler {
	return &SearchHandler{papers: papers, vectors: vectors}
}

// searchHit is one keyword search result.
type searchHit struct {
	DocID      string `json:"doc_id"`
	PageNumber int    `json:"page_number"`
	Snippet    string `json:"snippet"`
}

// Keyword handles GET /search?q=...
func (h *SearchHandler) Keyword(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"results": []searchHit{}, "count": 0})
		return
	}

	pages, err := h.papers.SearchPageText(r.Context(), query, queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	hits := make([]searchHit, len(pages))
	for i, page := range pages {
		hits[i] = searchHit{
			DocID:      page.DocID,
			PageNumber: page.PageNumber,
			Snippet:    snippet(page.PageText, 240),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": hits, "count": len(hits)})
}

// Similar handles GET /similar/{doc_id}: nearest neighbors of a stored paper.
func (h *SearchHandler) Similar(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["doc_id"]
	emb, err := h.papers.GetDocumentEmbedding(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}

	hits, err := h.vectors.QuerySimilar(r.Context(), emb.Vector, queryInt(r, "limit", 5)+1)
	if err != nil {
		writeError(w, err)
		return
	}
	neighbors := []repositories.SimilarDocument{}
	for _, hit := range hits {
		if hit.DocID != docID {
			neighbors = append(neighbors, hit)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"doc_id": docID, "similar": neighbors})
}

type vectorSearchRequest struct {
	Vector []float32 `json:"vector"`
	Limit  int       `json:"limit"`
}

// Vector handles POST /search/vector: nearest neighbors of a caller vector.
func (h *SearchHandler) Vector(w http.ResponseWriter, r *http.Request) {
	var req vectorSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.NewError(models.KindInvalidInput, "search", err, "malformed request body"))
		return
	}
	if len(req.Vector) == 0 {
		writeError(w, models.Errorf(models.KindInvalidInput, "search", "vector is required"))
		return
	}
	hits, err := h.vectors.QuerySimilar(r.Context(), req.Vector, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": hits, "count": len(hits)})
}

func snippet(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
