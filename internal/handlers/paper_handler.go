package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"paperbase/internal/config"
	"paperbase/internal/models"
	"paperbase/internal/repositories"
)

// PaperHandler serves stored papers and their derived artifacts.
type PaperHandler struct {
	papers  repositories.PaperRepository
	vectors repositories.VectorRepository
	storage config.StorageConfig
}

// NewPaperHandler creates the paper handler.
func NewPaperHandler(papers repositories.PaperRepository, vectors repositories.VectorRepository, storage config.StorageConfig) *PaperHandler {
	return &PaperHandler{papers: papers, vectors: vectors, storage: storage}
}

// Get handles GET /paper/{doc_id}.
func (h *PaperHandler) Get(w http.ResponseWriter, r *http.Request) {
	paper, err := h.papers.GetByID(r.Context(), mux.Vars(r)["doc_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paper.ToDTO())
}

// List handles GET /papers.
func (h *PaperHandler) List(w http.ResponseWriter, r *http.Request) {
	papers, err := h.papers.List(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]models.PaperDTO, len(papers))
	for i := range papers {
		dtos[i] = papers[i].ToDTO()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"papers": dtos, "count": len(dtos)})
}

// Metadata handles GET /metadata/{doc_id}.
func (h *PaperHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.papers.GetMetadata(r.Context(), mux.Vars(r)["doc_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// Embedding handles GET /embedding/{doc_id}: the document mean vector.
func (h *PaperHandler) Embedding(w http.ResponseWriter, r *http.Request) {
	emb, err := h.papers.GetDocumentEmbedding(r.Context(), mux.Vars(r)["doc_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, emb)
}

// PageEmbeddings handles GET /embedding/{doc_id}/pages.
func (h *PaperHandler) PageEmbeddings(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["doc_id"]
	pages, err := h.papers.GetPages(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(pages) == 0 {
		writeError(w, &repositories.NotFoundError{Entity: "page embeddings", Key: docID})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"doc_id": docID, "pages": pages})
}

// PageEmbedding handles GET /embedding/{doc_id}/page/{n}.
func (h *PaperHandler) PageEmbedding(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	docID := vars["doc_id"]
	n, err := strconv.Atoi(vars["n"])
	if err != nil || n < 1 {
		writeError(w, models.Errorf(models.KindInvalidInput, "papers", "invalid page number %q", vars["n"]))
		return
	}
	pages, err := h.papers.GetPages(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, page := range pages {
		if page.PageNumber == n {
			writeJSON(w, http.StatusOK, page)
			return
		}
	}
	writeError(w, &repositories.NotFoundError{Entity: "page embedding", Key: docID + "/" + vars["n"]})
}

// Layout handles GET /layout/{doc_id}.
func (h *PaperHandler) Layout(w http.ResponseWriter, r *http.Request) {
	layout, err := h.papers.GetLayout(r.Context(), mux.Vars(r)["doc_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(layout.LayoutJSON))
}

// Text handles GET /text/{doc_id}: the extracted page texts.
func (h *PaperHandler) Text(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["doc_id"]
	pages, err := h.papers.GetPages(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(pages) == 0 {
		writeError(w, &repositories.NotFoundError{Entity: "text", Key: docID})
		return
	}
	texts := make([]string, len(pages))
	for i, page := range pages {
		texts[i] = page.PageText
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"doc_id": docID, "pages": texts})
}

// Preview handles GET /preview/{doc_id}: the first-page PNG.
func (h *PaperHandler) Preview(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["doc_id"]
	path := filepath.Join(h.storage.ImageDir, docID+"_p1.png")
	if _, err := os.Stat(path); err != nil {
		writeError(w, &repositories.NotFoundError{Entity: "preview", Key: docID})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

// Download handles GET /download/{doc_id}: the stored PDF. Papers whose
// text layer was regenerated carry the pre-OCR original in
// OriginalFilePath; everything else serves the stored copy.
func (h *PaperHandler) Download(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["doc_id"]
	paper, err := h.papers.GetByID(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	path := paper.OriginalFilePath
	if path == "" {
		path = filepath.Join(h.storage.PDFDir, docID+".pdf")
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, &repositories.NotFoundError{Entity: "stored pdf", Key: docID})
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+paper.Filename+`"`)
	http.ServeFile(w, r, path)
}

// Duplicates handles GET /paper/{doc_id}/duplicates.
func (h *PaperHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["doc_id"]
	if _, err := h.papers.GetByID(r.Context(), docID); err != nil {
		writeError(w, err)
		return
	}
	refs, err := h.papers.ListDuplicateRefs(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"doc_id": docID, "duplicates": refs})
}

// Delete handles DELETE /paper/{doc_id}: relational row (cascading) plus
// the paper's vectors.
func (h *PaperHandler) Delete(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["doc_id"]
	if err := h.papers.Delete(r.Context(), docID); err != nil {
		writeError(w, err)
		return
	}
	if err := h.vectors.DeleteDocument(r.Context(), docID); err != nil {
		log.Warn().Err(err).Str("doc_id", docID).Msg("vector delete failed; consistency check will catch it")
	}
	writeJSON(w, http.StatusOK, map[string]string{"doc_id": docID, "status": "deleted"})
}
