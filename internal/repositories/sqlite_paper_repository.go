package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"

	"paperbase/internal/db"
	"paperbase/internal/embedding"
	"paperbase/internal/models"
)

const paperColumns = `doc_id, COALESCE(content_id, '') AS content_id, filename,
	ocr_quality, ocr_regenerated, original_file_path, processing_notes,
	pending_vector_sync, created_at, updated_at`

// SQLitePaperRepository implements PaperRepository on the relational store.
type SQLitePaperRepository struct {
	store *db.SQLiteDB
}

// NewSQLitePaperRepository creates a paper repository.
func NewSQLitePaperRepository(store *db.SQLiteDB) *SQLitePaperRepository {
	return &SQLitePaperRepository{store: store}
}

// CreateProvisional inserts a paper row with a NULL content identity so the
// running pipeline has a stable doc_id before results exist.
func (r *SQLitePaperRepository) CreateProvisional(ctx context.Context, paper *models.Paper) error {
	_, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO papers (doc_id, content_id, filename, ocr_quality, ocr_regenerated,
			original_file_path, processing_notes, pending_vector_sync, created_at, updated_at)
		VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?, ?)`,
		paper.DocID, paper.Filename, paper.OCRQuality, paper.OCRRegenerated,
		paper.OriginalFilePath, paper.ProcessingNotes, paper.PendingVectorSync,
		paper.CreatedAt, paper.UpdatedAt)
	if err != nil {
		return NewRepositoryError("create paper", paper.DocID, err)
	}
	return nil
}

// Finalize commits a completed run atomically. If another run already owns
// the same content identity, nothing is written and a ContentConflictError
// carrying the existing doc_id is returned.
func (r *SQLitePaperRepository) Finalize(ctx context.Context, in FinalizeInput) error {
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		var existing string
		err := tx.GetContext(ctx, &existing,
			`SELECT doc_id FROM papers WHERE content_id = ? AND doc_id != ?`,
			in.Paper.ContentID, in.Paper.DocID)
		if err == nil {
			return &ContentConflictError{ContentID: in.Paper.ContentID, ExistingDocID: existing}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check content identity: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE papers SET content_id = ?, ocr_quality = ?, ocr_regenerated = ?,
				original_file_path = ?, processing_notes = ?, pending_vector_sync = ?,
				updated_at = ?
			WHERE doc_id = ?`,
			in.Paper.ContentID, in.Paper.OCRQuality, in.Paper.OCRRegenerated,
			in.Paper.OriginalFilePath, in.Paper.ProcessingNotes, in.PendingSync,
			in.Paper.UpdatedAt, in.Paper.DocID)
		if err != nil {
			return fmt.Errorf("update paper: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &NotFoundError{Entity: "paper", Key: in.Paper.DocID}
		}

		for _, page := range in.Pages {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO page_embeddings (doc_id, page_number, page_text, vector_dim, model_name, vector)
				VALUES (?, ?, ?, ?, ?, ?)`,
				page.DocID, page.PageNumber, page.PageText, page.VectorDim,
				page.ModelName, embedding.VectorBytes(page.Vector)); err != nil {
				return fmt.Errorf("insert page %d: %w", page.PageNumber, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_embeddings (doc_id, model_name, vector_dim, vector)
			VALUES (?, ?, ?, ?)`,
			in.DocEmbed.DocID, in.DocEmbed.ModelName, in.DocEmbed.VectorDim,
			embedding.VectorBytes(in.DocEmbed.Vector)); err != nil {
			return fmt.Errorf("insert document embedding: %w", err)
		}

		if in.Metadata != nil {
			authors, err := json.Marshal(in.Metadata.Authors)
			if err != nil {
				return fmt.Errorf("encode authors: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO paper_metadata (doc_id, title, authors, journal, year, doi, abstract, extraction_tier)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				in.Metadata.DocID, in.Metadata.Title, string(authors), in.Metadata.Journal,
				in.Metadata.Year, in.Metadata.DOI, in.Metadata.Abstract, in.Metadata.Tier); err != nil {
				return fmt.Errorf("insert metadata: %w", err)
			}
		}

		if in.Layout != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO layout_analyses (doc_id, page_count, layout_json)
				VALUES (?, ?, ?)`,
				in.Layout.DocID, in.Layout.PageCount, in.Layout.LayoutJSON); err != nil {
				return fmt.Errorf("insert layout: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO duplicate_hashes (doc_id, file_hash, content_hash, page_count,
				sample_embedding_hash, sample_strategy, sample_vector_dim)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			in.Hashes.DocID, in.Hashes.FileHash, in.Hashes.ContentHash, in.Hashes.PageCount,
			in.Hashes.SampleEmbeddingHash, in.Hashes.SampleStrategy, in.Hashes.SampleVectorDim); err != nil {
			return fmt.Errorf("insert duplicate hashes: %w", err)
		}

		return nil
	})
	if err == nil {
		return nil
	}

	// Two runs of identical content can race past the pre-check; the unique
	// index on content_id decides the winner and the loser resolves the
	// surviving paper here.
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		if winner, lookupErr := r.GetByContentID(ctx, in.Paper.ContentID); lookupErr == nil {
			return &ContentConflictError{ContentID: in.Paper.ContentID, ExistingDocID: winner.DocID}
		}
	}

	var cc *ContentConflictError
	var nf *NotFoundError
	if errors.As(err, &cc) || errors.As(err, &nf) {
		return err
	}
	return NewRepositoryError("finalize paper", in.Paper.DocID, err)
}

// DeleteProvisional removes a paper row left by a failed run.
func (r *SQLitePaperRepository) DeleteProvisional(ctx context.Context, docID string) error {
	_, err := r.store.DB().ExecContext(ctx,
		`DELETE FROM papers WHERE doc_id = ? AND content_id IS NULL`, docID)
	if err != nil {
		return NewRepositoryError("delete provisional paper", docID, err)
	}
	return nil
}

// GetByID retrieves a paper by its document ID.
func (r *SQLitePaperRepository) GetByID(ctx context.Context, docID string) (*models.Paper, error) {
	var paper models.Paper
	err := r.store.DB().GetContext(ctx, &paper,
		`SELECT `+paperColumns+` FROM papers WHERE doc_id = ?`, docID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "paper", Key: docID}
	}
	if err != nil {
		return nil, NewRepositoryError("get paper", docID, err)
	}
	return &paper, nil
}

// GetByContentID retrieves a paper by its content identity.
func (r *SQLitePaperRepository) GetByContentID(ctx context.Context, contentID string) (*models.Paper, error) {
	var paper models.Paper
	err := r.store.DB().GetContext(ctx, &paper,
		`SELECT `+paperColumns+` FROM papers WHERE content_id = ?`, contentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "paper", Key: contentID}
	}
	if err != nil {
		return nil, NewRepositoryError("get paper by content id", contentID, err)
	}
	return &paper, nil
}

// List returns finalized papers, newest first.
func (r *SQLitePaperRepository) List(ctx context.Context, limit, offset int) ([]models.Paper, error) {
	if limit <= 0 {
		limit = 50
	}
	papers := []models.Paper{}
	err := r.store.DB().SelectContext(ctx, &papers,
		`SELECT `+paperColumns+` FROM papers WHERE content_id IS NOT NULL
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, NewRepositoryError("list papers", "", err)
	}
	return papers, nil
}

// Delete removes a paper and, through cascade, everything that hangs off it.
// Vector-store cleanup is the caller's responsibility.
func (r *SQLitePaperRepository) Delete(ctx context.Context, docID string) error {
	res, err := r.store.DB().ExecContext(ctx, `DELETE FROM papers WHERE doc_id = ?`, docID)
	if err != nil {
		return NewRepositoryError("delete paper", docID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "paper", Key: docID}
	}
	return nil
}

// GetPages returns all page embeddings of a paper in page order.
func (r *SQLitePaperRepository) GetPages(ctx context.Context, docID string) ([]models.PageEmbedding, error) {
	rows, err := r.store.DB().QueryxContext(ctx, `
		SELECT doc_id, page_number, page_text, vector_dim, model_name, vector
		FROM page_embeddings WHERE doc_id = ? ORDER BY page_number`, docID)
	if err != nil {
		return nil, NewRepositoryError("get pages", docID, err)
	}
	defer rows.Close()

	pages := []models.PageEmbedding{}
	for rows.Next() {
		var page models.PageEmbedding
		var blob []byte
		if err := rows.Scan(&page.DocID, &page.PageNumber, &page.PageText,
			&page.VectorDim, &page.ModelName, &blob); err != nil {
			return nil, NewRepositoryError("scan page", docID, err)
		}
		page.Vector, err = embedding.VectorFromBytes(blob)
		if err != nil {
			return nil, NewRepositoryError("decode page vector", docID, err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// GetDocumentEmbedding returns the stored mean vector of a paper.
func (r *SQLitePaperRepository) GetDocumentEmbedding(ctx context.Context, docID string) (*models.DocumentEmbedding, error) {
	var emb models.DocumentEmbedding
	var blob []byte
	err := r.store.DB().QueryRowxContext(ctx, `
		SELECT doc_id, model_name, vector_dim, vector
		FROM document_embeddings WHERE doc_id = ?`, docID).
		Scan(&emb.DocID, &emb.ModelName, &emb.VectorDim, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "document embedding", Key: docID}
	}
	if err != nil {
		return nil, NewRepositoryError("get document embedding", docID, err)
	}
	emb.Vector, err = embedding.VectorFromBytes(blob)
	if err != nil {
		return nil, NewRepositoryError("decode document vector", docID, err)
	}
	return &emb, nil
}

// GetMetadata returns the bibliographic record of a paper, if any.
func (r *SQLitePaperRepository) GetMetadata(ctx context.Context, docID string) (*models.Metadata, error) {
	var meta models.Metadata
	var authors string
	err := r.store.DB().QueryRowxContext(ctx, `
		SELECT doc_id, title, authors, journal, year, doi, abstract, extraction_tier
		FROM paper_metadata WHERE doc_id = ?`, docID).
		Scan(&meta.DocID, &meta.Title, &authors, &meta.Journal, &meta.Year,
			&meta.DOI, &meta.Abstract, &meta.Tier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "metadata", Key: docID}
	}
	if err != nil {
		return nil, NewRepositoryError("get metadata", docID, err)
	}
	if err := json.Unmarshal([]byte(authors), &meta.Authors); err != nil {
		return nil, NewRepositoryError("decode authors", docID, err)
	}
	return &meta, nil
}

// GetLayout returns the layout analysis of a paper, if any.
func (r *SQLitePaperRepository) GetLayout(ctx context.Context, docID string) (*models.LayoutAnalysis, error) {
	var layout models.LayoutAnalysis
	err := r.store.DB().GetContext(ctx, &layout, `
		SELECT doc_id, page_count, layout_json
		FROM layout_analyses WHERE doc_id = ?`, docID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "layout", Key: docID}
	}
	if err != nil {
		return nil, NewRepositoryError("get layout", docID, err)
	}
	return &layout, nil
}

// FindByFileHash resolves a Level-0 fingerprint to its paper.
func (r *SQLitePaperRepository) FindByFileHash(ctx context.Context, fileHash string) (*models.Paper, error) {
	return r.findByHash(ctx, `h.file_hash = ?`, fileHash)
}

// FindByContentHash resolves a Level-1 fingerprint; the page count must
// match as well.
func (r *SQLitePaperRepository) FindByContentHash(ctx context.Context, contentHash string, pageCount int) (*models.Paper, error) {
	return r.findByHash(ctx, `h.content_hash = ? AND h.page_count = ?`, contentHash, pageCount)
}

// FindBySampleHash resolves a Level-2 fingerprint to its paper.
func (r *SQLitePaperRepository) FindBySampleHash(ctx context.Context, sampleHash string) (*models.Paper, error) {
	return r.findByHash(ctx, `h.sample_embedding_hash = ?`, sampleHash)
}

func (r *SQLitePaperRepository) findByHash(ctx context.Context, where string, args ...interface{}) (*models.Paper, error) {
	var paper models.Paper
	query := `SELECT p.doc_id, COALESCE(p.content_id, '') AS content_id, p.filename,
		p.ocr_quality, p.ocr_regenerated, p.original_file_path, p.processing_notes,
		p.pending_vector_sync, p.created_at, p.updated_at
		FROM duplicate_hashes h JOIN papers p ON p.doc_id = h.doc_id
		WHERE ` + where + ` ORDER BY p.created_at ASC LIMIT 1`
	err := r.store.DB().GetContext(ctx, &paper, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "paper", Key: "fingerprint"}
	}
	if err != nil {
		return nil, NewRepositoryError("find by fingerprint", "", err)
	}
	return &paper, nil
}

// AddDuplicateRef records a redundant upload against its surviving paper.
func (r *SQLitePaperRepository) AddDuplicateRef(ctx context.Context, ref *models.DuplicateReference) error {
	res, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO duplicate_refs (doc_id, file_hash, filename, level, similarity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ref.DocID, ref.FileHash, ref.Filename, ref.Level, ref.Similarity, ref.CreatedAt)
	if err != nil {
		return NewRepositoryError("add duplicate ref", ref.DocID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		ref.ID = id
	}
	return nil
}

// ListDuplicateRefs returns the redundant uploads resolved to a paper.
func (r *SQLitePaperRepository) ListDuplicateRefs(ctx context.Context, docID string) ([]models.DuplicateReference, error) {
	refs := []models.DuplicateReference{}
	err := r.store.DB().SelectContext(ctx, &refs, `
		SELECT id, doc_id, file_hash, filename, level, similarity, created_at
		FROM duplicate_refs WHERE doc_id = ? ORDER BY created_at`, docID)
	if err != nil {
		return nil, NewRepositoryError("list duplicate refs", docID, err)
	}
	return refs, nil
}

// SetPendingVectorSync marks or clears the vector-store sync flag.
func (r *SQLitePaperRepository) SetPendingVectorSync(ctx context.Context, docID string, pending bool) error {
	res, err := r.store.DB().ExecContext(ctx, `
		UPDATE papers SET pending_vector_sync = ?, updated_at = ? WHERE doc_id = ?`,
		pending, time.Now().UTC(), docID)
	if err != nil {
		return NewRepositoryError("set pending vector sync", docID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "paper", Key: docID}
	}
	return nil
}

// ListPendingVectorSync returns papers whose vectors still need pushing.
func (r *SQLitePaperRepository) ListPendingVectorSync(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := r.store.DB().SelectContext(ctx, &ids,
		`SELECT doc_id FROM papers WHERE pending_vector_sync = 1 ORDER BY created_at`)
	if err != nil {
		return nil, NewRepositoryError("list pending vector sync", "", err)
	}
	return ids, nil
}

// SearchPageText does a substring search over stored page text.
func (r *SQLitePaperRepository) SearchPageText(ctx context.Context, query string, limit int) ([]models.PageEmbedding, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.store.DB().QueryxContext(ctx, `
		SELECT doc_id, page_number, page_text, vector_dim, model_name
		FROM page_embeddings WHERE page_text LIKE ? LIMIT ?`,
		"%"+query+"%", limit)
	if err != nil {
		return nil, NewRepositoryError("search page text", "", err)
	}
	defer rows.Close()

	pages := []models.PageEmbedding{}
	for rows.Next() {
		var page models.PageEmbedding
		if err := rows.Scan(&page.DocID, &page.PageNumber, &page.PageText,
			&page.VectorDim, &page.ModelName); err != nil {
			return nil, NewRepositoryError("scan search result", "", err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// Stats summarizes the relational store.
func (r *SQLitePaperRepository) Stats(ctx context.Context) (*PaperStats, error) {
	var stats PaperStats
	q := r.store.DB()
	if err := q.GetContext(ctx, &stats.Papers,
		`SELECT COUNT(*) FROM papers WHERE content_id IS NOT NULL`); err != nil {
		return nil, NewRepositoryError("count papers", "", err)
	}
	if err := q.GetContext(ctx, &stats.Pages,
		`SELECT COUNT(*) FROM page_embeddings`); err != nil {
		return nil, NewRepositoryError("count pages", "", err)
	}
	if err := q.GetContext(ctx, &stats.DuplicateRefs,
		`SELECT COUNT(*) FROM duplicate_refs`); err != nil {
		return nil, NewRepositoryError("count duplicate refs", "", err)
	}
	if err := q.GetContext(ctx, &stats.PendingSync,
		`SELECT COUNT(*) FROM papers WHERE pending_vector_sync = 1`); err != nil {
		return nil, NewRepositoryError("count pending sync", "", err)
	}
	return &stats, nil
}
