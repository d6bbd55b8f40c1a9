package models

import (
	"time"
)

// OCRQuality grades the text layer of a stored PDF.
type OCRQuality string

const (
	OCRQualityGood    OCRQuality = "good"
	OCRQualityFair    OCRQuality = "fair"
	OCRQualityPoor    OCRQuality = "poor"
	OCRQualityUnknown OCRQuality = "unknown"
)

// IsValid checks if the OCR quality value is recognized.
func (q OCRQuality) IsValid() bool {
	switch q {
	case OCRQualityGood, OCRQualityFair, OCRQualityPoor, OCRQualityUnknown:
		return true
	default:
		return false
	}
}

// Rank orders grades for comparisons; higher is better, unknown lowest.
func (q OCRQuality) Rank() int {
	switch q {
	case OCRQualityGood:
		return 3
	case OCRQualityFair:
		return 2
	case OCRQualityPoor:
		return 1
	default:
		return 0
	}
}

// Paper represents a processed document. ContentID is the logical identity:
// two uploads producing the same ContentID collapse to one Paper.
type Paper struct {
	DocID             string     `json:"doc_id" db:"doc_id"`
	ContentID         string     `json:"content_id" db:"content_id"`
	Filename          string     `json:"filename" db:"filename"`
	OCRQuality        OCRQuality `json:"ocr_quality" db:"ocr_quality"`
	OCRRegenerated    bool       `json:"ocr_regenerated" db:"ocr_regenerated"`
	OriginalFilePath  string     `json:"original_file_path,omitempty" db:"original_file_path"`
	ProcessingNotes   string     `json:"processing_notes,omitempty" db:"processing_notes"`
	PendingVectorSync bool       `json:"pending_vector_sync" db:"pending_vector_sync"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// PageEmbedding is one per page of a Paper. Page numbers form a contiguous
// 1..N range and all pages of a document share one vector dimension.
type PageEmbedding struct {
	DocID      string    `json:"doc_id" db:"doc_id"`
	PageNumber int       `json:"page_number" db:"page_number"`
	PageText   string    `json:"page_text" db:"page_text"`
	VectorDim  int       `json:"vector_dim" db:"vector_dim"`
	ModelName  string    `json:"model_name" db:"model_name"`
	Vector     []float32 `json:"vector" db:"-"`
}

// DocumentEmbedding is the componentwise mean of all page embeddings of a
// Paper. Its byte representation determines the ContentID.
type DocumentEmbedding struct {
	DocID     string    `json:"doc_id" db:"doc_id"`
	ModelName string    `json:"model_name" db:"model_name"`
	VectorDim int       `json:"vector_dim" db:"vector_dim"`
	Vector    []float32 `json:"vector" db:"-"`
}

// ExtractionTier records which metadata cascade tier produced the record.
type ExtractionTier string

const (
	TierStructuredLLM ExtractionTier = "structured_llm"
	TierSimpleLLM     ExtractionTier = "simple_llm"
	TierRuleBased     ExtractionTier = "rule_based"
)

// Metadata holds bibliographic fields, zero or one per Paper.
type Metadata struct {
	DocID    string         `json:"doc_id" db:"doc_id"`
	Title    string         `json:"title" db:"title"`
	Authors  []string       `json:"authors" db:"-"`
	Journal  string         `json:"journal,omitempty" db:"journal"`
	Year     int            `json:"year,omitempty" db:"year"`
	DOI      string         `json:"doi,omitempty" db:"doi"`
	Abstract string         `json:"abstract,omitempty" db:"abstract"`
	Tier     ExtractionTier `json:"extraction_tier" db:"extraction_tier"`
}

// Valid reports whether the record passes cascade acceptance: a non-empty
// title, at least one author, and a plausible publication year.
func (m *Metadata) Valid(now time.Time) bool {
	if m == nil || m.Title == "" || len(m.Authors) == 0 {
		return false
	}
	if m.Year != 0 && (m.Year < 1800 || m.Year > now.Year()+1) {
		return false
	}
	return true
}

// LayoutAnalysis holds the layout analyzer's structured payload, zero or one
// per Paper. LayoutJSON is opaque to the ingestion core.
type LayoutAnalysis struct {
	DocID      string `json:"doc_id" db:"doc_id"`
	PageCount  int    `json:"page_count" db:"page_count"`
	LayoutJSON string `json:"layout_json" db:"layout_json"`
}

// SampleStrategyFirstMiddleLast tags how the Level-2 sample vector was drawn.
const SampleStrategyFirstMiddleLast = "first_middle_last"

// DuplicateHashes are the three dedup fingerprints kept per Paper.
type DuplicateHashes struct {
	DocID string `json:"doc_id" db:"doc_id"`

	// Level 0: MD5 over the raw upload bytes.
	FileHash string `json:"file_hash" db:"file_hash"`

	// Level 1: SHA-256 over normalized PDF metadata plus normalized text of
	// the first three pages. Matches additionally require equal page count.
	ContentHash string `json:"content_hash" db:"content_hash"`
	PageCount   int    `json:"page_count" db:"page_count"`

	// Level 2: SHA-256 over the byte representation of the sample vector.
	SampleEmbeddingHash string `json:"sample_embedding_hash" db:"sample_embedding_hash"`
	SampleStrategy      string `json:"sample_strategy" db:"sample_strategy"`
	SampleVectorDim     int    `json:"sample_vector_dim" db:"sample_vector_dim"`
}

// DuplicateReference links a redundant upload to the Paper it resolved to.
type DuplicateReference struct {
	ID         int64     `json:"id" db:"id"`
	DocID      string    `json:"doc_id" db:"doc_id"`
	FileHash   string    `json:"file_hash" db:"file_hash"`
	Filename   string    `json:"filename" db:"filename"`
	Level      int       `json:"level" db:"level"`
	Similarity float64   `json:"similarity" db:"similarity"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PaperDTO is the API view of a Paper.
type PaperDTO struct {
	DocID           string `json:"doc_id"`
	ContentID       string `json:"content_id"`
	Filename        string `json:"filename"`
	OCRQuality      string `json:"ocr_quality"`
	OCRRegenerated  bool   `json:"ocr_regenerated"`
	ProcessingNotes string `json:"processing_notes,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// ToDTO converts a Paper domain model to its API view.
func (p *Paper) ToDTO() PaperDTO {
	return PaperDTO{
		DocID:           p.DocID,
		ContentID:       p.ContentID,
		Filename:        p.Filename,
		OCRQuality:      string(p.OCRQuality),
		OCRRegenerated:  p.OCRRegenerated,
		ProcessingNotes: p.ProcessingNotes,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       p.UpdatedAt.Format(time.RFC3339),
	}
}
