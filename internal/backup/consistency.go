package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"paperbase/internal/db"
	"paperbase/internal/models"
	"paperbase/internal/repositories"
)

// class3FixLimit bounds how many page-count mismatches the auto-fix will
// repair in one pass; above it the divergence looks systemic and wants an
// operator.
const class3FixLimit = 10

// Checker compares the relational and vector stores and repairs the safe
// subset of discrepancies.
type Checker struct {
	store   *db.SQLiteDB
	papers  repositories.PaperRepository
	vectors repositories.VectorRepository
	now     func() time.Time
}

// NewChecker creates a consistency checker.
func NewChecker(store *db.SQLiteDB, papers repositories.PaperRepository, vectors repositories.VectorRepository) *Checker {
	return &Checker{store: store, papers: papers, vectors: vectors, now: time.Now}
}

type paperRow struct {
	DocID       string `db:"doc_id"`
	ContentID   string `db:"content_id"`
	PendingSync bool   `db:"pending_vector_sync"`
}

type pageStat struct {
	DocID  string `db:"doc_id"`
	Pages  int    `db:"pages"`
	MinDim int    `db:"min_dim"`
	MaxDim int    `db:"max_dim"`
}

// Check runs the full cross-store comparison.
func (c *Checker) Check(ctx context.Context) (*models.ConsistencyReport, error) {
	report := &models.ConsistencyReport{
		Issues:    []models.ConsistencyIssue{},
		StartedAt: c.now().UTC(),
	}

	papers := []paperRow{}
	err := c.store.DB().SelectContext(ctx, &papers, `
		SELECT doc_id, COALESCE(content_id, '') AS content_id, pending_vector_sync
		FROM papers WHERE content_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("enumerate papers: %w", err)
	}
	report.CheckedPapers = len(papers)

	stats := []pageStat{}
	err = c.store.DB().SelectContext(ctx, &stats, `
		SELECT doc_id, COUNT(*) AS pages, MIN(vector_dim) AS min_dim, MAX(vector_dim) AS max_dim
		FROM page_embeddings GROUP BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("enumerate page stats: %w", err)
	}
	statByDoc := map[string]pageStat{}
	for _, s := range stats {
		statByDoc[s.DocID] = s
	}

	vectorIDs, err := c.vectors.ListDocumentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate vectors: %w", err)
	}
	report.CheckedVectors = len(vectorIDs)
	vectorSet := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		vectorSet[id] = true
	}

	paperSet := make(map[string]bool, len(papers))
	for _, p := range papers {
		paperSet[p.DocID] = true

		pageVecs, err := c.vectors.CountPagesFor(ctx, p.DocID)
		if err != nil {
			return nil, fmt.Errorf("count page vectors for %s: %w", p.DocID, err)
		}
		hasDocVec := vectorSet[p.DocID]
		stat := statByDoc[p.DocID]

		switch {
		case !hasDocVec && pageVecs == 0:
			report.Issues = append(report.Issues, models.ConsistencyIssue{
				Class: models.IssuePaperWithoutVector, Severity: models.SeverityHigh,
				DocID: p.DocID, Detail: "paper has no vectors in the vector store",
				AutoFix: true,
			})
		case !hasDocVec:
			report.Issues = append(report.Issues, models.ConsistencyIssue{
				Class: models.IssueContentIDNoVector, Severity: models.SeverityHigh,
				DocID: p.DocID, Detail: "content identity has no document vector",
			})
		case pageVecs > 0 && pageVecs != stat.Pages:
			report.Issues = append(report.Issues, models.ConsistencyIssue{
				Class: models.IssuePageCountMismatch, Severity: models.SeverityMedium,
				DocID:   p.DocID,
				Detail:  fmt.Sprintf("relational pages %d, vector pages %d", stat.Pages, pageVecs),
				AutoFix: true,
			})
		}

		if stat.Pages > 0 && stat.MinDim != stat.MaxDim {
			report.Issues = append(report.Issues, models.ConsistencyIssue{
				Class: models.IssueDimMismatch, Severity: models.SeverityHigh,
				DocID:  p.DocID,
				Detail: fmt.Sprintf("page vector dimensions range %d..%d", stat.MinDim, stat.MaxDim),
			})
		}

		if p.PendingSync {
			report.Issues = append(report.Issues, models.ConsistencyIssue{
				Class: models.IssuePendingVectorSyncSet, Severity: models.SeverityLow,
				DocID: p.DocID, Detail: "pending_vector_sync marker set",
				AutoFix: true,
			})
		}
	}

	for _, id := range vectorIDs {
		if !paperSet[id] {
			report.Issues = append(report.Issues, models.ConsistencyIssue{
				Class: models.IssueVectorWithoutPaper, Severity: models.SeverityMedium,
				DocID: id, Detail: "vector has no relational paper",
			})
		}
	}

	dupes := []struct {
		ContentID string `db:"content_id"`
		N         int    `db:"n"`
	}{}
	err = c.store.DB().SelectContext(ctx, &dupes, `
		SELECT content_id, COUNT(*) AS n FROM papers
		WHERE content_id IS NOT NULL GROUP BY content_id HAVING COUNT(*) > 1`)
	if err != nil {
		return nil, fmt.Errorf("scan duplicate content ids: %w", err)
	}
	for _, d := range dupes {
		report.Issues = append(report.Issues, models.ConsistencyIssue{
			Class: models.IssueDuplicateContentID, Severity: models.SeverityCritical,
			Detail: fmt.Sprintf("content_id %s held by %d papers", d.ContentID, d.N),
		})
	}

	report.FinishedAt = c.now().UTC()
	report.ReadinessScore = readinessScore(report.Issues)
	log.Info().Int("papers", report.CheckedPapers).Int("vectors", report.CheckedVectors).
		Int("issues", len(report.Issues)).Float64("readiness", report.ReadinessScore).
		Msg("consistency check finished")
	return report, nil
}

// Fix repairs the safe issue classes by re-upserting vectors from the
// relational record. Returns counts of fixed and failed repairs.
func (c *Checker) Fix(ctx context.Context, report *models.ConsistencyReport) (fixed, failed int) {
	class3 := 0
	for _, issue := range report.Issues {
		if issue.Class == models.IssuePageCountMismatch {
			class3++
		}
	}

	for _, issue := range report.Issues {
		if !issue.AutoFix {
			continue
		}
		if issue.Class == models.IssuePageCountMismatch && class3 > class3FixLimit {
			continue
		}
		if err := c.Resync(ctx, issue.DocID); err != nil {
			log.Error().Err(err).Str("doc_id", issue.DocID).Int("class", int(issue.Class)).
				Msg("auto-fix failed")
			failed++
			continue
		}
		fixed++
	}
	return fixed, failed
}

// Resync pushes a paper's vectors back into the vector store and clears the
// sync marker.
func (c *Checker) Resync(ctx context.Context, docID string) error {
	paper, err := c.papers.GetByID(ctx, docID)
	if err != nil {
		return err
	}
	docEmb, err := c.papers.GetDocumentEmbedding(ctx, docID)
	if err != nil {
		return err
	}
	pages, err := c.papers.GetPages(ctx, docID)
	if err != nil {
		return err
	}

	meta := map[string]interface{}{"filename": paper.Filename, "content_id": paper.ContentID}
	if err := c.vectors.UpsertDocument(ctx, docEmb, meta); err != nil {
		return err
	}
	if err := c.vectors.UpsertPages(ctx, docID, pages); err != nil {
		return err
	}
	return c.papers.SetPendingVectorSync(ctx, docID, false)
}

// readinessScore grades fleet health 0..10 from issue severities.
func readinessScore(issues []models.ConsistencyIssue) float64 {
	score := 10.0
	for _, issue := range issues {
		switch issue.Severity {
		case models.SeverityCritical:
			score -= 3
		case models.SeverityHigh:
			score -= 2
		case models.SeverityMedium:
			score -= 1
		case models.SeverityLow:
			score -= 0.5
		}
	}
	if score < 0 {
		return 0
	}
	return score
}
