package backup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperbase/internal/db"
	"paperbase/internal/models"
	"paperbase/internal/repositories"
)

// fakeVectorStore is an in-memory stand-in for the vector store.
type fakeVectorStore struct {
	repositories.VectorRepository
	docs      map[string]bool
	pageCount map[string]int
	upserts   []string
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{docs: map[string]bool{}, pageCount: map[string]int{}}
}

func (f *fakeVectorStore) ListDocumentIDs(context.Context) ([]string, error) {
	ids := []string{}
	for id := range f.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeVectorStore) CountPagesFor(_ context.Context, docID string) (int, error) {
	return f.pageCount[docID], nil
}

func (f *fakeVectorStore) UpsertDocument(_ context.Context, doc *models.DocumentEmbedding, _ map[string]interface{}) error {
	f.docs[doc.DocID] = true
	f.upserts = append(f.upserts, doc.DocID)
	return nil
}

func (f *fakeVectorStore) UpsertPages(_ context.Context, docID string, pages []models.PageEmbedding) error {
	f.pageCount[docID] = len(pages)
	return nil
}

func checkerFixture(t *testing.T) (*db.SQLiteDB, *repositories.SQLitePaperRepository, *fakeVectorStore, *Checker) {
	t.Helper()
	store, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	papers := repositories.NewSQLitePaperRepository(store)
	vectors := newFakeVectorStore()
	return store, papers, vectors, NewChecker(store, papers, vectors)
}

func addPaper(t *testing.T, papers *repositories.SQLitePaperRepository, docID, contentID string, pageCount int) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	paper := models.Paper{DocID: docID, Filename: docID + ".pdf",
		OCRQuality: models.OCRQualityGood, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, papers.CreateProvisional(context.Background(), &paper))

	pages := make([]models.PageEmbedding, pageCount)
	for i := range pages {
		pages[i] = models.PageEmbedding{DocID: docID, PageNumber: i + 1,
			PageText: "page text", VectorDim: 4, ModelName: "m", Vector: []float32{1, 0, 0, 0}}
	}
	paper.ContentID = contentID
	require.NoError(t, papers.Finalize(context.Background(), repositories.FinalizeInput{
		Paper: paper,
		Pages: pages,
		DocEmbed: models.DocumentEmbedding{DocID: docID, ModelName: "m", VectorDim: 4,
			Vector: []float32{1, 0, 0, 0}},
		Hashes: models.DuplicateHashes{DocID: docID, FileHash: "fh-" + docID,
			ContentHash: "ch-" + docID, PageCount: pageCount,
			SampleEmbeddingHash: "sh-" + docID,
			SampleStrategy:      models.SampleStrategyFirstMiddleLast, SampleVectorDim: 4},
	}))
}

func issueClasses(report *models.ConsistencyReport) []models.IssueClass {
	classes := []models.IssueClass{}
	for _, issue := range report.Issues {
		classes = append(classes, issue.Class)
	}
	return classes
}

func TestCheckCleanStores(t *testing.T) {
	_, papers, vectors, checker := checkerFixture(t)
	addPaper(t, papers, "doc-1", "cid-1", 2)
	vectors.docs["doc-1"] = true
	vectors.pageCount["doc-1"] = 2

	report, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
	assert.Equal(t, 1, report.CheckedPapers)
	assert.Equal(t, 10.0, report.ReadinessScore)
}

func TestCheckPaperWithoutVectors(t *testing.T) {
	_, papers, _, checker := checkerFixture(t)
	addPaper(t, papers, "doc-1", "cid-1", 2)

	report, err := checker.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	issue := report.Issues[0]
	assert.Equal(t, models.IssuePaperWithoutVector, issue.Class)
	assert.Equal(t, models.SeverityHigh, issue.Severity)
	assert.True(t, issue.AutoFix)
	assert.Equal(t, 8.0, report.ReadinessScore)
}

func TestCheckVectorWithoutPaper(t *testing.T) {
	_, _, vectors, checker := checkerFixture(t)
	vectors.docs["ghost"] = true

	report, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.Contains(t, issueClasses(report), models.IssueVectorWithoutPaper)
}

func TestCheckPageCountMismatch(t *testing.T) {
	_, papers, vectors, checker := checkerFixture(t)
	addPaper(t, papers, "doc-1", "cid-1", 3)
	vectors.docs["doc-1"] = true
	vectors.pageCount["doc-1"] = 2

	report, err := checker.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, models.IssuePageCountMismatch, report.Issues[0].Class)
	assert.Equal(t, models.SeverityMedium, report.Issues[0].Severity)
}

func TestCheckPendingSyncMarker(t *testing.T) {
	_, papers, vectors, checker := checkerFixture(t)
	addPaper(t, papers, "doc-1", "cid-1", 1)
	vectors.docs["doc-1"] = true
	vectors.pageCount["doc-1"] = 1
	require.NoError(t, papers.SetPendingVectorSync(context.Background(), "doc-1", true))

	report, err := checker.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, models.IssuePendingVectorSyncSet, report.Issues[0].Class)
	assert.Equal(t, models.SeverityLow, report.Issues[0].Severity)
	assert.Equal(t, 9.5, report.ReadinessScore)
}

func TestFixResyncsMissingVectors(t *testing.T) {
	_, papers, vectors, checker := checkerFixture(t)
	addPaper(t, papers, "doc-1", "cid-1", 2)

	report, err := checker.Check(context.Background())
	require.NoError(t, err)
	fixed, failed := checker.Fix(context.Background(), report)
	assert.Equal(t, 1, fixed)
	assert.Zero(t, failed)
	assert.Contains(t, vectors.upserts, "doc-1")
	assert.Equal(t, 2, vectors.pageCount["doc-1"])

	report, err = checker.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
}

func TestFixClearsPendingSync(t *testing.T) {
	_, papers, vectors, checker := checkerFixture(t)
	addPaper(t, papers, "doc-1", "cid-1", 1)
	vectors.docs["doc-1"] = true
	vectors.pageCount["doc-1"] = 1
	require.NoError(t, papers.SetPendingVectorSync(context.Background(), "doc-1", true))

	report, err := checker.Check(context.Background())
	require.NoError(t, err)
	fixed, failed := checker.Fix(context.Background(), report)
	assert.Equal(t, 1, fixed)
	assert.Zero(t, failed)

	ids, err := papers.ListPendingVectorSync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestReadinessScoreClampsAtZero(t *testing.T) {
	issues := make([]models.ConsistencyIssue, 5)
	for i := range issues {
		issues[i] = models.ConsistencyIssue{Severity: models.SeverityCritical}
	}
	assert.Equal(t, 0.0, readinessScore(issues))
}

func TestReadinessScoreWeights(t *testing.T) {
	issues := []models.ConsistencyIssue{
		{Severity: models.SeverityCritical},
		{Severity: models.SeverityHigh},
		{Severity: models.SeverityMedium},
		{Severity: models.SeverityLow},
	}
	assert.Equal(t, 3.5, readinessScore(issues))
}
