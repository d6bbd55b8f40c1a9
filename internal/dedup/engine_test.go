package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperbase/internal/models"
	"paperbase/internal/repositories"
)

// fakePapers overrides only the lookups the duplicate engine uses.
type fakePapers struct {
	repositories.PaperRepository
	byFileHash    map[string]*models.Paper
	byContentHash map[string]*models.Paper
	bySampleHash  map[string]*models.Paper
	byID          map[string]*models.Paper
	refs          []*models.DuplicateReference
}

func (f *fakePapers) FindByFileHash(_ context.Context, h string) (*models.Paper, error) {
	if p, ok := f.byFileHash[h]; ok {
		return p, nil
	}
	return nil, &repositories.NotFoundError{Entity: "paper", Key: h}
}

func (f *fakePapers) FindByContentHash(_ context.Context, h string, pageCount int) (*models.Paper, error) {
	if p, ok := f.byContentHash[h]; ok {
		return p, nil
	}
	return nil, &repositories.NotFoundError{Entity: "paper", Key: h}
}

func (f *fakePapers) FindBySampleHash(_ context.Context, h string) (*models.Paper, error) {
	if p, ok := f.bySampleHash[h]; ok {
		return p, nil
	}
	return nil, &repositories.NotFoundError{Entity: "paper", Key: h}
}

func (f *fakePapers) GetByID(_ context.Context, id string) (*models.Paper, error) {
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, &repositories.NotFoundError{Entity: "paper", Key: id}
}

func (f *fakePapers) AddDuplicateRef(_ context.Context, ref *models.DuplicateReference) error {
	f.refs = append(f.refs, ref)
	return nil
}

type fakeVectors struct {
	repositories.VectorRepository
	hits []repositories.SimilarDocument
}

func (f *fakeVectors) QuerySimilar(_ context.Context, _ []float32, _ int) ([]repositories.SimilarDocument, error) {
	return f.hits, nil
}

func TestCheckFileHash(t *testing.T) {
	papers := &fakePapers{byFileHash: map[string]*models.Paper{
		"abc": {DocID: "doc-1"},
	}}
	e := NewEngine(papers, &fakeVectors{}, 0.95)

	match, err := e.CheckFileHash(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 0, match.Level)
	assert.Equal(t, "doc-1", match.DocID)
	assert.Equal(t, 1.0, match.Similarity)

	match, err = e.CheckFileHash(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestCheckContentHash(t *testing.T) {
	papers := &fakePapers{byContentHash: map[string]*models.Paper{
		"chash": {DocID: "doc-2"},
	}}
	e := NewEngine(papers, &fakeVectors{}, 0.95)

	match, err := e.CheckContentHash(context.Background(), "chash", 12)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 1, match.Level)
	assert.Equal(t, "doc-2", match.DocID)
}

func TestCheckSampleHash(t *testing.T) {
	papers := &fakePapers{bySampleHash: map[string]*models.Paper{
		"shash": {DocID: "doc-3"},
	}}
	e := NewEngine(papers, &fakeVectors{}, 0.95)

	match, err := e.CheckSampleHash(context.Background(), "shash")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 2, match.Level)
}

func TestCheckSimilarityThreshold(t *testing.T) {
	papers := &fakePapers{byID: map[string]*models.Paper{
		"near": {DocID: "near"},
	}}
	vectors := &fakeVectors{hits: []repositories.SimilarDocument{
		{DocID: "near", Similarity: 0.90},
	}}
	e := NewEngine(papers, vectors, 0.95)

	match, err := e.CheckSimilarity(context.Background(), []float32{1, 0})
	require.NoError(t, err)
	assert.Nil(t, match, "below the threshold is not a duplicate")
}

func TestCheckSimilarityThresholdBoundary(t *testing.T) {
	papers := &fakePapers{byID: map[string]*models.Paper{
		"near": {DocID: "near"},
	}}
	e := NewEngine(papers, nil, 0.95)

	// Exactly at the threshold counts as a duplicate.
	e.vectors = &fakeVectors{hits: []repositories.SimilarDocument{
		{DocID: "near", Similarity: 0.9500},
	}}
	match, err := e.CheckSimilarity(context.Background(), []float32{1, 0})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 0.9500, match.Similarity)

	// A hair under does not.
	e.vectors = &fakeVectors{hits: []repositories.SimilarDocument{
		{DocID: "near", Similarity: 0.9499},
	}}
	match, err = e.CheckSimilarity(context.Background(), []float32{1, 0})
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestCheckSimilarityPicksBestHit(t *testing.T) {
	papers := &fakePapers{byID: map[string]*models.Paper{
		"a": {DocID: "a", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		"b": {DocID: "b", CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}}
	vectors := &fakeVectors{hits: []repositories.SimilarDocument{
		{DocID: "a", Similarity: 0.96},
		{DocID: "b", Similarity: 0.99},
	}}
	e := NewEngine(papers, vectors, 0.95)

	match, err := e.CheckSimilarity(context.Background(), []float32{1, 0})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 3, match.Level)
	assert.Equal(t, "b", match.DocID)
	assert.Equal(t, 0.99, match.Similarity)
}

func TestCheckSimilarityTiesBreakToOldest(t *testing.T) {
	papers := &fakePapers{byID: map[string]*models.Paper{
		"young": {DocID: "young", CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)},
		"old":   {DocID: "old", CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
	}}
	vectors := &fakeVectors{hits: []repositories.SimilarDocument{
		{DocID: "young", Similarity: 0.97},
		{DocID: "old", Similarity: 0.97},
	}}
	e := NewEngine(papers, vectors, 0.95)

	match, err := e.CheckSimilarity(context.Background(), []float32{1, 0})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "old", match.DocID)
}

func TestCheckSimilaritySkipsOrphanVectors(t *testing.T) {
	papers := &fakePapers{byID: map[string]*models.Paper{}}
	vectors := &fakeVectors{hits: []repositories.SimilarDocument{
		{DocID: "ghost", Similarity: 0.99},
	}}
	e := NewEngine(papers, vectors, 0.95)

	match, err := e.CheckSimilarity(context.Background(), []float32{1, 0})
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestRecordReference(t *testing.T) {
	papers := &fakePapers{}
	e := NewEngine(papers, &fakeVectors{}, 0.95)

	err := e.RecordReference(context.Background(), &Match{Level: 1, DocID: "doc-1", Similarity: 1},
		"fhash", "copy.pdf")
	require.NoError(t, err)
	require.Len(t, papers.refs, 1)
	assert.Equal(t, "doc-1", papers.refs[0].DocID)
	assert.Equal(t, 1, papers.refs[0].Level)
	assert.Equal(t, "copy.pdf", papers.refs[0].Filename)
}
