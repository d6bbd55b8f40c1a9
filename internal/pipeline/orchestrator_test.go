package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperbase/internal/adapters"
	"paperbase/internal/config"
	"paperbase/internal/dedup"
	"paperbase/internal/embedding"
	"paperbase/internal/models"
	"paperbase/internal/pdf"
	"paperbase/internal/repositories"
)

func TestStageWeightsSumToHundred(t *testing.T) {
	total := 0
	for _, s := range Stages {
		total += s.weight
	}
	assert.Equal(t, 100, total)
}

func TestStageOrderAndCriticality(t *testing.T) {
	names := make([]string, len(Stages))
	must := map[string]bool{}
	for i, s := range Stages {
		names[i] = s.name
		must[s.name] = s.mustSucceed
	}
	assert.Equal(t, []string{StageValidate, StageExtract, StageQuality,
		StageEmbed, StageLayout, StageMetadata, StageFinalize}, names)

	assert.True(t, must[StageValidate])
	assert.True(t, must[StageExtract])
	assert.True(t, must[StageEmbed])
	assert.True(t, must[StageFinalize])
	assert.False(t, must[StageQuality])
	assert.False(t, must[StageLayout])
	assert.False(t, must[StageMetadata])
}

func TestStageWeightsJSON(t *testing.T) {
	var views []struct {
		Name        string `json:"name"`
		Weight      int    `json:"weight"`
		MustSucceed bool   `json:"must_succeed"`
	}
	require.NoError(t, json.Unmarshal(StageWeightsJSON(), &views))
	require.Len(t, views, 7)
	assert.Equal(t, "embed", views[3].Name)
	assert.Equal(t, 25, views[3].Weight)
	assert.True(t, views[3].MustSucceed)
}

// Unconfigured optional adapters must fail with a skippable kind, so the
// run degrades instead of dying.
func TestUnconfiguredOptionalStagesAreSkippable(t *testing.T) {
	o := &Orchestrator{}
	r := &run{job: &models.ProcessingJob{}, result: &Result{}}
	ctx := context.Background()

	for _, stage := range []func(context.Context, *run) error{
		o.stageQuality, o.stageLayout, o.stageMetadata,
	} {
		err := stage(ctx, r)
		require.Error(t, err)
		assert.Equal(t, models.KindServiceUnavailable, models.KindOf(err))
	}
}

type refRecorder struct {
	repositories.PaperRepository
	refs []models.DuplicateReference
}

func (r *refRecorder) AddDuplicateRef(_ context.Context, ref *models.DuplicateReference) error {
	r.refs = append(r.refs, *ref)
	return nil
}

func TestResolveDuplicateRecordsReference(t *testing.T) {
	papers := &refRecorder{}
	o := &Orchestrator{dedup: dedup.NewEngine(papers, nil, 0.95)}
	r := &run{
		job:      &models.ProcessingJob{Filename: "copy.pdf"},
		result:   &Result{},
		fileHash: "abc123",
	}

	match := &dedup.Match{Level: 2, DocID: "doc-1", Similarity: 1}
	require.NoError(t, o.resolveDuplicate(context.Background(), r, match))

	assert.Equal(t, match, r.result.Duplicate)
	require.Len(t, papers.refs, 1)
	assert.Equal(t, "doc-1", papers.refs[0].DocID)
	assert.Equal(t, "abc123", papers.refs[0].FileHash)
	assert.Equal(t, "copy.pdf", papers.refs[0].Filename)
	assert.Equal(t, 2, papers.refs[0].Level)
}

type conflictPapers struct {
	repositories.PaperRepository
	refs []models.DuplicateReference
}

func (c *conflictPapers) Finalize(_ context.Context, _ repositories.FinalizeInput) error {
	return &repositories.ContentConflictError{ContentID: "cid", ExistingDocID: "winner"}
}

func (c *conflictPapers) AddDuplicateRef(_ context.Context, ref *models.DuplicateReference) error {
	c.refs = append(c.refs, *ref)
	return nil
}

// A finalize-time content conflict resolves to the existing paper, and the
// copy already placed in the pdf dir must not stay behind.
func TestFinalizeConflictDiscardsStoredCopy(t *testing.T) {
	papers := &conflictPapers{}
	pdfDir := t.TempDir()
	o := &Orchestrator{
		papers:   papers,
		dedup:    dedup.NewEngine(papers, nil, 0.95),
		embedder: embedding.NewLocalEmbedder("m", 4),
		storage:  config.StorageConfig{PDFDir: pdfDir},
		now:      time.Now,
	}

	upload := filepath.Join(t.TempDir(), "upload.pdf")
	require.NoError(t, os.WriteFile(upload, []byte("%PDF-1.4"), 0o644))

	r := &run{
		job:        &models.ProcessingJob{Filename: "copy.pdf", UploadPath: upload},
		result:     &Result{},
		docID:      "new-doc",
		fileHash:   "fh",
		extraction: &pdf.Extraction{PageCount: 1},
		pageTexts:  []string{"page one"},
		meanVector: []float32{1, 0, 0, 0},
		ocrQuality: models.OCRQualityUnknown,
	}

	require.NoError(t, o.stageFinalize(context.Background(), r))
	require.NotNil(t, r.result.Duplicate)
	assert.Equal(t, "winner", r.result.Duplicate.DocID)
	assert.NoFileExists(t, filepath.Join(pdfDir, "new-doc.pdf"))
	require.Len(t, papers.refs, 1)
}

type capturePapers struct {
	repositories.PaperRepository
	finalized []repositories.FinalizeInput
}

func (c *capturePapers) Finalize(_ context.Context, in repositories.FinalizeInput) error {
	c.finalized = append(c.finalized, in)
	return nil
}

type noopVectors struct {
	repositories.VectorRepository
}

func (noopVectors) UpsertDocument(_ context.Context, _ *models.DocumentEmbedding, _ map[string]interface{}) error {
	return nil
}

func (noopVectors) UpsertPages(_ context.Context, _ string, _ []models.PageEmbedding) error {
	return nil
}

// OriginalFilePath is only recorded when OCR rewrote the text layer; the
// stored copy then preserves the pre-OCR file.
func TestFinalizeRecordsOriginalOnlyAfterOCR(t *testing.T) {
	for _, ocrRedone := range []bool{false, true} {
		papers := &capturePapers{}
		pdfDir := t.TempDir()
		o := &Orchestrator{
			papers:    papers,
			extractor: pdf.NewExtractor(),
			vectors:   noopVectors{},
			embedder:  embedding.NewLocalEmbedder("m", 4),
			storage:   config.StorageConfig{PDFDir: pdfDir},
			now:       time.Now,
		}

		upload := filepath.Join(t.TempDir(), "upload.pdf")
		require.NoError(t, os.WriteFile(upload, []byte("%PDF-1.4"), 0o644))

		r := &run{
			job:        &models.ProcessingJob{Filename: "a.pdf", UploadPath: upload},
			result:     &Result{},
			docID:      "doc-1",
			extraction: &pdf.Extraction{PageCount: 1},
			pageTexts:  []string{"page one"},
			meanVector: []float32{1, 0, 0, 0},
			ocrQuality: models.OCRQualityUnknown,
			ocrRedone:  ocrRedone,
		}

		require.NoError(t, o.stageFinalize(context.Background(), r))
		require.Len(t, papers.finalized, 1)
		got := papers.finalized[0].Paper
		assert.Equal(t, ocrRedone, got.OCRRegenerated)
		if ocrRedone {
			assert.Equal(t, filepath.Join(pdfDir, "doc-1.pdf"), got.OriginalFilePath)
		} else {
			assert.Empty(t, got.OriginalFilePath)
		}
		assert.FileExists(t, filepath.Join(pdfDir, "doc-1.pdf"))
	}
}

func TestChooseOCRScriptUnambiguousLeadSkipsTrials(t *testing.T) {
	var ocrCalls int
	ocrSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ocrCalls++
		json.NewEncoder(w).Encode(map[string][]string{"pages": {"x"}})
	}))
	defer ocrSrv.Close()

	o := &Orchestrator{
		ocr:     adapters.NewOCRClient(config.AdapterConfig{URL: ocrSrv.URL}, config.RetryConfig{}),
		quality: adapters.NewQualityClient(config.AdapterConfig{URL: ocrSrv.URL}, config.RetryConfig{}, nil),
	}
	r := &run{job: &models.ProcessingJob{}, pageTexts: []string{"mostly latin text with один word"}}

	assert.Equal(t, "latin", o.chooseOCRScript(context.Background(), r))
	assert.Zero(t, ocrCalls, "a clear majority needs no trial runs")
}

// When two scripts are neck and neck, each gets a first-page trial and the
// quality scorer's grade decides.
func TestChooseOCRScriptQualityTiebreak(t *testing.T) {
	upload := filepath.Join(t.TempDir(), "upload.pdf")
	require.NoError(t, os.WriteFile(upload, []byte("%PDF-1.4"), 0o644))

	var trialLangs []string
	ocrSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		lang := req.URL.Query().Get("lang")
		trialLangs = append(trialLangs, lang)
		page := "shapes that look like words"
		if lang == "cyrillic" {
			page = "чистый разборчивый текст"
		}
		json.NewEncoder(w).Encode(map[string][]string{"pages": {page}})
	}))
	defer ocrSrv.Close()

	qualitySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			Pages []string `json:"pages"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&in))
		grade := "poor"
		if len(in.Pages) == 1 && strings.Contains(in.Pages[0], "текст") {
			grade = "good"
		}
		json.NewEncoder(w).Encode(map[string]string{"quality": grade})
	}))
	defer qualitySrv.Close()

	o := &Orchestrator{
		ocr:     adapters.NewOCRClient(config.AdapterConfig{URL: ocrSrv.URL}, config.RetryConfig{}),
		quality: adapters.NewQualityClient(config.AdapterConfig{URL: qualitySrv.URL}, config.RetryConfig{}, nil),
	}
	// Four letters each: a dead heat the scorer must break.
	r := &run{job: &models.ProcessingJob{UploadPath: upload}, pageTexts: []string{"abcd один"}}

	assert.Equal(t, "cyrillic", o.chooseOCRScript(context.Background(), r))
	assert.ElementsMatch(t, []string{"cyrillic", "latin"}, trialLangs)
}

func TestChooseOCRScriptDefaultsToLatin(t *testing.T) {
	o := &Orchestrator{}
	r := &run{job: &models.ProcessingJob{}, pageTexts: []string{"1234 !!!"}}
	assert.Equal(t, "latin", o.chooseOCRScript(context.Background(), r))
}

func TestFirstN(t *testing.T) {
	pages := []string{"a", "b", "c"}
	assert.Equal(t, []string{"a", "b"}, firstN(pages, 2))
	assert.Equal(t, pages, firstN(pages, 5))
	assert.Empty(t, firstN(nil, 3))
}
