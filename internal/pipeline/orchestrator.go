package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"paperbase/internal/adapters"
	"paperbase/internal/config"
	"paperbase/internal/dedup"
	"paperbase/internal/embedding"
	"paperbase/internal/filesec"
	"paperbase/internal/models"
	"paperbase/internal/pdf"
	"paperbase/internal/repositories"
)

// Stage names in execution order.
const (
	StageValidate = "validate"
	StageExtract  = "extract"
	StageQuality  = "quality"
	StageEmbed    = "embed"
	StageLayout   = "layout"
	StageMetadata = "metadata"
	StageFinalize = "finalize"
)

// stageDef fixes a stage's progress weight and whether its failure kills
// the run. Weights sum to 100.
type stageDef struct {
	name        string
	weight      int
	mustSucceed bool
}

// Stages is the pipeline definition. Optional stages degrade gracefully:
// their failure is recorded on the job and processing continues.
var Stages = []stageDef{
	{StageValidate, 5, true},
	{StageExtract, 20, true},
	{StageQuality, 10, false},
	{StageEmbed, 25, true},
	{StageLayout, 15, false},
	{StageMetadata, 15, false},
	{StageFinalize, 10, true},
}

// Progress is called as stages start and complete.
type Progress func(step string, percent int)

// Result is the outcome of a completed pipeline run. Exactly one of DocID
// or Duplicate is meaningful: a duplicate run stores nothing new.
type Result struct {
	DocID          string
	Duplicate      *dedup.Match
	StepsCompleted []models.StepResult
	StepsFailed    []models.StepFailure
}

// Orchestrator drives a single upload through the seven stages.
type Orchestrator struct {
	validator *filesec.Validator
	extractor *pdf.Extractor
	ocr       *adapters.OCRClient
	quality   *adapters.QualityClient
	layout    *adapters.LayoutClient
	metadata  *MetadataExtractor
	embedder  embedding.Embedder
	dedup     *dedup.Engine
	papers    repositories.PaperRepository
	vectors   repositories.VectorRepository
	storage   config.StorageConfig
	now       func() time.Time
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Validator *filesec.Validator
	Extractor *pdf.Extractor
	OCR       *adapters.OCRClient
	Quality   *adapters.QualityClient
	Layout    *adapters.LayoutClient
	Metadata  *MetadataExtractor
	Embedder  embedding.Embedder
	Dedup     *dedup.Engine
	Papers    repositories.PaperRepository
	Vectors   repositories.VectorRepository
	Storage   config.StorageConfig
}

// NewOrchestrator creates a pipeline orchestrator.
func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{
		validator: d.Validator,
		extractor: d.Extractor,
		ocr:       d.OCR,
		quality:   d.Quality,
		layout:    d.Layout,
		metadata:  d.Metadata,
		embedder:  d.Embedder,
		dedup:     d.Dedup,
		papers:    d.Papers,
		vectors:   d.Vectors,
		storage:   d.Storage,
		now:       time.Now,
	}
}

// run carries the working state of one pipeline execution.
type run struct {
	job              *models.ProcessingJob
	result           *Result
	progress         Progress
	percent          int
	fileHash         string
	fileBytes        []byte
	extraction       *pdf.Extraction
	pageTexts        []string
	script           string
	ocrRedone        bool
	ocrQuality       models.OCRQuality
	docID            string
	contentHashCache string
	pages            []models.PageEmbedding
	meanVector       []float32
	contentID        string
	sampleHash       string
	layoutRes        *models.LayoutAnalysis
	metaRes          *models.Metadata
	notes            []string
}

// Process runs the full pipeline for a job. A nil error with a Duplicate in
// the result means the upload resolved to an existing paper.
func (o *Orchestrator) Process(ctx context.Context, job *models.ProcessingJob, progress Progress) (*Result, error) {
	if progress == nil {
		progress = func(string, int) {}
	}
	r := &run{
		job:        job,
		result:     &Result{StepsCompleted: []models.StepResult{}, StepsFailed: []models.StepFailure{}},
		progress:   progress,
		ocrQuality: models.OCRQualityUnknown,
	}

	handlers := map[string]func(context.Context, *run) error{
		StageValidate: o.stageValidate,
		StageExtract:  o.stageExtract,
		StageQuality:  o.stageQuality,
		StageEmbed:    o.stageEmbed,
		StageLayout:   o.stageLayout,
		StageMetadata: o.stageMetadata,
		StageFinalize: o.stageFinalize,
	}

	for _, stage := range Stages {
		if err := ctx.Err(); err != nil {
			o.cleanup(r)
			return nil, models.NewError(models.KindCancelled, stage.name, err, "pipeline cancelled")
		}

		progress(stage.name, r.percent)
		started := o.now()
		err := handlers[stage.name](ctx, r)
		elapsed := o.now().Sub(started).Seconds()

		if err != nil {
			kind := models.KindOf(err)
			if stage.mustSucceed || kind == models.KindInvalidInput || kind == models.KindInternal {
				o.cleanup(r)
				return nil, err
			}
			log.Warn().Err(err).Str("job_id", job.JobID).Str("stage", stage.name).
				Msg("optional stage failed, continuing")
			r.result.StepsFailed = append(r.result.StepsFailed,
				models.StepFailure{Name: stage.name, Reason: err.Error()})
		} else {
			r.result.StepsCompleted = append(r.result.StepsCompleted,
				models.StepResult{Name: stage.name, DurationS: elapsed})
		}

		r.percent += stage.weight
		progress(stage.name, r.percent)

		if r.result.Duplicate != nil {
			o.cleanup(r)
			return r.result, nil
		}
	}

	o.removeUpload(r)
	r.result.DocID = r.docID
	return r.result, nil
}

// stageValidate runs file security and structural checks, the Level-0
// duplicate lookup, and creates the provisional paper row.
func (o *Orchestrator) stageValidate(ctx context.Context, r *run) error {
	if err := o.validator.Validate(r.job.UploadPath); err != nil {
		return err
	}
	if err := o.extractor.Validate(r.job.UploadPath); err != nil {
		return err
	}

	data, err := os.ReadFile(r.job.UploadPath)
	if err != nil {
		return models.NewError(models.KindInternal, StageValidate, err, "read upload")
	}
	r.fileBytes = data
	r.fileHash = dedup.FileHash(data)

	match, err := o.dedup.CheckFileHash(ctx, r.fileHash)
	if err != nil {
		return err
	}
	if match != nil {
		return o.resolveDuplicate(ctx, r, match)
	}

	now := o.now().UTC()
	r.docID = uuid.New().String()
	paper := &models.Paper{
		DocID:      r.docID,
		Filename:   r.job.Filename,
		OCRQuality: models.OCRQualityUnknown,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return o.papers.CreateProvisional(ctx, paper)
}

// stageExtract pulls the text layer, regenerates it through OCR when too
// thin, and runs the Level-1 duplicate lookup.
func (o *Orchestrator) stageExtract(ctx context.Context, r *run) error {
	ex, err := o.extractor.Extract(r.job.UploadPath)
	if err != nil {
		return err
	}
	r.extraction = ex
	r.pageTexts = ex.PageTexts

	if pdf.NeedsOCR(ex) {
		if o.ocr == nil {
			return models.Errorf(models.KindInvalidInput, StageExtract,
				"text layer unusable and no OCR engine configured")
		}
		lang := o.chooseOCRScript(ctx, r)
		pages, err := o.ocr.Regenerate(ctx, r.job.UploadPath, lang)
		if err != nil {
			return err
		}
		if len(pages) != ex.PageCount {
			return models.Errorf(models.KindDataIntegrity, StageExtract,
				"OCR produced %d pages, document has %d", len(pages), ex.PageCount)
		}
		r.pageTexts = pages
		r.ocrRedone = true
		r.script = lang
		r.notes = append(r.notes, "text layer regenerated via OCR, language "+lang)
	} else {
		r.script = DetectScript(strings.Join(firstN(r.pageTexts, 3), "\n"))
	}
	if r.script != "latin" && r.script != "unknown" {
		r.notes = append(r.notes, "dominant script: "+r.script)
	}

	contentHash := dedup.ContentHash(pdf.MetadataString(ex.Metadata), r.pageTexts)
	match, err := o.dedup.CheckContentHash(ctx, contentHash, ex.PageCount)
	if err != nil {
		return err
	}
	if match != nil {
		return o.resolveDuplicate(ctx, r, match)
	}
	r.job.PaperID = r.docID
	r.contentHashCache = contentHash
	return nil
}

// ocrScripts is the fixed set of writing systems the OCR engine accepts.
var ocrScripts = map[string]bool{
	"latin": true, "cyrillic": true, "greek": true, "arabic": true,
	"hebrew": true, "han": true, "japanese": true, "hangul": true,
	"devanagari": true, "thai": true,
}

// chooseOCRScript picks the OCR language from what survives of the text
// layer. When the runner-up is within three quarters of the leader, both get
// a first-page trial run and the quality scorer arbitrates; the leader wins
// any trial that cannot be scored.
func (o *Orchestrator) chooseOCRScript(ctx context.Context, r *run) string {
	var cands []ScriptCount
	for _, c := range ScriptCandidates(strings.Join(firstN(r.pageTexts, 3), "\n")) {
		if ocrScripts[c.Script] {
			cands = append(cands, c)
		}
	}
	if len(cands) == 0 {
		return "latin"
	}
	lead := cands[0]
	if len(cands) == 1 || o.quality == nil || cands[1].Count*4 < lead.Count*3 {
		return lead.Script
	}

	best, bestRank := lead.Script, -1
	for _, cand := range cands[:2] {
		page, err := o.ocr.RegenerateFirstPage(ctx, r.job.UploadPath, cand.Script)
		if err != nil {
			log.Debug().Err(err).Str("script", cand.Script).Msg("language trial run failed")
			continue
		}
		q, err := o.quality.Score(ctx, []string{page})
		if err != nil {
			log.Debug().Err(err).Str("script", cand.Script).Msg("language trial scoring failed")
			continue
		}
		if rank := q.Rank(); rank > bestRank {
			best, bestRank = cand.Script, rank
		}
	}
	return best
}

// stageQuality grades the text layer. Failure leaves the grade unknown.
func (o *Orchestrator) stageQuality(ctx context.Context, r *run) error {
	if o.quality == nil {
		return models.Errorf(models.KindServiceUnavailable, StageQuality, "no quality scorer configured")
	}
	q, err := o.quality.Score(ctx, firstN(r.pageTexts, 5))
	if err != nil {
		return err
	}
	r.ocrQuality = q
	return nil
}

// stageEmbed produces page vectors, the document mean, the content
// identity, and runs the Level-2 and Level-3 duplicate lookups.
func (o *Orchestrator) stageEmbed(ctx context.Context, r *run) error {
	vectors, err := o.embedder.EmbedPages(ctx, r.pageTexts)
	if err != nil {
		return err
	}
	if len(vectors) == 0 {
		return models.Errorf(models.KindDataIntegrity, StageEmbed, "no vectors produced")
	}

	mean, err := embedding.MeanVector(vectors)
	if err != nil {
		return models.NewError(models.KindDataIntegrity, StageEmbed, err, "mean vector")
	}
	r.meanVector = mean
	r.contentID = embedding.ContentID(mean)

	sample := make([][]float32, 0, 3)
	for _, idx := range embedding.SampleIndexes(len(vectors)) {
		sample = append(sample, vectors[idx])
	}
	r.sampleHash = embedding.SampleHash(sample)

	r.pages = make([]models.PageEmbedding, len(vectors))
	for i, v := range vectors {
		r.pages[i] = models.PageEmbedding{
			DocID:      r.docID,
			PageNumber: i + 1,
			PageText:   r.pageTexts[i],
			VectorDim:  o.embedder.Dim(),
			ModelName:  o.embedder.ModelName(),
			Vector:     v,
		}
	}

	match, err := o.dedup.CheckSampleHash(ctx, r.sampleHash)
	if err != nil {
		return err
	}
	if match == nil {
		match, err = o.dedup.CheckSimilarity(ctx, mean)
		if err != nil {
			return err
		}
	}
	if match != nil {
		return o.resolveDuplicate(ctx, r, match)
	}
	return nil
}

// stageLayout runs layout analysis. Failure means no layout record.
func (o *Orchestrator) stageLayout(ctx context.Context, r *run) error {
	if o.layout == nil {
		return models.Errorf(models.KindServiceUnavailable, StageLayout, "no layout analyzer configured")
	}
	res, err := o.layout.Analyze(ctx, r.job.UploadPath, r.docID)
	if err != nil {
		return err
	}
	r.layoutRes = res
	return nil
}

// stageMetadata runs the bibliographic cascade. Failure means no metadata,
// and so does an exhausted cascade; only the latter counts as stage success.
func (o *Orchestrator) stageMetadata(ctx context.Context, r *run) error {
	if o.metadata == nil {
		return models.Errorf(models.KindServiceUnavailable, StageMetadata, "no metadata extractor configured")
	}
	meta, err := o.metadata.Extract(ctx, strings.Join(firstN(r.pageTexts, 3), "\n"), r.docID)
	if err != nil {
		return err
	}
	if meta == nil {
		r.notes = append(r.notes, "metadata cascade exhausted")
		return nil
	}
	r.metaRes = meta
	return nil
}

// stageFinalize commits everything: the PDF is copied to its permanent
// location, the relational write is one transaction, and vector writes
// follow. A vector write failure marks the paper for later sync instead of
// failing the job.
func (o *Orchestrator) stageFinalize(ctx context.Context, r *run) error {
	storedPath, err := o.keepOriginal(r)
	if err != nil {
		return models.NewError(models.KindInternal, StageFinalize, err, "keep original file")
	}

	// OriginalFilePath is only set when OCR rewrote the text layer; the
	// stored copy then preserves the pre-OCR original.
	originalPath := ""
	if r.ocrRedone {
		originalPath = storedPath
	}

	now := o.now().UTC()
	in := repositories.FinalizeInput{
		Paper: models.Paper{
			DocID:            r.docID,
			ContentID:        r.contentID,
			Filename:         r.job.Filename,
			OCRQuality:       r.ocrQuality,
			OCRRegenerated:   r.ocrRedone,
			OriginalFilePath: originalPath,
			ProcessingNotes:  strings.Join(r.notes, "; "),
			UpdatedAt:        now,
		},
		Pages: r.pages,
		DocEmbed: models.DocumentEmbedding{
			DocID:     r.docID,
			ModelName: o.embedder.ModelName(),
			VectorDim: o.embedder.Dim(),
			Vector:    r.meanVector,
		},
		Metadata: r.metaRes,
		Layout:   r.layoutRes,
		Hashes: models.DuplicateHashes{
			DocID:               r.docID,
			FileHash:            r.fileHash,
			ContentHash:         r.contentHashCache,
			PageCount:           r.extraction.PageCount,
			SampleEmbeddingHash: r.sampleHash,
			SampleStrategy:      models.SampleStrategyFirstMiddleLast,
			SampleVectorDim:     o.embedder.Dim(),
		},
	}

	if err := o.papers.Finalize(ctx, in); err != nil {
		o.removeStored(storedPath)
		if cc, ok := repositories.AsContentConflict(err); ok {
			// A concurrent run of identical content won the unique index.
			return o.resolveDuplicate(ctx, r, &dedup.Match{Level: 3, DocID: cc.ExistingDocID, Similarity: 1})
		}
		return err
	}

	if _, err := o.extractor.RenderFirstPage(r.job.UploadPath, o.storage.ImageDir, r.docID); err != nil {
		log.Warn().Err(err).Str("doc_id", r.docID).Msg("thumbnail render failed")
	}

	meta := map[string]interface{}{"filename": r.job.Filename, "content_id": r.contentID}
	vecErr := o.vectors.UpsertDocument(ctx, &in.DocEmbed, meta)
	if vecErr == nil {
		vecErr = o.vectors.UpsertPages(ctx, r.docID, r.pages)
	}
	if vecErr != nil {
		log.Error().Err(vecErr).Str("doc_id", r.docID).Msg("vector write failed, marking for sync")
		if err := o.papers.SetPendingVectorSync(ctx, r.docID, true); err != nil {
			return err
		}
	}
	return nil
}

// resolveDuplicate records the reference and flags the run as a duplicate.
func (o *Orchestrator) resolveDuplicate(ctx context.Context, r *run, match *dedup.Match) error {
	if err := o.dedup.RecordReference(ctx, match, r.fileHash, r.job.Filename); err != nil {
		return err
	}
	r.result.Duplicate = match
	return nil
}

// cleanup removes the provisional paper row and the upload temp file.
func (o *Orchestrator) cleanup(r *run) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if r.docID != "" {
		if err := o.papers.DeleteProvisional(ctx, r.docID); err != nil {
			log.Warn().Err(err).Str("doc_id", r.docID).Msg("provisional cleanup failed")
		}
	}
	o.removeUpload(r)
}

// removeUpload discards the temp upload. The original, when kept, has
// already been copied to its permanent location.
func (o *Orchestrator) removeUpload(r *run) {
	if r.job.UploadPath == "" {
		return
	}
	if err := os.Remove(r.job.UploadPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", r.job.UploadPath).Msg("upload cleanup failed")
	}
}

// removeStored discards a stored PDF whose paper row never committed.
func (o *Orchestrator) removeStored(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("stored pdf cleanup failed")
	}
}

func (o *Orchestrator) keepOriginal(r *run) (string, error) {
	if err := os.MkdirAll(o.storage.PDFDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(o.storage.PDFDir, r.docID+".pdf")
	src, err := os.Open(r.job.UploadPath)
	if err != nil {
		return "", err
	}
	defer src.Close()
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("copy original: %w", err)
	}
	return dest, nil
}

func firstN(pages []string, n int) []string {
	if len(pages) < n {
		n = len(pages)
	}
	return pages[:n]
}

// StageWeightsJSON exposes the stage table for the status endpoint.
func StageWeightsJSON() json.RawMessage {
	type stageView struct {
		Name        string `json:"name"`
		Weight      int    `json:"weight"`
		MustSucceed bool   `json:"must_succeed"`
	}
	views := make([]stageView, len(Stages))
	for i, s := range Stages {
		views[i] = stageView{Name: s.name, Weight: s.weight, MustSucceed: s.mustSucceed}
	}
	data, _ := json.Marshal(views)
	return data
}
