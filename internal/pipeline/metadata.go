package pipeline

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jdkato/prose/v2"
	"github.com/rs/zerolog/log"

	"paperbase/internal/adapters"
	"paperbase/internal/models"
)

// MetadataExtractor runs the three-tier bibliographic cascade: structured
// LLM extraction, then plain-prompt LLM extraction, then a local rule-based
// pass. The first tier whose result passes validation wins; if all three
// fail the paper simply has no metadata.
type MetadataExtractor struct {
	llm *adapters.LLMClient
	now func() time.Time
}

// NewMetadataExtractor creates the cascade.
func NewMetadataExtractor(llm *adapters.LLMClient) *MetadataExtractor {
	return &MetadataExtractor{llm: llm, now: time.Now}
}

// Extract runs the cascade over the leading text of a document.
func (m *MetadataExtractor) Extract(ctx context.Context, text, docID string) (*models.Metadata, error) {
	now := m.now()

	if m.llm != nil {
		if meta, err := m.llm.ExtractStructured(ctx, text, docID); err == nil && meta.Valid(now) {
			return meta, nil
		} else if err != nil {
			log.Debug().Err(err).Str("doc_id", docID).Msg("structured extraction failed, trying simple")
		}

		if meta, err := m.llm.ExtractSimple(ctx, text, docID); err == nil && meta.Valid(now) {
			return meta, nil
		} else if err != nil {
			log.Debug().Err(err).Str("doc_id", docID).Msg("simple extraction failed, trying rule-based")
		}
	}

	meta, err := ruleBasedExtract(text, docID)
	if err != nil {
		return nil, err
	}
	if !meta.Valid(now) {
		// Exhausting the cascade is not a failure: the paper just has no
		// metadata record.
		log.Debug().Str("doc_id", docID).Msg("no tier produced valid metadata")
		return nil, nil
	}
	return meta, nil
}

var (
	doiPattern  = regexp.MustCompile(`10\.\d{4,9}/[-._;()/:a-zA-Z0-9]+`)
	yearPattern = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)
)

// ruleBasedExtract is the last-resort tier. The title is the first
// substantial line; authors come from named-entity recognition over the
// opening text; year and DOI are pattern matches.
func ruleBasedExtract(text, docID string) (*models.Metadata, error) {
	meta := &models.Metadata{DocID: docID, Tier: models.TierRuleBased}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) >= 10 && len(line) <= 300 {
			meta.Title = line
			break
		}
	}

	head := text
	if len(head) > 2000 {
		head = head[:2000]
	}
	doc, err := prose.NewDocument(head)
	if err != nil {
		return nil, models.NewError(models.KindInternal, "metadata", err, "NER pass failed")
	}
	seen := map[string]bool{}
	for _, ent := range doc.Entities() {
		if ent.Label != "PERSON" || seen[ent.Text] {
			continue
		}
		seen[ent.Text] = true
		meta.Authors = append(meta.Authors, ent.Text)
		if len(meta.Authors) >= 12 {
			break
		}
	}

	if m := doiPattern.FindString(text); m != "" {
		meta.DOI = m
	}
	if m := yearPattern.FindString(head); m != "" {
		meta.Year, _ = strconv.Atoi(m)
	}
	return meta, nil
}
