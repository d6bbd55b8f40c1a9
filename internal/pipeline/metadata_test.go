package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperbase/internal/models"
)

func TestRuleBasedExtractTitle(t *testing.T) {
	text := "x\n" +
		"Attention Is All You Need In Scholarly Ingestion Pipelines\n" +
		"some follow-up line\n"
	meta, err := ruleBasedExtract(text, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Attention Is All You Need In Scholarly Ingestion Pipelines", meta.Title)
	assert.Equal(t, models.TierRuleBased, meta.Tier)
	assert.Equal(t, "doc-1", meta.DocID)
}

func TestRuleBasedExtractSkipsShortLines(t *testing.T) {
	meta, err := ruleBasedExtract("ab\ncd\nef\n", "doc-1")
	require.NoError(t, err)
	assert.Empty(t, meta.Title)
}

func TestRuleBasedExtractDOIAndYear(t *testing.T) {
	text := "A Survey of Vector Databases\n" +
		"published 2023, doi:10.1145/3576915.3616593\n"
	meta, err := ruleBasedExtract(text, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "10.1145/3576915.3616593", meta.DOI)
	assert.Equal(t, 2023, meta.Year)
}

func TestRuleBasedExtractRejectsImplausibleYear(t *testing.T) {
	// 1503 is outside the year pattern, so no year is extracted.
	meta, err := ruleBasedExtract("On Perspective In Painting\nfirst printed 1503\n", "doc-1")
	require.NoError(t, err)
	assert.Zero(t, meta.Year)
}

func TestExtractWithoutValidResultYieldsNoMetadata(t *testing.T) {
	m := NewMetadataExtractor(nil)
	m.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }

	// No title line, no names: every tier comes up empty. That is not an
	// error, the paper simply gets no metadata record.
	meta, err := m.Extract(context.Background(), "10 22 4096\n512 1024\n", "doc-1")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestMetadataValid(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	valid := &models.Metadata{Title: "T", Authors: []string{"A"}, Year: 2020}
	assert.True(t, valid.Valid(now))

	assert.False(t, (&models.Metadata{Authors: []string{"A"}}).Valid(now))
	assert.False(t, (&models.Metadata{Title: "T"}).Valid(now))
	assert.False(t, (&models.Metadata{Title: "T", Authors: []string{"A"}, Year: 1500}).Valid(now))
	assert.False(t, (&models.Metadata{Title: "T", Authors: []string{"A"}, Year: 2030}).Valid(now))
	assert.True(t, (&models.Metadata{Title: "T", Authors: []string{"A"}, Year: 2027}).Valid(now),
		"next year is allowed for in-press papers")
}
