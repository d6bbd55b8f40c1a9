package metrics

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperbase/internal/models"
)

func TestTrackerStageAggregates(t *testing.T) {
	tr := NewTracker(t.TempDir())

	tr.StageObserved("text_extraction", true, 2*time.Second)
	tr.StageObserved("text_extraction", true, 4*time.Second)
	tr.StageObserved("text_extraction", false, 0)

	snap := tr.Snapshot()
	require.Len(t, snap.Stages, 1)
	stage := snap.Stages[0]
	assert.Equal(t, "text_extraction", stage.Stage)
	assert.Equal(t, int64(3), stage.Runs)
	assert.InDelta(t, 2.0/3.0, stage.SuccessRate, 1e-9)
	assert.InDelta(t, 2.0, stage.AvgSeconds, 1e-9)
}

func TestTrackerJobAndErrorCounts(t *testing.T) {
	tr := NewTracker(t.TempDir())

	tr.JobAccepted(models.PriorityNormal)
	tr.JobAccepted(models.PriorityUrgent)
	tr.JobFinished(models.JobStatusCompleted, time.Second)
	tr.JobFinished(models.JobStatusFailed, 2*time.Second)
	tr.ErrorObserved(models.KindTransientTransport)
	tr.ErrorObserved(models.KindTransientTransport)

	snap := tr.Snapshot()
	assert.Equal(t, int64(2), snap.Accepted)
	assert.Equal(t, int64(1), snap.JobCounts[models.JobStatusCompleted])
	assert.Equal(t, int64(1), snap.JobCounts[models.JobStatusFailed])
	assert.Equal(t, int64(2), snap.ErrorCounts[models.KindTransientTransport])
}

func TestTrackerSampleRing(t *testing.T) {
	tr := NewTracker(t.TempDir())

	tr.sample()
	tr.sample()

	snap := tr.Snapshot()
	require.NotNil(t, snap.LatestSample)
	assert.Positive(t, snap.LatestSample.Goroutines)
	assert.NotZero(t, snap.LatestSample.HeapBytes)
	assert.False(t, snap.LatestSample.At.IsZero())
}

func TestTrackerSampleCPU(t *testing.T) {
	tr := NewTracker(t.TempDir())

	tr.sample()
	first := *tr.Snapshot().LatestSample
	assert.Zero(t, first.CPUPercent, "no baseline before the first sample")

	// Burn a little CPU so the delta is measurable.
	x := 0
	for i := 0; i < 1_000_000; i++ {
		x += i % 7
	}
	_ = x
	time.Sleep(10 * time.Millisecond)

	tr.sample()
	second := *tr.Snapshot().LatestSample
	assert.GreaterOrEqual(t, second.CPUPercent, 0.0)
}

func TestExportJSON(t *testing.T) {
	tr := NewTracker(t.TempDir())
	tr.StageObserved("validation", true, time.Second)

	var buf bytes.Buffer
	require.NoError(t, tr.ExportJSON(&buf))

	var snap Snapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &snap))
	require.Len(t, snap.Stages, 1)
	assert.Equal(t, "validation", snap.Stages[0].Stage)
}

func TestExportCSV(t *testing.T) {
	tr := NewTracker(t.TempDir())
	tr.sample()
	tr.sample()
	tr.sample()

	var buf bytes.Buffer
	require.NoError(t, tr.ExportCSV(&buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4, "header plus three samples")
	assert.Equal(t, []string{"at", "cpu_percent", "heap_bytes", "sys_bytes", "goroutines", "disk_free_bytes"},
		records[0])

	// Oldest first: timestamps never decrease.
	prev, err := time.Parse(time.RFC3339, records[1][0])
	require.NoError(t, err)
	for _, rec := range records[2:] {
		cur, err := time.Parse(time.RFC3339, rec[0])
		require.NoError(t, err)
		assert.False(t, cur.Before(prev))
		prev = cur
	}
}

func TestExportCSVEmpty(t *testing.T) {
	tr := NewTracker(t.TempDir())
	var buf bytes.Buffer
	require.NoError(t, tr.ExportCSV(&buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
