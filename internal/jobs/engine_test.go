package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperbase/internal/config"
	"paperbase/internal/db"
	"paperbase/internal/models"
	"paperbase/internal/repositories"
)

func engineFixture(t *testing.T, queueSize int) (*Engine, *repositories.SQLiteJobRepository) {
	t.Helper()
	store, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	repo := repositories.NewSQLiteJobRepository(store)
	engine := NewEngine(config.EngineConfig{MaxConcurrent: 3, MaxQueueSize: queueSize},
		repo, nil, nil, nil)
	return engine, repo
}

func TestSubmitQueuesJob(t *testing.T) {
	engine, repo := engineFixture(t, 10)

	job, err := engine.Submit(context.Background(), "paper.pdf", models.PriorityHigh,
		"/tmp/upload.pdf", "203.0.113.7")
	require.NoError(t, err)
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, models.JobStatusQueued, job.Status)

	persisted, err := repo.Get(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, persisted.Status)
	assert.Equal(t, "203.0.113.7", persisted.SourceIP)
	assert.Equal(t, 1, engine.Stats().Depth)
}

func TestSubmitDefaultsInvalidPriority(t *testing.T) {
	engine, _ := engineFixture(t, 10)
	job, err := engine.Submit(context.Background(), "paper.pdf", "asap", "/tmp/x.pdf", "")
	require.NoError(t, err)
	assert.Equal(t, models.PriorityNormal, job.Priority)
}

func TestSubmitQueueFullMarksJobFailed(t *testing.T) {
	engine, repo := engineFixture(t, 1)
	ctx := context.Background()

	first, err := engine.Submit(ctx, "a.pdf", models.PriorityNormal, "/tmp/a.pdf", "")
	require.NoError(t, err)

	_, err = engine.Submit(ctx, "b.pdf", models.PriorityNormal, "/tmp/b.pdf", "")
	require.Error(t, err)
	assert.Equal(t, models.KindQueueFull, models.KindOf(err))

	// The rejected job is persisted terminal so the client can see why.
	jobs, listErr := repo.List(ctx, models.JobStatusFailed, 10)
	require.NoError(t, listErr)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.KindQueueFull, jobs[0].ErrorKind)
	assert.NotEqual(t, first.JobID, jobs[0].JobID)
}

func TestCancelQueuedJob(t *testing.T) {
	engine, repo := engineFixture(t, 10)
	ctx := context.Background()

	job, err := engine.Submit(ctx, "paper.pdf", models.PriorityNormal, "/tmp/x.pdf", "")
	require.NoError(t, err)
	require.NoError(t, engine.Cancel(ctx, job.JobID))

	got, err := repo.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Zero(t, engine.Stats().Depth)

	// Terminal jobs cannot be cancelled again.
	err = engine.Cancel(ctx, job.JobID)
	require.Error(t, err)
	assert.Equal(t, models.KindInvalidInput, models.KindOf(err))
}

func TestStatusFallsBackToRepository(t *testing.T) {
	engine, _ := engineFixture(t, 10)
	ctx := context.Background()

	job, err := engine.Submit(ctx, "paper.pdf", models.PriorityNormal, "/tmp/x.pdf", "")
	require.NoError(t, err)

	dto, err := engine.Status(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.JobID, dto.JobID)
	assert.Equal(t, string(models.JobStatusQueued), dto.Status)

	_, err = engine.Status(ctx, "missing")
	assert.True(t, repositories.IsNotFound(err))
}

func TestRecoverOnStart(t *testing.T) {
	engine, repo := engineFixture(t, 10)
	ctx := context.Background()

	// Simulate a previous process: one job queued, one mid-processing.
	now := time.Now().UTC().Truncate(time.Second)
	queued := &models.ProcessingJob{JobID: "q1", Filename: "a.pdf",
		Priority: models.PriorityNormal, Status: models.JobStatusQueued,
		CreatedAt: now}
	require.NoError(t, repo.Create(ctx, queued))
	processing := &models.ProcessingJob{JobID: "p1", Filename: "b.pdf",
		Priority: models.PriorityNormal, Status: models.JobStatusProcessing,
		CreatedAt: now}
	require.NoError(t, repo.Create(ctx, processing))

	require.NoError(t, engine.recover(ctx))

	got, err := repo.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.Equal(t, 1, engine.Stats().Depth)

	got, err = repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "interrupted by restart", got.ErrorMessage)
	assert.Equal(t, models.KindInternal, got.ErrorKind)
}
