package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperbase/internal/config"
	"paperbase/internal/db"
	"paperbase/internal/jobs"
	"paperbase/internal/models"
	"paperbase/internal/repositories"
)

// testEngine builds a job engine over a throwaway store. Workers are not
// started, so submitted jobs stay queued.
func testEngine(t *testing.T) *jobs.Engine {
	t.Helper()
	store, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return jobs.NewEngine(config.EngineConfig{MaxConcurrent: 3, MaxQueueSize: 10},
		repositories.NewSQLiteJobRepository(store), nil, nil, nil)
}

func jobRouter(engine *jobs.Engine) *mux.Router {
	h := NewJobHandler(engine)
	r := mux.NewRouter()
	r.HandleFunc("/job/{job_id}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/jobs", h.List).Methods(http.MethodGet)
	r.HandleFunc("/queue/cancel/{job_id}", h.Cancel).Methods(http.MethodPost)
	r.HandleFunc("/queue/stats", h.QueueStats).Methods(http.MethodGet)
	return r
}

func TestJobGet(t *testing.T) {
	engine := testEngine(t)
	job, err := engine.Submit(context.Background(), "paper.pdf", models.PriorityNormal, "/tmp/x.pdf", "203.0.113.7")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	jobRouter(engine).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/job/"+job.JobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var dto models.JobDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, job.JobID, dto.JobID)
	assert.Equal(t, string(models.JobStatusQueued), dto.Status)
}

func TestJobGetUnknown(t *testing.T) {
	rec := httptest.NewRecorder()
	jobRouter(testEngine(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/job/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobListRejectsBadStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	jobRouter(testEngine(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs?status=sideways", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobListFilters(t *testing.T) {
	engine := testEngine(t)
	_, err := engine.Submit(context.Background(), "a.pdf", models.PriorityNormal, "/tmp/a.pdf", "")
	require.NoError(t, err)
	_, err = engine.Submit(context.Background(), "b.pdf", models.PriorityHigh, "/tmp/b.pdf", "")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	jobRouter(engine).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs?status=queued", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs  []models.JobDTO `json:"jobs"`
		Count int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestJobCancel(t *testing.T) {
	engine := testEngine(t)
	job, err := engine.Submit(context.Background(), "paper.pdf", models.PriorityNormal, "/tmp/x.pdf", "")
	require.NoError(t, err)

	router := jobRouter(engine)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/queue/cancel/"+job.JobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// Cancelling a terminal job is a client error.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/queue/cancel/"+job.JobID, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueueStats(t *testing.T) {
	engine := testEngine(t)
	_, err := engine.Submit(context.Background(), "paper.pdf", models.PriorityUrgent, "/tmp/x.pdf", "")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	jobRouter(engine).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Depth)
	assert.Equal(t, 10, stats.Capacity)
	assert.Equal(t, 1, stats.ByPriority["urgent"])
}
