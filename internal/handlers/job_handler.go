package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"paperbase/internal/jobs"
	"paperbase/internal/models"
)

// JobHandler serves job status and queue operations.
type JobHandler struct {
	engine *jobs.Engine
}

// NewJobHandler creates the job handler.
func NewJobHandler(engine *jobs.Engine) *JobHandler {
	return &JobHandler{engine: engine}
}

// Get handles GET /job/{job_id}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	dto, err := h.engine.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// List handles GET /jobs with optional status and limit query params.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	status := models.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		writeError(w, models.Errorf(models.KindInvalidInput, "jobs",
			"invalid status %q", string(status)))
		return
	}
	list, err := h.engine.List(r.Context(), status, queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]models.JobDTO, len(list))
	for i := range list {
		dtos[i] = list[i].ToDTO()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": dtos, "count": len(dtos)})
}

// Cancel handles POST /queue/cancel/{job_id}.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	if err := h.engine.Cancel(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(models.JobStatusCancelled)})
}

// QueueStats handles GET /queue/stats.
func (h *JobHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

func queryInt(r *http.Request, key string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && n > 0 {
		return n
	}
	return def
}
