package handlers

import (
	"context"
	"net/http"
	"time"

	"paperbase/internal/adapters"
	"paperbase/internal/db"
	"paperbase/internal/jobs"
	"paperbase/internal/metrics"
	"paperbase/internal/pipeline"
)

// StatusHandler serves liveness, readiness, and performance aggregates.
type StatusHandler struct {
	sqlite   *db.SQLiteDB
	chroma   *db.ChromaDBClient
	redis    *db.RedisClient
	registry *adapters.Registry
	engine   *jobs.Engine
	tracker  *metrics.Tracker
}

// NewStatusHandler creates the status handler. redis may be nil.
func NewStatusHandler(sqlite *db.SQLiteDB, chroma *db.ChromaDBClient, redis *db.RedisClient, registry *adapters.Registry, engine *jobs.Engine, tracker *metrics.Tracker) *StatusHandler {
	return &StatusHandler{sqlite: sqlite, chroma: chroma, redis: redis, registry: registry, engine: engine, tracker: tracker}
}

// Health handles GET /health.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status handles GET /status: store readiness, breaker states, and queue
// shape in one payload.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stores := map[string]string{
		"sqlite":   pingStatus(h.sqlite.Ping(ctx)),
		"chromadb": pingStatus(h.chroma.Heartbeat(ctx)),
	}
	if h.redis != nil {
		stores["redis"] = pingStatus(h.redis.Ping(ctx))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stores":   stores,
		"breakers": h.registry.States(),
		"queue":    h.engine.Stats(),
		"stages":   pipeline.StageWeightsJSON(),
	})
}

// Performance handles GET /performance: tracker aggregates as JSON.
func (h *StatusHandler) Performance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Snapshot())
}

// PerformanceExport handles GET /performance/export?format=csv|json.
func (h *StatusHandler) PerformanceExport(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("format") {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="samples.csv"`)
		if err := h.tracker.ExportCSV(w); err != nil {
			writeError(w, err)
		}
	default:
		w.Header().Set("Content-Type", "application/json")
		if err := h.tracker.ExportJSON(w); err != nil {
			writeError(w, err)
		}
	}
}

func pingStatus(err error) string {
	if err != nil {
		return "down"
	}
	return "up"
}
