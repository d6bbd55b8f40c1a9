package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger"

	"paperbase/internal/handlers"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Upload *handlers.UploadHandler
	Job    *handlers.JobHandler
	Paper  *handlers.PaperHandler
	Search *handlers.SearchHandler
	Admin  *handlers.AdminHandler
	Status *handlers.StatusHandler
}

// Setup mounts every route on the router.
func Setup(r *mux.Router, h Handlers) {
	r.Use(loggingMiddleware)

	// Ingestion.
	r.HandleFunc("/upload", h.Upload.Upload).Methods(http.MethodPost)
	r.HandleFunc("/upload-priority", h.Upload.UploadPriority).Methods(http.MethodPost)

	// Jobs and queue.
	r.HandleFunc("/job/{job_id}", h.Job.Get).Methods(http.MethodGet)
	r.HandleFunc("/jobs", h.Job.List).Methods(http.MethodGet)
	r.HandleFunc("/queue/cancel/{job_id}", h.Job.Cancel).Methods(http.MethodPost)
	r.HandleFunc("/queue/stats", h.Job.QueueStats).Methods(http.MethodGet)

	// Papers and artifacts.
	r.HandleFunc("/papers", h.Paper.List).Methods(http.MethodGet)
	r.HandleFunc("/paper/{doc_id}", h.Paper.Get).Methods(http.MethodGet)
	r.HandleFunc("/paper/{doc_id}", h.Paper.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/paper/{doc_id}/duplicates", h.Paper.Duplicates).Methods(http.MethodGet)
	r.HandleFunc("/metadata/{doc_id}", h.Paper.Metadata).Methods(http.MethodGet)
	r.HandleFunc("/embedding/{doc_id}", h.Paper.Embedding).Methods(http.MethodGet)
	r.HandleFunc("/embedding/{doc_id}/pages", h.Paper.PageEmbeddings).Methods(http.MethodGet)
	r.HandleFunc("/embedding/{doc_id}/page/{n}", h.Paper.PageEmbedding).Methods(http.MethodGet)
	r.HandleFunc("/layout/{doc_id}", h.Paper.Layout).Methods(http.MethodGet)
	r.HandleFunc("/text/{doc_id}", h.Paper.Text).Methods(http.MethodGet)
	r.HandleFunc("/preview/{doc_id}", h.Paper.Preview).Methods(http.MethodGet)
	r.HandleFunc("/download/{doc_id}", h.Paper.Download).Methods(http.MethodGet)

	// Search.
	r.HandleFunc("/search", h.Search.Keyword).Methods(http.MethodGet)
	r.HandleFunc("/search/vector", h.Search.Vector).Methods(http.MethodPost)
	r.HandleFunc("/similar/{doc_id}", h.Search.Similar).Methods(http.MethodGet)

	// Admin, behind the token gate.
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(h.Admin.RequireToken)
	admin.HandleFunc("/backup/trigger", h.Admin.TriggerBackup).Methods(http.MethodPost)
	admin.HandleFunc("/backup/list", h.Admin.ListBackups).Methods(http.MethodGet)
	admin.HandleFunc("/backup/verify/{id}", h.Admin.VerifyBackup).Methods(http.MethodPost)
	admin.HandleFunc("/backup/restore/{id}", h.Admin.RestoreBackup).Methods(http.MethodPost)
	admin.HandleFunc("/consistency/check", h.Admin.ConsistencyCheck).Methods(http.MethodGet)
	admin.HandleFunc("/consistency/fix", h.Admin.ConsistencyFix).Methods(http.MethodPost)

	// Monitoring.
	r.HandleFunc("/health", h.Status.Health).Methods(http.MethodGet)
	r.HandleFunc("/status", h.Status.Status).Methods(http.MethodGet)
	r.HandleFunc("/performance", h.Status.Performance).Methods(http.MethodGet)
	r.HandleFunc("/performance/export", h.Status.PerformanceExport).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// API docs.
	r.HandleFunc("/swagger/doc.json", serveSwaggerDoc).Methods(http.MethodGet)
	r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r)
	})
}
