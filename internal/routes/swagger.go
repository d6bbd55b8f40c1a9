package routes

import (
	"net/http"
)

// swaggerDoc is the API description served to the swagger UI. Maintained by
// hand; update it when routes change.
const swaggerDoc = `{
  "swagger": "2.0",
  "info": {
    "title": "Paperbase Ingestion API",
    "description": "Scholarly PDF ingestion: async jobs, duplicate prevention, hybrid relational and vector storage.",
    "version": "1.0"
  },
  "basePath": "/",
  "paths": {
    "/upload": {"post": {"summary": "Enqueue a PDF for ingestion", "consumes": ["multipart/form-data"], "responses": {"200": {"description": "job_id and status"}, "400": {"description": "invalid upload"}, "413": {"description": "file too large"}, "429": {"description": "rate limited"}, "503": {"description": "queue full"}}}},
    "/upload-priority": {"post": {"summary": "Enqueue a PDF with an explicit priority", "consumes": ["multipart/form-data"], "responses": {"200": {"description": "job_id and status"}, "400": {"description": "invalid upload or priority"}}}},
    "/job/{job_id}": {"get": {"summary": "Job status", "responses": {"200": {"description": "status payload"}, "404": {"description": "unknown job"}}}},
    "/jobs": {"get": {"summary": "List jobs", "responses": {"200": {"description": "job list"}}}},
    "/queue/cancel/{job_id}": {"post": {"summary": "Cancel a queued job", "responses": {"200": {"description": "cancelled"}, "400": {"description": "not cancellable"}, "404": {"description": "unknown job"}}}},
    "/queue/stats": {"get": {"summary": "Queue depth and worker state", "responses": {"200": {"description": "stats"}}}},
    "/papers": {"get": {"summary": "List papers", "responses": {"200": {"description": "paper list"}}}},
    "/paper/{doc_id}": {"get": {"summary": "Paper record", "responses": {"200": {"description": "paper"}, "404": {"description": "unknown paper"}}}, "delete": {"summary": "Delete a paper and its vectors", "responses": {"200": {"description": "deleted"}, "404": {"description": "unknown paper"}}}},
    "/metadata/{doc_id}": {"get": {"summary": "Bibliographic metadata", "responses": {"200": {"description": "metadata"}, "404": {"description": "none stored"}}}},
    "/embedding/{doc_id}": {"get": {"summary": "Document mean vector", "responses": {"200": {"description": "vector"}, "404": {"description": "unknown paper"}}}},
    "/embedding/{doc_id}/pages": {"get": {"summary": "All page vectors", "responses": {"200": {"description": "vectors"}, "404": {"description": "unknown paper"}}}},
    "/embedding/{doc_id}/page/{n}": {"get": {"summary": "Single page vector", "responses": {"200": {"description": "vector"}, "404": {"description": "unknown page"}}}},
    "/layout/{doc_id}": {"get": {"summary": "Layout analysis JSON", "responses": {"200": {"description": "layout"}, "404": {"description": "none stored"}}}},
    "/text/{doc_id}": {"get": {"summary": "Extracted page text", "responses": {"200": {"description": "texts"}, "404": {"description": "unknown paper"}}}},
    "/preview/{doc_id}": {"get": {"summary": "First-page PNG", "produces": ["image/png"], "responses": {"200": {"description": "image"}, "404": {"description": "none stored"}}}},
    "/download/{doc_id}": {"get": {"summary": "Stored original PDF", "produces": ["application/pdf"], "responses": {"200": {"description": "binary"}, "404": {"description": "none stored"}}}},
    "/search": {"get": {"summary": "Keyword search over page text", "responses": {"200": {"description": "hits"}}}},
    "/search/vector": {"post": {"summary": "Nearest neighbors of a query vector", "responses": {"200": {"description": "hits"}, "400": {"description": "malformed vector"}}}},
    "/similar/{doc_id}": {"get": {"summary": "Nearest neighbors of a stored paper", "responses": {"200": {"description": "hits"}, "404": {"description": "unknown paper"}}}},
    "/health": {"get": {"summary": "Liveness", "responses": {"200": {"description": "ok"}}}},
    "/status": {"get": {"summary": "Store, breaker, and queue readiness", "responses": {"200": {"description": "status"}}}},
    "/performance": {"get": {"summary": "Performance aggregates", "responses": {"200": {"description": "snapshot"}}}},
    "/admin/backup/trigger": {"post": {"summary": "Create a backup (admin)", "responses": {"200": {"description": "backup_id"}, "403": {"description": "forbidden"}}}},
    "/admin/backup/restore/{id}": {"post": {"summary": "Restore a backup (admin)", "responses": {"200": {"description": "restored"}, "403": {"description": "forbidden"}, "404": {"description": "unknown backup"}}}},
    "/admin/consistency/check": {"get": {"summary": "Cross-store consistency report (admin)", "responses": {"200": {"description": "report"}}}},
    "/admin/consistency/fix": {"post": {"summary": "Repair safe inconsistencies (admin)", "responses": {"200": {"description": "fixed and failed counts"}, "403": {"description": "forbidden"}}}}
  }
}`

func serveSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(swaggerDoc))
}
