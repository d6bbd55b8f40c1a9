package handlers

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"paperbase/internal/config"
	"paperbase/internal/filesec"
	"paperbase/internal/jobs"
	"paperbase/internal/models"
)

// UploadHandler accepts PDF uploads and turns them into jobs.
type UploadHandler struct {
	engine  *jobs.Engine
	limiter *filesec.RateLimiter
	upload  config.UploadConfig
	tempDir string
}

// NewUploadHandler creates the upload handler.
func NewUploadHandler(engine *jobs.Engine, limiter *filesec.RateLimiter, upload config.UploadConfig, tempDir string) *UploadHandler {
	return &UploadHandler{engine: engine, limiter: limiter, upload: upload, tempDir: tempDir}
}

// Upload handles POST /upload: normal priority.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, models.PriorityNormal)
}

// UploadPriority handles POST /upload-priority with a priority form field.
func (h *UploadHandler) UploadPriority(w http.ResponseWriter, r *http.Request) {
	priority := models.Priority(r.FormValue("priority"))
	if !priority.IsValid() {
		writeError(w, models.Errorf(models.KindInvalidInput, "upload",
			"invalid priority %q", string(priority)))
		return
	}
	h.accept(w, r, priority)
}

func (h *UploadHandler) accept(w http.ResponseWriter, r *http.Request, priority models.Priority) {
	sourceIP := clientIP(r)
	if h.limiter != nil {
		if err := h.limiter.Allow(r.Context(), sourceIP); err != nil {
			writeError(w, err)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.upload.MaxUploadBytes())
	file, header, err := r.FormFile("file")
	if err != nil {
		if maxBytesExceeded(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error: fmt.Sprintf("upload exceeds %d MB", h.upload.MaxMB),
				Kind:  models.KindInvalidInput,
			})
			return
		}
		writeError(w, models.NewError(models.KindInvalidInput, "upload", err, "missing file field"))
		return
	}
	defer file.Close()

	tempPath, err := h.saveTemp(file, header.Filename)
	if err != nil {
		if maxBytesExceeded(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error: fmt.Sprintf("upload exceeds %d MB", h.upload.MaxMB),
				Kind:  models.KindInvalidInput,
			})
			return
		}
		writeError(w, err)
		return
	}

	job, err := h.engine.Submit(r.Context(), header.Filename, priority, tempPath, sourceIP)
	if err != nil {
		os.Remove(tempPath)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"job_id": job.JobID,
		"status": string(models.JobStatusUploaded),
	})
}

func (h *UploadHandler) saveTemp(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
		return "", models.NewError(models.KindInternal, "upload", err, "create temp dir")
	}
	// Keep the extension so validation sees it; the name itself is ours.
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".pdf"
	}
	dest := filepath.Join(h.tempDir, uuid.New().String()+ext)
	out, err := os.Create(dest)
	if err != nil {
		return "", models.NewError(models.KindInternal, "upload", err, "create temp file")
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dest)
		if maxBytesExceeded(err) {
			return "", err
		}
		return "", models.NewError(models.KindInternal, "upload", err, "write temp file")
	}
	log.Debug().Str("path", dest).Str("filename", filename).Msg("upload staged")
	return dest, nil
}

// clientIP prefers the first X-Forwarded-For entry, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
