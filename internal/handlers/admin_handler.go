package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"paperbase/internal/backup"
	"paperbase/internal/models"
	"paperbase/internal/repositories"
)

// AdminHandler serves backup, restore, and consistency operations. Every
// route goes through the token gate.
type AdminHandler struct {
	manager *backup.Manager
	checker *backup.Checker
	backups repositories.BackupRepository
	token   string
}

// NewAdminHandler creates the admin handler. An empty token disables the
// whole admin surface.
func NewAdminHandler(manager *backup.Manager, checker *backup.Checker, backups repositories.BackupRepository, token string) *AdminHandler {
	return &AdminHandler{manager: manager, checker: checker, backups: backups, token: token}
}

// RequireToken gates admin routes on the X-Admin-Token header.
func (h *AdminHandler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "admin surface disabled"})
			return
		}
		got := r.Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			log.Warn().Str("path", r.URL.Path).Str("ip", clientIP(r)).Msg("admin token rejected")
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TriggerBackup handles POST /admin/backup/trigger?type=snapshot.
func (h *AdminHandler) TriggerBackup(w http.ResponseWriter, r *http.Request) {
	typ := models.BackupType(r.URL.Query().Get("type"))
	if typ == "" {
		typ = models.BackupTypeSnapshot
	}
	rec, err := h.manager.Trigger(r.Context(), typ)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"backup_id": rec.BackupID})
}

// ListBackups handles GET /admin/backup/list.
func (h *AdminHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	recs, err := h.backups.List(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"backups": recs, "count": len(recs)})
}

// VerifyBackup handles POST /admin/backup/verify/{id}.
func (h *AdminHandler) VerifyBackup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.manager.Verify(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"backup_id": id, "status": "verified"})
}

// RestoreBackup handles POST /admin/backup/restore/{id}.
func (h *AdminHandler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.manager.Restore(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"backup_id": id, "status": "restored"})
}

// ConsistencyCheck handles GET /admin/consistency/check.
func (h *AdminHandler) ConsistencyCheck(w http.ResponseWriter, r *http.Request) {
	report, err := h.checker.Check(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ConsistencyFix handles POST /admin/consistency/fix: checks, then repairs
// the safe classes.
func (h *AdminHandler) ConsistencyFix(w http.ResponseWriter, r *http.Request) {
	report, err := h.checker.Check(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	fixed, failed := h.checker.Fix(r.Context(), report)
	writeJSON(w, http.StatusOK, map[string]int{"fixed": fixed, "failed": failed})
}
