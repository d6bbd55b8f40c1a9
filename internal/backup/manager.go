package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"paperbase/internal/config"
	"paperbase/internal/db"
	"paperbase/internal/models"
	"paperbase/internal/repositories"
)

// manifest describes the files inside a backup artifact.
type manifest struct {
	BackupID  string            `json:"backup_id"`
	Type      models.BackupType `json:"type"`
	CreatedAt time.Time         `json:"created_at"`
	Files     map[string]string `json:"files"` // relative path -> sha256
	BaseID    string            `json:"base_id,omitempty"`
}

// Manager creates, verifies, restores, and expires backups. Restore goes
// through the pause hooks so no pipeline run is mid-flight while store
// files are being swapped.
type Manager struct {
	store     *db.SQLiteDB
	repo      repositories.BackupRepository
	cfg       config.BackupConfig
	backupDir string
	chromaDir string

	// PauseIngestion and ResumeIngestion bracket a restore. Both may be nil.
	PauseIngestion  func()
	ResumeIngestion func()

	now func() time.Time
}

// NewManager creates a backup manager.
func NewManager(store *db.SQLiteDB, repo repositories.BackupRepository, cfg config.BackupConfig, backupDir, chromaDir string) *Manager {
	return &Manager{
		store:     store,
		repo:      repo,
		cfg:       cfg,
		backupDir: backupDir,
		chromaDir: chromaDir,
		now:       time.Now,
	}
}

// Trigger creates a backup of the given type and records it.
func (m *Manager) Trigger(ctx context.Context, typ models.BackupType) (*models.BackupRecord, error) {
	if !typ.IsValid() {
		return nil, models.Errorf(models.KindInvalidInput, "backup", "unknown backup type %q", typ)
	}

	id := uuid.New().String()
	created := m.now().UTC()
	dir := m.artifactDir(typ, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	man := manifest{BackupID: id, Type: typ, CreatedAt: created, Files: map[string]string{}}
	var err error
	switch typ {
	case models.BackupTypeSnapshot:
		err = m.addSnapshot(ctx, dir, &man)
	case models.BackupTypeFull, models.BackupTypeUnified:
		if err = m.addSnapshot(ctx, dir, &man); err == nil {
			err = m.addChromaArchive(dir, &man, time.Time{})
		}
	case models.BackupTypeIncremental:
		since := m.lastArchiveTime(ctx)
		if err = m.addSnapshot(ctx, dir, &man); err == nil {
			err = m.addChromaArchive(dir, &man, since)
		}
	}
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("create %s backup: %w", typ, err)
	}

	if err := writeManifest(dir, man); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	rec := &models.BackupRecord{
		BackupID:   id,
		Type:       typ,
		Timestamp:  created,
		SizeBytes:  dirSize(dir),
		Checksum:   combinedChecksum(man.Files),
		Status:     models.BackupStatusCompleted,
		ExpireDate: created.AddDate(0, 0, m.retentionDays(typ)),
		Source:     sourceOf(typ),
		Path:       dir,
	}
	if err := m.repo.Record(ctx, rec); err != nil {
		return nil, err
	}
	log.Info().Str("backup_id", id).Str("type", string(typ)).
		Int64("size_bytes", rec.SizeBytes).Msg("backup created")
	return rec, nil
}

// Verify recomputes the artifact checksum against the record. A mismatch
// marks the record failed.
func (m *Manager) Verify(ctx context.Context, backupID string) error {
	rec, err := m.repo.Get(ctx, backupID)
	if err != nil {
		return err
	}
	man, err := readManifest(rec.Path)
	if err != nil {
		_ = m.repo.UpdateStatus(ctx, backupID, models.BackupStatusFailed)
		return models.NewError(models.KindDataIntegrity, "backup", err, "manifest unreadable")
	}

	for rel, want := range man.Files {
		got, err := fileChecksum(filepath.Join(rec.Path, rel))
		if err != nil || got != want {
			_ = m.repo.UpdateStatus(ctx, backupID, models.BackupStatusFailed)
			return models.Errorf(models.KindDataIntegrity, "backup",
				"artifact %s failed verification", rel)
		}
	}
	if combinedChecksum(man.Files) != rec.Checksum {
		_ = m.repo.UpdateStatus(ctx, backupID, models.BackupStatusFailed)
		return models.Errorf(models.KindDataIntegrity, "backup", "manifest checksum mismatch")
	}
	return nil
}

// Restore replaces store files from a backup. Ingestion is paused, a safety
// backup of the current state is taken first, and single-store restores
// leave the other store untouched.
func (m *Manager) Restore(ctx context.Context, backupID string) error {
	rec, err := m.repo.Get(ctx, backupID)
	if err != nil {
		return err
	}
	if err := m.Verify(ctx, backupID); err != nil {
		return err
	}

	if m.PauseIngestion != nil {
		m.PauseIngestion()
	}
	if m.ResumeIngestion != nil {
		defer m.ResumeIngestion()
	}

	if _, err := m.Trigger(ctx, models.BackupTypeUnified); err != nil {
		return fmt.Errorf("safety backup before restore: %w", err)
	}

	man, err := readManifest(rec.Path)
	if err != nil {
		return err
	}

	// The manifest decides what gets restored: an incremental carries both a
	// relational snapshot and a vector delta, a plain snapshot only the
	// former. Absent components leave the corresponding store untouched.
	if _, ok := man.Files[sqliteSnapshotName]; ok {
		if err := m.restoreSQLite(ctx, rec.Path); err != nil {
			return err
		}
	}
	if _, ok := man.Files[chromaArchiveName]; ok {
		if err := extractTarGz(filepath.Join(rec.Path, chromaArchiveName), m.chromaDir); err != nil {
			return fmt.Errorf("restore vector store: %w", err)
		}
	}

	log.Warn().Str("backup_id", backupID).Str("source", string(rec.Source)).
		Msg("restore completed; run a consistency check")
	return nil
}

// RunScheduler drives the daily snapshot, weekly unified, monthly full
// cadence and the retention sweeper until ctx is done.
func (m *Manager) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	var lastDaily, lastWeekly, lastMonthly time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := m.now().UTC()
			if now.Sub(lastDaily) >= 24*time.Hour {
				m.scheduled(ctx, models.BackupTypeSnapshot)
				lastDaily = now
			}
			if now.Weekday() == time.Sunday && now.Sub(lastWeekly) >= 6*24*time.Hour {
				m.scheduled(ctx, models.BackupTypeUnified)
				lastWeekly = now
			}
			if now.Day() == 1 && now.Sub(lastMonthly) >= 27*24*time.Hour {
				m.scheduled(ctx, models.BackupTypeFull)
				lastMonthly = now
			}
			m.sweep(ctx)
		}
	}
}

func (m *Manager) scheduled(ctx context.Context, typ models.BackupType) {
	if _, err := m.Trigger(ctx, typ); err != nil {
		log.Error().Err(err).Str("type", string(typ)).Msg("scheduled backup failed")
	}
}

// sweep removes expired backups and their artifacts.
func (m *Manager) sweep(ctx context.Context) {
	expired, err := m.repo.ListExpired(ctx, m.now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("backup sweep listing failed")
		return
	}
	for _, rec := range expired {
		if err := os.RemoveAll(rec.Path); err != nil {
			log.Error().Err(err).Str("backup_id", rec.BackupID).Msg("artifact removal failed")
			continue
		}
		if err := m.repo.Delete(ctx, rec.BackupID); err != nil {
			log.Error().Err(err).Str("backup_id", rec.BackupID).Msg("record removal failed")
		}
	}
	if len(expired) > 0 {
		log.Info().Int("removed", len(expired)).Msg("expired backups swept")
	}
}

const (
	sqliteSnapshotName = "paperbase.db.gz"
	chromaArchiveName  = "chroma.tar.gz"
)

func (m *Manager) addSnapshot(ctx context.Context, dir string, man *manifest) error {
	if err := m.store.Checkpoint(ctx); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	dest := filepath.Join(dir, sqliteSnapshotName)
	if err := gzipFile(m.store.Path(), dest); err != nil {
		return err
	}
	sum, err := fileChecksum(dest)
	if err != nil {
		return err
	}
	man.Files[sqliteSnapshotName] = sum
	return nil
}

func (m *Manager) addChromaArchive(dir string, man *manifest, since time.Time) error {
	if _, err := os.Stat(m.chromaDir); os.IsNotExist(err) {
		return nil
	}
	dest := filepath.Join(dir, chromaArchiveName)
	if err := tarGzDir(m.chromaDir, dest, since); err != nil {
		return err
	}
	sum, err := fileChecksum(dest)
	if err != nil {
		return err
	}
	man.Files[chromaArchiveName] = sum
	return nil
}

// lastArchiveTime finds the timestamp of the newest full or incremental
// backup, the delta base for the next incremental.
func (m *Manager) lastArchiveTime(ctx context.Context) time.Time {
	recs, err := m.repo.List(ctx, 50)
	if err != nil {
		return time.Time{}
	}
	for _, rec := range recs {
		if rec.Status != models.BackupStatusCompleted {
			continue
		}
		if rec.Type == models.BackupTypeFull || rec.Type == models.BackupTypeIncremental {
			return rec.Timestamp
		}
	}
	return time.Time{}
}

func (m *Manager) restoreSQLite(ctx context.Context, artifactDir string) error {
	src := filepath.Join(artifactDir, sqliteSnapshotName)
	if err := m.store.Checkpoint(ctx); err != nil {
		return fmt.Errorf("checkpoint before restore: %w", err)
	}
	// The pool is torn down before the file swap; a gunzip over a live
	// WAL-mode database would corrupt it.
	if err := m.store.RestoreFrom(func(path string) error {
		return gunzipFile(src, path)
	}); err != nil {
		return fmt.Errorf("restore relational store: %w", err)
	}
	return nil
}

func (m *Manager) artifactDir(typ models.BackupType, id string) string {
	return filepath.Join(m.backupDir, string(sourceOf(typ)), id)
}

func (m *Manager) retentionDays(typ models.BackupType) int {
	switch typ {
	case models.BackupTypeSnapshot:
		return m.cfg.DailyRetentionDays
	case models.BackupTypeUnified:
		return m.cfg.WeeklyRetentionDays
	default:
		return m.cfg.MonthlyRetentionDays
	}
}

func sourceOf(typ models.BackupType) models.BackupSource {
	switch typ {
	case models.BackupTypeSnapshot:
		return models.BackupSourceSQLite
	case models.BackupTypeIncremental:
		return models.BackupSourceChroma
	default:
		return models.BackupSourceUnified
	}
}

func writeManifest(dir string, man manifest) error {
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644)
}

func readManifest(dir string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, err
	}
	var man manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return nil, err
	}
	return &man, nil
}

// combinedChecksum derives one checksum over all artifacts: the SHA-256 of
// the sorted "path:hash" lines.
func combinedChecksum(files map[string]string) string {
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s:%s\n", k, files[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func gzipFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		return err
	}
	return gw.Close()
}

func gunzipFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	gr, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer gr.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, gr)
	return err
}

// tarGzDir archives a directory. With a non-zero since, only files modified
// after it are included (the incremental delta).
func tarGzDir(root, dest string, since time.Time) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if !since.IsZero() && info.ModTime().Before(since) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

func extractTarGz(src, destDir string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	gr, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer gr.Close()
	tr := tar.NewReader(gr)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		clean := filepath.Clean(hdr.Name)
		if strings.HasPrefix(clean, "..") {
			return fmt.Errorf("archive entry escapes target: %s", hdr.Name)
		}
		dest := filepath.Join(destDir, clean)
		if hdr.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		f, err := os.Create(dest)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return err
		}
		f.Close()
	}
}

func dirSize(dir string) int64 {
	var size int64
	filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
