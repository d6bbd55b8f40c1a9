package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"paperbase/internal/db"
	"paperbase/internal/models"
)

// BackupRepository records backup artifacts and their lifecycle.
type BackupRepository interface {
	Record(ctx context.Context, rec *models.BackupRecord) error
	Get(ctx context.Context, backupID string) (*models.BackupRecord, error)
	UpdateStatus(ctx context.Context, backupID string, status models.BackupStatus) error
	List(ctx context.Context, limit int) ([]models.BackupRecord, error)
	Delete(ctx context.Context, backupID string) error

	// ListExpired returns backups whose expire date is before now.
	ListExpired(ctx context.Context, now time.Time) ([]models.BackupRecord, error)
}

// SQLiteBackupRepository implements BackupRepository on the relational store.
type SQLiteBackupRepository struct {
	store *db.SQLiteDB
}

// NewSQLiteBackupRepository creates a backup repository.
func NewSQLiteBackupRepository(store *db.SQLiteDB) *SQLiteBackupRepository {
	return &SQLiteBackupRepository{store: store}
}

// Record inserts a backup record.
func (r *SQLiteBackupRepository) Record(ctx context.Context, rec *models.BackupRecord) error {
	_, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO backups (backup_id, type, timestamp, size_bytes, checksum, status, expire_date, source, path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.BackupID, rec.Type, rec.Timestamp, rec.SizeBytes, rec.Checksum,
		rec.Status, rec.ExpireDate, rec.Source, rec.Path)
	if err != nil {
		return NewRepositoryError("record backup", rec.BackupID, err)
	}
	return nil
}

// Get retrieves a backup record.
func (r *SQLiteBackupRepository) Get(ctx context.Context, backupID string) (*models.BackupRecord, error) {
	var rec models.BackupRecord
	err := r.store.DB().GetContext(ctx, &rec, `
		SELECT backup_id, type, timestamp, size_bytes, checksum, status, expire_date, source, path
		FROM backups WHERE backup_id = ?`, backupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "backup", Key: backupID}
	}
	if err != nil {
		return nil, NewRepositoryError("get backup", backupID, err)
	}
	return &rec, nil
}

// UpdateStatus changes a backup's status, used when verification fails.
func (r *SQLiteBackupRepository) UpdateStatus(ctx context.Context, backupID string, status models.BackupStatus) error {
	res, err := r.store.DB().ExecContext(ctx,
		`UPDATE backups SET status = ? WHERE backup_id = ?`, status, backupID)
	if err != nil {
		return NewRepositoryError("update backup status", backupID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "backup", Key: backupID}
	}
	return nil
}

// List returns backups, newest first.
func (r *SQLiteBackupRepository) List(ctx context.Context, limit int) ([]models.BackupRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	recs := []models.BackupRecord{}
	err := r.store.DB().SelectContext(ctx, &recs, `
		SELECT backup_id, type, timestamp, size_bytes, checksum, status, expire_date, source, path
		FROM backups ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, NewRepositoryError("list backups", "", err)
	}
	return recs, nil
}

// Delete removes a backup record.
func (r *SQLiteBackupRepository) Delete(ctx context.Context, backupID string) error {
	res, err := r.store.DB().ExecContext(ctx, `DELETE FROM backups WHERE backup_id = ?`, backupID)
	if err != nil {
		return NewRepositoryError("delete backup", backupID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "backup", Key: backupID}
	}
	return nil
}

// ListExpired returns backups past their retention window.
func (r *SQLiteBackupRepository) ListExpired(ctx context.Context, now time.Time) ([]models.BackupRecord, error) {
	recs := []models.BackupRecord{}
	err := r.store.DB().SelectContext(ctx, &recs, `
		SELECT backup_id, type, timestamp, size_bytes, checksum, status, expire_date, source, path
		FROM backups WHERE expire_date < ? ORDER BY expire_date`, now)
	if err != nil {
		return nil, NewRepositoryError("list expired backups", "", err)
	}
	return recs, nil
}
