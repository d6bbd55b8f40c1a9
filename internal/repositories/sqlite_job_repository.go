package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"paperbase/internal/db"
	"paperbase/internal/models"
)

// SQLiteJobRepository implements JobRepository on the relational store.
type SQLiteJobRepository struct {
	store *db.SQLiteDB
}

// NewSQLiteJobRepository creates a job repository.
func NewSQLiteJobRepository(store *db.SQLiteDB) *SQLiteJobRepository {
	return &SQLiteJobRepository{store: store}
}

// Create inserts a new job.
func (r *SQLiteJobRepository) Create(ctx context.Context, job *models.ProcessingJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	completed, failed, err := encodeSteps(job)
	if err != nil {
		return NewRepositoryError("encode job steps", job.JobID, err)
	}
	_, err = r.store.DB().ExecContext(ctx, `
		INSERT INTO jobs (job_id, filename, priority, status, progress_percentage,
			current_step, steps_completed, steps_failed, error_kind, error_message,
			paper_id, upload_path, source_ip, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.JobID, job.Filename, job.Priority, job.Status, job.ProgressPercentage,
		job.CurrentStep, completed, failed, job.ErrorKind, job.ErrorMessage,
		job.PaperID, job.UploadPath, job.SourceIP, job.CreatedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return NewRepositoryError("create job", job.JobID, err)
	}
	return nil
}

// Get retrieves a job by ID.
func (r *SQLiteJobRepository) Get(ctx context.Context, jobID string) (*models.ProcessingJob, error) {
	row := r.store.DB().QueryRowxContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "job", Key: jobID}
	}
	if err != nil {
		return nil, NewRepositoryError("get job", jobID, err)
	}
	return job, nil
}

// Update persists the full current state of a job.
func (r *SQLiteJobRepository) Update(ctx context.Context, job *models.ProcessingJob) error {
	completed, failed, err := encodeSteps(job)
	if err != nil {
		return NewRepositoryError("encode job steps", job.JobID, err)
	}
	res, err := r.store.DB().ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress_percentage = ?, current_step = ?,
			steps_completed = ?, steps_failed = ?, error_kind = ?, error_message = ?,
			paper_id = ?, started_at = ?, completed_at = ?
		WHERE job_id = ?`,
		job.Status, job.ProgressPercentage, job.CurrentStep,
		completed, failed, job.ErrorKind, job.ErrorMessage,
		job.PaperID, job.StartedAt, job.CompletedAt, job.JobID)
	if err != nil {
		return NewRepositoryError("update job", job.JobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "job", Key: job.JobID}
	}
	return nil
}

// List returns jobs, optionally filtered by status, newest first.
func (r *SQLiteJobRepository) List(ctx context.Context, status models.JobStatus, limit int) ([]models.ProcessingJob, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.store.DB().QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, NewRepositoryError("list jobs", "", err)
	}
	defer rows.Close()

	jobs := []models.ProcessingJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, NewRepositoryError("scan job", "", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ListNonTerminal returns every job still in a recoverable state.
func (r *SQLiteJobRepository) ListNonTerminal(ctx context.Context) ([]models.ProcessingJob, error) {
	rows, err := r.store.DB().QueryxContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status IN (?, ?, ?) ORDER BY created_at`,
		models.JobStatusUploaded, models.JobStatusQueued, models.JobStatusProcessing)
	if err != nil {
		return nil, NewRepositoryError("list non-terminal jobs", "", err)
	}
	defer rows.Close()

	jobs := []models.ProcessingJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, NewRepositoryError("scan job", "", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Delete removes a job record.
func (r *SQLiteJobRepository) Delete(ctx context.Context, jobID string) error {
	res, err := r.store.DB().ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return NewRepositoryError("delete job", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "job", Key: jobID}
	}
	return nil
}

// DeleteTerminalOlderThan sweeps expired terminal jobs.
func (r *SQLiteJobRepository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.store.DB().ExecContext(ctx, `
		DELETE FROM jobs WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled, cutoff)
	if err != nil {
		return 0, NewRepositoryError("sweep terminal jobs", "", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountByStatus returns the number of jobs per status.
func (r *SQLiteJobRepository) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := r.store.DB().QueryxContext(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, NewRepositoryError("count jobs", "", err)
	}
	defer rows.Close()

	counts := map[models.JobStatus]int{}
	for rows.Next() {
		var status models.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, NewRepositoryError("scan job count", "", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

const jobColumns = `job_id, filename, priority, status, progress_percentage,
	current_step, steps_completed, steps_failed, error_kind, error_message,
	paper_id, upload_path, source_ip, created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.ProcessingJob, error) {
	var job models.ProcessingJob
	var completed, failed string
	err := row.Scan(&job.JobID, &job.Filename, &job.Priority, &job.Status,
		&job.ProgressPercentage, &job.CurrentStep, &completed, &failed,
		&job.ErrorKind, &job.ErrorMessage, &job.PaperID, &job.UploadPath,
		&job.SourceIP, &job.CreatedAt, &job.StartedAt, &job.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(completed), &job.StepsCompleted); err != nil {
		return nil, fmt.Errorf("decode steps_completed: %w", err)
	}
	if err := json.Unmarshal([]byte(failed), &job.StepsFailed); err != nil {
		return nil, fmt.Errorf("decode steps_failed: %w", err)
	}
	return &job, nil
}

func encodeSteps(job *models.ProcessingJob) (string, string, error) {
	completed := job.StepsCompleted
	if completed == nil {
		completed = []models.StepResult{}
	}
	failed := job.StepsFailed
	if failed == nil {
		failed = []models.StepFailure{}
	}
	cb, err := json.Marshal(completed)
	if err != nil {
		return "", "", err
	}
	fb, err := json.Marshal(failed)
	if err != nil {
		return "", "", err
	}
	return string(cb), string(fb), nil
}
