package repositories

import (
	"context"
	"time"

	"paperbase/internal/models"
)

// JobRepository persists processing jobs across restarts.
type JobRepository interface {
	Create(ctx context.Context, job *models.ProcessingJob) error
	Get(ctx context.Context, jobID string) (*models.ProcessingJob, error)
	Update(ctx context.Context, job *models.ProcessingJob) error
	List(ctx context.Context, status models.JobStatus, limit int) ([]models.ProcessingJob, error)
	Delete(ctx context.Context, jobID string) error

	// ListNonTerminal returns jobs to recover on startup.
	ListNonTerminal(ctx context.Context) ([]models.ProcessingJob, error)

	// DeleteTerminalOlderThan removes terminal jobs whose completion is
	// before the cutoff, returning the number removed.
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}
