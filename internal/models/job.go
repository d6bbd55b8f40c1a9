package models

import (
	"time"
)

// Priority orders jobs in the queue. Strict bands, FIFO within a band.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank maps a priority to its band index; lower dispatches first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// IsValid checks if the priority value is recognized.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	default:
		return false
	}
}

// JobStatus represents the current status of a processing job.
type JobStatus string

const (
	JobStatusUploaded   JobStatus = "uploaded"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsValid checks if the job status value is recognized.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusUploaded, JobStatusQueued, JobStatusProcessing,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Cancellable reports whether a job in this status may still be cancelled.
// A job that has reached processing is never interrupted.
func (s JobStatus) Cancellable() bool {
	return s == JobStatusUploaded || s == JobStatusQueued
}

// StepResult records a completed pipeline stage.
type StepResult struct {
	Name      string  `json:"name"`
	DurationS float64 `json:"duration_s"`
}

// StepFailure records an optional stage that failed and was skipped.
type StepFailure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ProcessingJob is a pending, active, or terminal ingestion unit. It is
// exclusively owned by the job engine until terminal.
type ProcessingJob struct {
	JobID              string        `json:"job_id" db:"job_id"`
	Filename           string        `json:"filename" db:"filename"`
	Priority           Priority      `json:"priority" db:"priority"`
	Status             JobStatus     `json:"status" db:"status"`
	ProgressPercentage int           `json:"progress_percentage" db:"progress_percentage"`
	CurrentStep        string        `json:"current_step" db:"current_step"`
	StepsCompleted     []StepResult  `json:"steps_completed" db:"-"`
	StepsFailed        []StepFailure `json:"steps_failed" db:"-"`
	ErrorKind          Kind          `json:"error_kind,omitempty" db:"error_kind"`
	ErrorMessage       string        `json:"error_message,omitempty" db:"error_message"`
	PaperID            string        `json:"paper_id,omitempty" db:"paper_id"`
	UploadPath         string        `json:"-" db:"upload_path"`
	SourceIP           string        `json:"-" db:"source_ip"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	StartedAt          *time.Time    `json:"started_at,omitempty" db:"started_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

// Validate checks if the job is well formed.
func (j *ProcessingJob) Validate() error {
	if j.JobID == "" {
		return &ValidationError{Field: "job_id", Message: "job ID is required"}
	}
	if j.Filename == "" {
		return &ValidationError{Field: "filename", Message: "filename is required"}
	}
	if !j.Priority.IsValid() {
		return &ValidationError{Field: "priority", Message: "invalid priority: " + string(j.Priority)}
	}
	if !j.Status.IsValid() {
		return &ValidationError{Field: "status", Message: "invalid status: " + string(j.Status)}
	}
	if j.ProgressPercentage < 0 || j.ProgressPercentage > 100 {
		return &ValidationError{Field: "progress_percentage", Message: "progress must be between 0 and 100"}
	}
	return nil
}

// Duration returns the time the job has spent processing so far.
func (j *ProcessingJob) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.CompletedAt == nil {
		return time.Since(*j.StartedAt)
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// JobDTO is the API view of a processing job.
type JobDTO struct {
	JobID              string        `json:"job_id"`
	Filename           string        `json:"filename"`
	Status             string        `json:"status"`
	Priority           string        `json:"priority"`
	ProgressPercentage int           `json:"progress_percentage"`
	CurrentStep        string        `json:"current_step,omitempty"`
	StepsCompleted     []StepResult  `json:"steps_completed"`
	StepsFailed        []StepFailure `json:"steps_failed"`
	ErrorMessage       string        `json:"error_message,omitempty"`
	PaperID            string        `json:"paper_id,omitempty"`
	CreatedAt          string        `json:"created_at"`
	StartedAt          string        `json:"started_at,omitempty"`
	CompletedAt        string        `json:"completed_at,omitempty"`
}

// ToDTO converts a ProcessingJob to its API view.
func (j *ProcessingJob) ToDTO() JobDTO {
	dto := JobDTO{
		JobID:              j.JobID,
		Filename:           j.Filename,
		Status:             string(j.Status),
		Priority:           string(j.Priority),
		ProgressPercentage: j.ProgressPercentage,
		CurrentStep:        j.CurrentStep,
		StepsCompleted:     j.StepsCompleted,
		StepsFailed:        j.StepsFailed,
		ErrorMessage:       j.ErrorMessage,
		PaperID:            j.PaperID,
		CreatedAt:          j.CreatedAt.Format(time.RFC3339),
	}
	if dto.StepsCompleted == nil {
		dto.StepsCompleted = []StepResult{}
	}
	if dto.StepsFailed == nil {
		dto.StepsFailed = []StepFailure{}
	}
	if j.StartedAt != nil {
		dto.StartedAt = j.StartedAt.Format(time.RFC3339)
	}
	if j.CompletedAt != nil {
		dto.CompletedAt = j.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

// QueueStats summarizes the state of the job queue.
type QueueStats struct {
	Depth      int            `json:"depth"`
	Capacity   int            `json:"capacity"`
	ByPriority map[string]int `json:"by_priority"`
	ActiveJobs int            `json:"active_jobs"`
	Workers    int            `json:"workers"`
}
