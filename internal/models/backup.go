package models

import (
	"time"
)

// BackupType identifies what a backup artifact contains.
type BackupType string

const (
	BackupTypeSnapshot    BackupType = "snapshot"
	BackupTypeFull        BackupType = "full"
	BackupTypeIncremental BackupType = "incremental"
	BackupTypeUnified     BackupType = "unified"
)

// IsValid checks if the backup type is recognized.
func (t BackupType) IsValid() bool {
	switch t {
	case BackupTypeSnapshot, BackupTypeFull, BackupTypeIncremental, BackupTypeUnified:
		return true
	default:
		return false
	}
}

// BackupStatus marks the outcome of a backup run or verification.
type BackupStatus string

const (
	BackupStatusCompleted BackupStatus = "completed"
	BackupStatusFailed    BackupStatus = "failed"
)

// BackupSource names the store a backup was taken from.
type BackupSource string

const (
	BackupSourceSQLite  BackupSource = "sqlite"
	BackupSourceChroma  BackupSource = "chromadb"
	BackupSourceUnified BackupSource = "unified"
)

// BackupRecord describes one backup artifact and its verification checksum.
type BackupRecord struct {
	BackupID   string       `json:"backup_id" db:"backup_id"`
	Type       BackupType   `json:"type" db:"type"`
	Timestamp  time.Time    `json:"timestamp" db:"timestamp"`
	SizeBytes  int64        `json:"size_bytes" db:"size_bytes"`
	Checksum   string       `json:"checksum" db:"checksum"`
	Status     BackupStatus `json:"status" db:"status"`
	ExpireDate time.Time    `json:"expire_date" db:"expire_date"`
	Source     BackupSource `json:"source" db:"source"`
	Path       string       `json:"path" db:"path"`
}

// BreakerStateName is one of the three circuit breaker states.
type BreakerStateName string

const (
	BreakerClosed   BreakerStateName = "closed"
	BreakerOpen     BreakerStateName = "open"
	BreakerHalfOpen BreakerStateName = "half_open"
)

// BreakerState is a point-in-time snapshot of one service's circuit breaker.
type BreakerState struct {
	Service       string           `json:"service"`
	State         BreakerStateName `json:"state"`
	FailureCount  int              `json:"failure_count"`
	SuccessCount  int              `json:"success_count"`
	TotalCalls    int64            `json:"total_calls"`
	TotalFailures int64            `json:"total_failures"`
	LastError     string           `json:"last_error,omitempty"`
	OpenedAt      *time.Time       `json:"opened_at,omitempty"`
}

// IssueClass labels one of the seven relational/vector discrepancy classes
// the consistency checker can detect.
type IssueClass int

const (
	IssuePaperWithoutVector   IssueClass = 1
	IssueVectorWithoutPaper   IssueClass = 2
	IssuePageCountMismatch    IssueClass = 3
	IssueDimMismatch          IssueClass = 4
	IssueContentIDNoVector    IssueClass = 5
	IssueDuplicateContentID   IssueClass = 6
	IssuePendingVectorSyncSet IssueClass = 7
)

// IssueSeverity grades a consistency issue.
type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

// ConsistencyIssue is one detected discrepancy between the two stores.
type ConsistencyIssue struct {
	Class    IssueClass    `json:"class"`
	Severity IssueSeverity `json:"severity"`
	DocID    string        `json:"doc_id,omitempty"`
	Detail   string        `json:"detail"`
	AutoFix  bool          `json:"auto_fixable"`
}

// ConsistencyReport is the result of a full cross-store check.
type ConsistencyReport struct {
	CheckedPapers  int                `json:"checked_papers"`
	CheckedVectors int                `json:"checked_vectors"`
	Issues         []ConsistencyIssue `json:"issues"`
	ReadinessScore float64            `json:"readiness_score"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
}
