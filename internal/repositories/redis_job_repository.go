package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"paperbase/internal/db"
	"paperbase/internal/models"
)

// RedisJobMirror keeps a read-optimized copy of job status in Redis so
// status polling does not hit SQLite. The relational store stays
// authoritative; mirror writes are best effort.
type RedisJobMirror struct {
	client *db.RedisClient
	ttl    time.Duration
}

// NewRedisJobMirror creates a job-status mirror. Entries expire after ttl.
func NewRedisJobMirror(client *db.RedisClient, ttl time.Duration) *RedisJobMirror {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &RedisJobMirror{client: client, ttl: ttl}
}

// Put mirrors the job's API view.
func (m *RedisJobMirror) Put(ctx context.Context, job *models.ProcessingJob) error {
	data, err := json.Marshal(job.ToDTO())
	if err != nil {
		return NewRepositoryError("encode job mirror", job.JobID, err)
	}
	if err := m.client.Set(ctx, jobMirrorKey(job.JobID), data, m.ttl); err != nil {
		return NewRepositoryError("write job mirror", job.JobID, err)
	}
	return nil
}

// Get reads a mirrored job view. A miss returns a NotFoundError; the caller
// falls back to the relational store.
func (m *RedisJobMirror) Get(ctx context.Context, jobID string) (*models.JobDTO, error) {
	data, err := m.client.Get(ctx, jobMirrorKey(jobID))
	if errors.Is(err, redis.Nil) {
		return nil, &NotFoundError{Entity: "job mirror", Key: jobID}
	}
	if err != nil {
		return nil, NewRepositoryError("read job mirror", jobID, err)
	}
	var dto models.JobDTO
	if err := json.Unmarshal([]byte(data), &dto); err != nil {
		return nil, NewRepositoryError("decode job mirror", jobID, err)
	}
	return &dto, nil
}

// Delete drops a mirrored entry.
func (m *RedisJobMirror) Delete(ctx context.Context, jobID string) error {
	return m.client.Del(ctx, jobMirrorKey(jobID))
}

func jobMirrorKey(jobID string) string {
	return "job:status:" + jobID
}
