package jobs

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"paperbase/internal/config"
	"paperbase/internal/models"
	"paperbase/internal/pipeline"
	"paperbase/internal/repositories"
)

// Observer receives job lifecycle events, used by the performance tracker.
type Observer interface {
	JobAccepted(priority models.Priority)
	JobFinished(status models.JobStatus, duration time.Duration)
	StageObserved(stage string, success bool, duration time.Duration)
	ErrorObserved(kind models.Kind)
	DuplicateObserved(level int)
}

// Engine owns the job queue and the worker pool. Jobs belong to the engine
// until terminal; everything else reads status through it.
type Engine struct {
	cfg      config.EngineConfig
	queue    *Queue
	repo     repositories.JobRepository
	mirror   *repositories.RedisJobMirror
	pipe     *pipeline.Orchestrator
	observer Observer

	mu     sync.Mutex
	active map[string]context.CancelFunc

	// pauseMu is held for reading while a job runs. Pause takes the write
	// side, so it blocks until in-flight jobs drain and keeps workers from
	// starting new ones until Resume.
	pauseMu sync.RWMutex

	wg   sync.WaitGroup
	stop chan struct{}
	now  func() time.Time
}

// NewEngine creates a job engine. The mirror and observer may be nil.
func NewEngine(cfg config.EngineConfig, repo repositories.JobRepository, mirror *repositories.RedisJobMirror, pipe *pipeline.Orchestrator, observer Observer) *Engine {
	return &Engine{
		cfg:      cfg,
		queue:    NewQueue(cfg.MaxQueueSize),
		repo:     repo,
		mirror:   mirror,
		pipe:     pipe,
		observer: observer,
		active:   map[string]context.CancelFunc{},
		stop:     make(chan struct{}),
		now:      time.Now,
	}
}

// Start recovers persisted jobs, launches the workers, and starts the
// retention sweeper.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.recover(ctx); err != nil {
		return err
	}

	workers := e.cfg.MaxConcurrent
	if workers <= 0 {
		workers = 3
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}

	e.wg.Add(1)
	go e.sweeper()

	log.Info().Int("workers", workers).Int("queue_capacity", e.queue.Capacity()).
		Msg("job engine started")
	return nil
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (e *Engine) Stop() {
	close(e.stop)
	e.queue.Close()
	e.wg.Wait()
	log.Info().Msg("job engine stopped")
}

// Submit accepts an upload into the queue. A full queue rejects with a
// queue_full error; nothing is persisted in that case.
func (e *Engine) Submit(ctx context.Context, filename string, priority models.Priority, uploadPath, sourceIP string) (*models.ProcessingJob, error) {
	if !priority.IsValid() {
		priority = models.PriorityNormal
	}

	job := &models.ProcessingJob{
		JobID:      uuid.New().String(),
		Filename:   filename,
		Priority:   priority,
		Status:     models.JobStatusQueued,
		UploadPath: uploadPath,
		SourceIP:   sourceIP,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.repo.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := e.queue.Push(job.JobID, priority); err != nil {
		job.Status = models.JobStatusFailed
		job.ErrorKind = models.KindOf(err)
		job.ErrorMessage = err.Error()
		completed := e.now().UTC()
		job.CompletedAt = &completed
		_ = e.repo.Update(ctx, job)
		return nil, err
	}

	e.mirrorJob(ctx, job)
	if e.observer != nil {
		e.observer.JobAccepted(priority)
	}
	log.Info().Str("job_id", job.JobID).Str("priority", string(priority)).
		Str("filename", filename).Msg("job queued")
	return job, nil
}

// Status returns the API view of a job, preferring the Redis mirror.
func (e *Engine) Status(ctx context.Context, jobID string) (*models.JobDTO, error) {
	if e.mirror != nil {
		if dto, err := e.mirror.Get(ctx, jobID); err == nil {
			return dto, nil
		}
	}
	job, err := e.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	dto := job.ToDTO()
	return &dto, nil
}

// List proxies the repository listing.
func (e *Engine) List(ctx context.Context, status models.JobStatus, limit int) ([]models.ProcessingJob, error) {
	return e.repo.List(ctx, status, limit)
}

// Cancel cancels a job that has not started processing. Jobs already
// processing or terminal are not cancellable.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	job, err := e.repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.Cancellable() {
		return models.Errorf(models.KindInvalidInput, "engine",
			"job in status %s cannot be cancelled", job.Status)
	}

	e.queue.Remove(jobID)
	job.Status = models.JobStatusCancelled
	completed := e.now().UTC()
	job.CompletedAt = &completed
	if err := e.repo.Update(ctx, job); err != nil {
		return err
	}
	e.mirrorJob(ctx, job)
	if e.observer != nil {
		e.observer.JobFinished(models.JobStatusCancelled, job.Duration())
	}
	log.Info().Str("job_id", jobID).Msg("job cancelled")
	return nil
}

// Stats snapshots the queue and worker state.
func (e *Engine) Stats() models.QueueStats {
	e.mu.Lock()
	activeCount := len(e.active)
	e.mu.Unlock()

	return models.QueueStats{
		Depth:      e.queue.Depth(),
		Capacity:   e.queue.Capacity(),
		ByPriority: e.queue.ByPriority(),
		ActiveJobs: activeCount,
		Workers:    e.cfg.MaxConcurrent,
	}
}

func (e *Engine) worker(id int) {
	defer e.wg.Done()
	for {
		jobID, ok := e.queue.Pop()
		if !ok {
			return
		}
		e.pauseMu.RLock()
		e.runJob(jobID, id)
		e.pauseMu.RUnlock()
	}
}

// Pause waits for in-flight jobs to finish and holds workers idle. Used
// while a restore replaces the stores underneath the pipeline.
func (e *Engine) Pause() {
	e.pauseMu.Lock()
}

// Resume releases workers paused by Pause.
func (e *Engine) Resume() {
	e.pauseMu.Unlock()
}

func (e *Engine) runJob(jobID string, workerID int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, err := e.repo.Get(ctx, jobID)
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("dequeued job missing")
		return
	}
	// A cancel can land between queue removal races; skip quietly.
	if job.Status != models.JobStatusQueued {
		return
	}

	e.mu.Lock()
	e.active[jobID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, jobID)
		e.mu.Unlock()
	}()

	started := e.now().UTC()
	job.Status = models.JobStatusProcessing
	job.StartedAt = &started
	_ = e.repo.Update(ctx, job)
	e.mirrorJob(ctx, job)

	log.Info().Str("job_id", jobID).Int("worker", workerID).Str("filename", job.Filename).
		Msg("job processing started")

	result, procErr := e.processGuarded(ctx, job)

	completed := e.now().UTC()
	job.CompletedAt = &completed
	job.CurrentStep = ""

	if procErr != nil {
		job.Status = models.JobStatusFailed
		job.ErrorKind = models.KindOf(procErr)
		job.ErrorMessage = procErr.Error()
		if e.observer != nil {
			e.observer.ErrorObserved(job.ErrorKind)
		}
		log.Error().Err(procErr).Str("job_id", jobID).Str("kind", string(job.ErrorKind)).
			Msg("job failed")
	} else {
		job.Status = models.JobStatusCompleted
		job.ProgressPercentage = 100
		job.StepsCompleted = result.StepsCompleted
		job.StepsFailed = result.StepsFailed
		if result.Duplicate != nil {
			job.PaperID = result.Duplicate.DocID
			job.ErrorMessage = ""
		} else {
			job.PaperID = result.DocID
		}
		log.Info().Str("job_id", jobID).Str("paper_id", job.PaperID).
			Dur("duration", job.Duration()).Msg("job completed")
	}

	_ = e.repo.Update(ctx, job)
	e.mirrorJob(ctx, job)
	if e.observer != nil {
		if result != nil {
			for _, step := range result.StepsCompleted {
				e.observer.StageObserved(step.Name, true, time.Duration(step.DurationS*float64(time.Second)))
			}
			for _, step := range result.StepsFailed {
				e.observer.StageObserved(step.Name, false, 0)
			}
			if result.Duplicate != nil {
				e.observer.DuplicateObserved(result.Duplicate.Level)
			}
		}
		e.observer.JobFinished(job.Status, job.Duration())
	}
}

// processGuarded runs the pipeline, converting a panic into an internal
// error so one bad job never takes a worker down.
func (e *Engine) processGuarded(ctx context.Context, job *models.ProcessingJob) (result *pipeline.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = models.Errorf(models.KindInternal, "engine", "pipeline panic: %v", rec)
			log.Error().Str("job_id", job.JobID).Interface("panic", rec).
				Bytes("stack", debug.Stack()).Msg("pipeline panicked")
		}
	}()
	return e.pipe.Process(ctx, job, func(step string, percent int) {
		job.CurrentStep = step
		job.ProgressPercentage = percent
		_ = e.repo.Update(ctx, job)
		e.mirrorJob(ctx, job)
	})
}

// recover re-queues persisted non-terminal jobs after a restart. Jobs that
// were mid-processing when the process died cannot resume and fail.
func (e *Engine) recover(ctx context.Context) error {
	jobs, err := e.repo.ListNonTerminal(ctx)
	if err != nil {
		return err
	}
	for i := range jobs {
		job := &jobs[i]
		switch job.Status {
		case models.JobStatusUploaded, models.JobStatusQueued:
			job.Status = models.JobStatusQueued
			if err := e.queue.Push(job.JobID, job.Priority); err != nil {
				job.Status = models.JobStatusFailed
				job.ErrorKind = models.KindQueueFull
				job.ErrorMessage = "queue full during recovery"
				completed := e.now().UTC()
				job.CompletedAt = &completed
			}
		case models.JobStatusProcessing:
			job.Status = models.JobStatusFailed
			job.ErrorKind = models.KindInternal
			job.ErrorMessage = "interrupted by restart"
			completed := e.now().UTC()
			job.CompletedAt = &completed
		}
		if err := e.repo.Update(ctx, job); err != nil {
			return err
		}
		e.mirrorJob(ctx, job)
	}
	if len(jobs) > 0 {
		log.Info().Int("jobs", len(jobs)).Msg("recovered persisted jobs")
	}
	return nil
}

// sweeper periodically deletes terminal jobs past retention.
func (e *Engine) sweeper() {
	defer e.wg.Done()
	interval := e.cfg.SweepInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			cutoff := e.now().UTC().AddDate(0, 0, -e.cfg.JobRetentionDays)
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			n, err := e.repo.DeleteTerminalOlderThan(ctx, cutoff)
			cancel()
			if err != nil {
				log.Error().Err(err).Msg("job sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("removed", n).Msg("swept expired jobs")
			}
		}
	}
}

func (e *Engine) mirrorJob(ctx context.Context, job *models.ProcessingJob) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.Put(ctx, job); err != nil {
		log.Debug().Err(err).Str("job_id", job.JobID).Msg("job mirror write failed")
	}
}
