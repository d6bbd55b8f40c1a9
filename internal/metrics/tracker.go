package metrics

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"paperbase/internal/models"
)

// sampleCapacity is 24 hours of 1 Hz system samples.
const sampleCapacity = 24 * 60 * 60

// SystemSample is one point-in-time resource reading. CPUPercent is process
// CPU time over wall time since the previous sample; the first sample reads
// zero.
type SystemSample struct {
	At            time.Time `json:"at"`
	CPUPercent    float64   `json:"cpu_percent"`
	HeapBytes     uint64    `json:"heap_bytes"`
	SysBytes      uint64    `json:"sys_bytes"`
	Goroutines    int       `json:"goroutines"`
	DiskFreeBytes uint64    `json:"disk_free_bytes"`
}

// stageStats is the rolling success tally of one pipeline stage.
type stageStats struct {
	Runs      int64   `json:"runs"`
	Successes int64   `json:"successes"`
	TotalSecs float64 `json:"total_seconds"`
}

// Tracker aggregates runtime health: per-stage success rates, terminal job
// counts, error taxonomy counts, and a ring buffer of system samples. It
// doubles as the job engine's observer and feeds the Prometheus collectors.
type Tracker struct {
	mu         sync.Mutex
	stages     map[string]*stageStats
	jobCounts  map[models.JobStatus]int64
	errCounts  map[models.Kind]int64
	accepted   int64
	samples    []SystemSample
	sampleHead int
	lastCPU    time.Duration
	lastCPUAt  time.Time
	dataDir    string
	startedAt  time.Time
}

// NewTracker creates a performance tracker. dataDir is where disk headroom
// is measured.
func NewTracker(dataDir string) *Tracker {
	return &Tracker{
		stages:    map[string]*stageStats{},
		jobCounts: map[models.JobStatus]int64{},
		errCounts: map[models.Kind]int64{},
		samples:   make([]SystemSample, 0, sampleCapacity),
		dataDir:   dataDir,
		startedAt: time.Now().UTC(),
	}
}

// JobAccepted implements jobs.Observer.
func (t *Tracker) JobAccepted(models.Priority) {
	t.mu.Lock()
	t.accepted++
	t.mu.Unlock()
}

// JobFinished implements jobs.Observer.
func (t *Tracker) JobFinished(status models.JobStatus, duration time.Duration) {
	t.mu.Lock()
	t.jobCounts[status]++
	t.mu.Unlock()

	JobsTotal.WithLabelValues(string(status)).Inc()
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		JobDuration.Observe(duration.Seconds())
	}
}

// StageObserved implements jobs.Observer.
func (t *Tracker) StageObserved(stage string, success bool, duration time.Duration) {
	t.mu.Lock()
	s, ok := t.stages[stage]
	if !ok {
		s = &stageStats{}
		t.stages[stage] = s
	}
	s.Runs++
	if success {
		s.Successes++
	}
	s.TotalSecs += duration.Seconds()
	t.mu.Unlock()

	outcome := "failure"
	if success {
		outcome = "success"
	}
	StageRuns.WithLabelValues(stage, outcome).Inc()
}

// ErrorObserved implements jobs.Observer.
func (t *Tracker) ErrorObserved(kind models.Kind) {
	t.mu.Lock()
	t.errCounts[kind]++
	t.mu.Unlock()
	ErrorsByKind.WithLabelValues(string(kind)).Inc()
}

// DuplicateObserved counts a resolved duplicate upload.
func (t *Tracker) DuplicateObserved(level int) {
	DuplicatesTotal.WithLabelValues(strconv.Itoa(level)).Inc()
}

// RunSampler records a system sample every second until ctx is done.
func (t *Tracker) RunSampler(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sample()
		}
	}
}

func (t *Tracker) sample() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s := SystemSample{
		At:         time.Now().UTC(),
		HeapBytes:  mem.HeapAlloc,
		SysBytes:   mem.Sys,
		Goroutines: runtime.NumGoroutine(),
	}
	var fs syscall.Statfs_t
	if err := syscall.Statfs(t.dataDir, &fs); err == nil {
		s.DiskFreeBytes = fs.Bavail * uint64(fs.Bsize)
	}

	cpu := processCPUTime()

	t.mu.Lock()
	if !t.lastCPUAt.IsZero() && cpu >= t.lastCPU {
		if wall := s.At.Sub(t.lastCPUAt).Seconds(); wall > 0 {
			s.CPUPercent = (cpu - t.lastCPU).Seconds() / wall * 100
		}
	}
	t.lastCPU, t.lastCPUAt = cpu, s.At
	if len(t.samples) < sampleCapacity {
		t.samples = append(t.samples, s)
	} else {
		t.samples[t.sampleHead] = s
		t.sampleHead = (t.sampleHead + 1) % sampleCapacity
	}
	t.mu.Unlock()
}

// processCPUTime reads cumulative user plus system CPU time of this process.
func processCPUTime() time.Duration {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	return time.Duration(ru.Utime.Nano() + ru.Stime.Nano())
}

// StageRate is the aggregate view of one stage.
type StageRate struct {
	Stage       string  `json:"stage"`
	Runs        int64   `json:"runs"`
	SuccessRate float64 `json:"success_rate"`
	AvgSeconds  float64 `json:"avg_seconds"`
}

// Snapshot is the aggregate view exported to the monitoring surface.
type Snapshot struct {
	UptimeSeconds float64                    `json:"uptime_seconds"`
	Accepted      int64                      `json:"accepted"`
	JobCounts     map[models.JobStatus]int64 `json:"job_counts"`
	ErrorCounts   map[models.Kind]int64      `json:"error_counts"`
	Stages        []StageRate                `json:"stages"`
	LatestSample  *SystemSample              `json:"latest_sample,omitempty"`
}

// Snapshot returns current aggregates.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(t.startedAt).Seconds(),
		Accepted:      t.accepted,
		JobCounts:     map[models.JobStatus]int64{},
		ErrorCounts:   map[models.Kind]int64{},
		Stages:        []StageRate{},
	}
	for k, v := range t.jobCounts {
		snap.JobCounts[k] = v
	}
	for k, v := range t.errCounts {
		snap.ErrorCounts[k] = v
	}
	for name, s := range t.stages {
		rate := StageRate{Stage: name, Runs: s.Runs}
		if s.Runs > 0 {
			rate.SuccessRate = float64(s.Successes) / float64(s.Runs)
			rate.AvgSeconds = s.TotalSecs / float64(s.Runs)
		}
		snap.Stages = append(snap.Stages, rate)
	}
	if n := len(t.samples); n > 0 {
		idx := (t.sampleHead + n - 1) % n
		latest := t.samples[idx]
		snap.LatestSample = &latest
	}
	return snap
}

// ExportJSON writes the snapshot as JSON.
func (t *Tracker) ExportJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t.Snapshot())
}

// ExportCSV writes the system sample ring as CSV, oldest first.
func (t *Tracker) ExportCSV(w io.Writer) error {
	t.mu.Lock()
	samples := make([]SystemSample, len(t.samples))
	n := len(t.samples)
	for i := 0; i < n; i++ {
		samples[i] = t.samples[(t.sampleHead+i)%n]
	}
	t.mu.Unlock()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"at", "cpu_percent", "heap_bytes", "sys_bytes", "goroutines", "disk_free_bytes"}); err != nil {
		return err
	}
	for _, s := range samples {
		rec := []string{
			s.At.Format(time.RFC3339),
			strconv.FormatFloat(s.CPUPercent, 'f', 2, 64),
			strconv.FormatUint(s.HeapBytes, 10),
			strconv.FormatUint(s.SysBytes, 10),
			strconv.Itoa(s.Goroutines),
			strconv.FormatUint(s.DiskFreeBytes, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	log.Debug().Int("samples", len(samples)).Msg("exported sample csv")
	return nil
}
