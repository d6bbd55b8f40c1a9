package adapters

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"paperbase/internal/config"
	"paperbase/internal/models"
)

// CircuitBreaker guards one external service. Failures inside a rolling
// window trip it open; after the open duration a single probe call decides
// whether it closes again.
type CircuitBreaker struct {
	service string
	cfg     config.CircuitConfig

	mu            sync.Mutex
	state         models.BreakerStateName
	failures      []time.Time
	successCount  int
	totalCalls    int64
	totalFailures int64
	lastError     string
	openedAt      time.Time
	probing       bool
	now           func() time.Time
}

// NewCircuitBreaker creates a closed breaker for the named service.
func NewCircuitBreaker(service string, cfg config.CircuitConfig) *CircuitBreaker {
	return &CircuitBreaker{
		service: service,
		cfg:     cfg,
		state:   models.BreakerClosed,
		now:     time.Now,
	}
}

// Allow reports whether a call may proceed. In the open state it returns
// false until the open duration elapses; then exactly one caller gets
// through as the half-open probe.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.BreakerClosed:
		return true
	case models.BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenDuration {
			return false
		}
		b.state = models.BreakerHalfOpen
		b.probing = true
		log.Info().Str("service", b.service).Msg("circuit breaker half-open, probing")
		return true
	case models.BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// RecordSuccess reports a successful call.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == models.BreakerHalfOpen {
		// A successful probe closes the breaker and starts a fresh counting
		// cycle; the probe itself is the first call of that cycle.
		b.state = models.BreakerClosed
		b.failures = nil
		b.probing = false
		b.lastError = ""
		b.successCount = 1
		b.totalCalls = 1
		b.totalFailures = 0
		log.Info().Str("service", b.service).Msg("circuit breaker closed")
		return
	}

	b.totalCalls++
	b.successCount++
}

// RecordFailure reports a failed call. Enough failures inside the rolling
// window trip the breaker; a failed probe reopens it immediately.
func (b *CircuitBreaker) RecordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.totalCalls++
	b.totalFailures++
	if err != nil {
		b.lastError = err.Error()
	}

	if b.state == models.BreakerHalfOpen {
		b.open(now)
		return
	}

	b.failures = append(b.failures, now)
	b.pruneLocked(now)
	if b.state == models.BreakerClosed && len(b.failures) >= b.cfg.FailureThreshold {
		b.open(now)
	}
}

// State returns a point-in-time snapshot.
func (b *CircuitBreaker) State() models.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneLocked(b.now())
	snap := models.BreakerState{
		Service:       b.service,
		State:         b.state,
		FailureCount:  len(b.failures),
		SuccessCount:  b.successCount,
		TotalCalls:    b.totalCalls,
		TotalFailures: b.totalFailures,
		LastError:     b.lastError,
	}
	if b.state != models.BreakerClosed {
		opened := b.openedAt
		snap.OpenedAt = &opened
	}
	return snap
}

func (b *CircuitBreaker) open(now time.Time) {
	b.state = models.BreakerOpen
	b.openedAt = now
	b.failures = nil
	b.probing = false
	log.Warn().Str("service", b.service).Str("last_error", b.lastError).Msg("circuit breaker opened")
}

func (b *CircuitBreaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}
