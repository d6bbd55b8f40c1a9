package adapters

import (
	"paperbase/internal/config"
	"paperbase/internal/models"
)

// Service names of the breaker-guarded externals.
const (
	ServiceQuality  = "quality_scorer"
	ServiceLayout   = "layout_analyzer"
	ServiceLLM      = "llm"
	ServiceEmbedder = "remote_embedder"
)

// Registry owns one circuit breaker per guarded external service. The OCR
// engine is not guarded; its calls are long-running and bounded only by the
// per-call timeout.
type Registry struct {
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates breakers for every guarded service.
func NewRegistry(cfg config.CircuitConfig) *Registry {
	services := []string{ServiceQuality, ServiceLayout, ServiceLLM, ServiceEmbedder}
	breakers := make(map[string]*CircuitBreaker, len(services))
	for _, s := range services {
		breakers[s] = NewCircuitBreaker(s, cfg)
	}
	return &Registry{breakers: breakers}
}

// Breaker returns the breaker for a service, or nil if the service is not
// guarded.
func (r *Registry) Breaker(service string) *CircuitBreaker {
	return r.breakers[service]
}

// States snapshots every breaker, keyed by service name.
func (r *Registry) States() map[string]models.BreakerState {
	out := make(map[string]models.BreakerState, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
