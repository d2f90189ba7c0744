package gateway

import (
	"time"

	"github.com/cassiomorais/chargegate/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// Result is the type flowing through the per-provider circuit breaker. Each
// operation wraps its outcome in one of these fields.
type Result struct {
	Authorise *AuthoriseOutcome
	Capture   *CaptureOutcome
	Cancel    *CancelOutcome
	Refund    *RefundOutcome
	Query     *QueryOutcome
}

// Registry holds the configured providers, keyed by name, each behind its
// own circuit breaker so one misbehaving gateway cannot take out the rest.
type Registry struct {
	providers       map[string]Provider
	circuitBreakers map[string]*gobreaker.CircuitBreaker[*Result]
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{
		providers:       make(map[string]Provider),
		circuitBreakers: make(map[string]*gobreaker.CircuitBreaker[*Result]),
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
	r.circuitBreakers[p.Name()] = gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	})
}

// Get returns the provider and its circuit breaker by name.
func (r *Registry) Get(name string) (Provider, *gobreaker.CircuitBreaker[*Result], error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, nil, errors.NewDomainError(
			"provider_not_found",
			"no provider registered under "+name,
			errors.ErrProviderNotFound,
		)
	}
	return p, r.circuitBreakers[name], nil
}

// Names lists the registered provider names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}
