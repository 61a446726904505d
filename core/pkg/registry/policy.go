package registry

import (
	"context"
	"sync"

	"github.com/madcok-co/conduit/core/pkg/resilience"
)

// Well-known policy names pre-seeded by NewPolicyRegistry. Callers may
// register additional named policies for per-producer tuning.
const (
	RetryPolicy         = "RETRYPOLICY"
	RetryPolicyAsync    = "RETRYPOLICYASYNC"
	CircuitBreakerPolicy      = "CIRCUITBREAKER"
	CircuitBreakerPolicyAsync = "CIRCUITBREAKERASYNC"
)

// Policy composes a retryer and/or a circuit breaker. Execute applies
// retry-inside-breaker: a single call against the breaker wraps the full
// set of retry attempts, so an open breaker fails fast without burning a
// retry budget, and a flaky-but-closed breaker still gets retried.
type Policy struct {
	Retryer *resilience.Retryer
	Breaker *resilience.CircuitBreaker
}

// Execute runs fn under this policy's configured retry/breaker
// composition. A Policy with neither set runs fn directly.
func (p *Policy) Execute(fn func() error) error {
	switch {
	case p.Breaker != nil && p.Retryer != nil:
		return p.Breaker.ExecuteWithRetry(p.Retryer, fn)
	case p.Breaker != nil:
		return p.Breaker.Execute(fn)
	case p.Retryer != nil:
		return p.Retryer.Do(fn)
	default:
		return fn()
	}
}

// ExecuteWithContext is Execute's context-aware counterpart.
func (p *Policy) ExecuteWithContext(ctx context.Context, fn func(context.Context) error) error {
	switch {
	case p.Breaker != nil && p.Retryer != nil:
		return p.Breaker.ExecuteWithRetryContext(ctx, p.Retryer, fn)
	case p.Breaker != nil:
		return p.Breaker.ExecuteWithContext(ctx, fn)
	case p.Retryer != nil:
		return p.Retryer.DoWithContext(ctx, fn)
	default:
		return fn(ctx)
	}
}

// PolicyRegistry maps a policy name to a Policy. The four well-known
// names are pre-seeded with defaults at construction; producers may be
// bound to one of those or to a custom-named policy registered later.
type PolicyRegistry struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	breakers *resilience.CircuitBreakerRegistry
}

// NewPolicyRegistry returns a registry pre-seeded with the four
// well-known policy names, each using resilience's default configs.
func NewPolicyRegistry() *PolicyRegistry {
	breakers := resilience.NewCircuitBreakerRegistry(resilience.DefaultCircuitBreakerConfig())
	r := &PolicyRegistry{
		policies: make(map[string]*Policy),
		breakers: breakers,
	}
	r.policies[RetryPolicy] = &Policy{Retryer: resilience.NewRetryer(resilience.DefaultRetryConfig())}
	r.policies[RetryPolicyAsync] = &Policy{Retryer: resilience.NewRetryer(resilience.DefaultRetryConfig())}
	r.policies[CircuitBreakerPolicy] = &Policy{
		Retryer: resilience.NewRetryer(resilience.DefaultRetryConfig()),
		Breaker: breakers.GetOrCreate(CircuitBreakerPolicy, resilience.DefaultCircuitBreakerConfig()),
	}
	r.policies[CircuitBreakerPolicyAsync] = &Policy{
		Retryer: resilience.NewRetryer(resilience.DefaultRetryConfig()),
		Breaker: breakers.GetOrCreate(CircuitBreakerPolicyAsync, resilience.DefaultCircuitBreakerConfig()),
	}
	return r
}

// Register installs or overwrites a named policy.
func (r *PolicyRegistry) Register(name string, p *Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[name] = p
}

// Get returns the named policy, or nil if unregistered.
func (r *PolicyRegistry) Get(name string) *Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policies[name]
}

// Breakers exposes the shared circuit-breaker registry so producer
// bindings can register additional per-name breakers sharing the same
// double-checked-locking Get/GetOrCreate semantics.
func (r *PolicyRegistry) Breakers() *resilience.CircuitBreakerRegistry {
	return r.breakers
}
