package registry

import (
	"fmt"
	"sync"

	"github.com/madcok-co/conduit/core/pkg/contracts"
	"github.com/madcok-co/conduit/core/pkg/rterrors"
)

// ProducerRegistry maps a routing key to the Producer binding that sends
// outbound messages carrying it, generalizing the teacher's per-topic
// handler index.
type ProducerRegistry struct {
	mu        sync.RWMutex
	producers map[string]contracts.Producer
	// policy pins a routing key to a named Policy, looked up from
	// PolicyRegistry at dispatch time. A routing key with no pinned
	// policy falls back to RetryPolicy.
	policy map[string]string
}

// NewProducerRegistry returns an empty registry.
func NewProducerRegistry() *ProducerRegistry {
	return &ProducerRegistry{
		producers: make(map[string]contracts.Producer),
		policy:    make(map[string]string),
	}
}

// Register binds routingKey to a producer, optionally pinning it to a
// named policy (see registry.RetryPolicy and friends). Passing an empty
// policyName leaves the routing key on the default RetryPolicy.
func (r *ProducerRegistry) Register(routingKey string, p contracts.Producer, policyName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[routingKey] = p
	if policyName != "" {
		r.policy[routingKey] = policyName
	}
}

// Resolve returns the producer and policy name bound to routingKey.
func (r *ProducerRegistry) Resolve(routingKey string) (contracts.Producer, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[routingKey]
	if !ok {
		return nil, "", rterrors.NewConfigurationError(
			fmt.Sprintf("no producer registered for routing key %q", routingKey), nil)
	}
	policyName := r.policy[routingKey]
	if policyName == "" {
		policyName = RetryPolicy
	}
	return p, policyName, nil
}
