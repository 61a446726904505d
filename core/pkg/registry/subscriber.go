// Package registry holds the three read-mostly lookup tables the
// processor consults on every dispatch: which handler(s) a request type
// maps to, which resilience policy a producer uses, and which producer a
// routing key maps to.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/madcok-co/conduit/core/pkg/rterrors"
)

// Multiplicity distinguishes single-handler Send targets from
// fan-out Publish targets.
type Multiplicity int

const (
	// One is Send's multiplicity: exactly one handler type is registered
	// for the request type, and HandlerTypes fails closed if more than one is.
	One Multiplicity = iota
	// Many is Publish's multiplicity: any number of handler types may be
	// registered for the request type.
	Many
)

type subscriberEntry struct {
	multiplicity Multiplicity
	handlerTypes []string
}

// SubscriberRegistry maps a request type to the handler type(s) that
// handle it, generalizing the teacher's route/topic indices in
// handler.Registry.
type SubscriberRegistry struct {
	mu      sync.RWMutex
	entries map[string]*subscriberEntry
}

// NewSubscriberRegistry returns an empty registry.
func NewSubscriberRegistry() *SubscriberRegistry {
	return &SubscriberRegistry{entries: make(map[string]*subscriberEntry)}
}

// RegisterOne associates requestType with a single handler type, for
// Send dispatch. Registering a second handler type for the same request
// type under One is a configuration error raised by HandlerTypes, not here,
// so call sites can register in any order.
func (s *SubscriberRegistry) RegisterOne(requestType, handlerType string) {
	s.register(requestType, handlerType, One)
}

// RegisterMany adds handlerType to the fan-out set for requestType, for
// Publish dispatch.
func (s *SubscriberRegistry) RegisterMany(requestType, handlerType string) {
	s.register(requestType, handlerType, Many)
}

func (s *SubscriberRegistry) register(requestType, handlerType string, m Multiplicity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[requestType]
	if !ok {
		e = &subscriberEntry{multiplicity: m}
		s.entries[requestType] = e
	}
	e.multiplicity = m
	e.handlerTypes = append(e.handlerTypes, handlerType)
}

// HandlerTypes returns the handler types registered for requestType under
// the given multiplicity, erroring for One if more than one is
// registered (ambiguous Send target) or if none are (unroutable request).
func (s *SubscriberRegistry) HandlerTypes(requestType string, want Multiplicity) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[requestType]
	if !ok || len(e.handlerTypes) == 0 {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("no handler registered for request type %q", requestType), nil)
	}
	if want == One && len(e.handlerTypes) > 1 {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("request type %q has %d handlers registered, Send requires exactly one",
				requestType, len(e.handlerTypes)), nil)
	}
	out := make([]string, len(e.handlerTypes))
	copy(out, e.handlerTypes)
	sort.Strings(out)
	return out, nil
}

// RequestTypes returns every request type with at least one registration,
// sorted for deterministic iteration (diagnostics, admin listing).
func (s *SubscriberRegistry) RequestTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for rt := range s.entries {
		out = append(out, rt)
	}
	sort.Strings(out)
	return out
}
