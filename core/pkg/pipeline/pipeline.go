// Package pipeline builds the per-request-type handler chain: ordered
// middleware wrapping a single target handler, generalizing the
// teacher's handler.Handler + handler.Executor + middleware.Chain for a
// non-HTTP, request-type-keyed dispatch target.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/madcok-co/conduit/core/pkg/registry"
	"github.com/madcok-co/conduit/core/pkg/request"
	"github.com/madcok-co/conduit/core/pkg/rterrors"
)

// Handler is the terminal target of a chain: the user's business logic
// for one handler type.
type Handler interface {
	Handle(ctx context.Context, req *request.Request) (any, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, req *request.Request) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, req *request.Request) (any, error) {
	return f(ctx, req)
}

// Executor is the signature every decorator wraps: next in the chain.
type Executor func(ctx context.Context, req *request.Request) (any, error)

// Middleware wraps an Executor to produce a decorated Executor.
type Middleware func(next Executor) Executor

// Timing places a middleware relative to the handler: Before runs
// ascending by StepIndex, After runs descending by StepIndex.
type Timing int

const (
	Before Timing = iota
	After
)

// Descriptor registers one piece of middleware at a step index and
// timing for a specific handler type.
type Descriptor struct {
	StepIndex  int
	Timing     Timing
	Name       string
	Middleware Middleware
}

// HandlerFactory resolves a handler type to its Handler implementation.
// Builder calls it on every Dispatch, so the factory may
// construct handlers with per-request scoped dependencies.
type HandlerFactory func(handlerType string) (Handler, error)

// ChainDescription is the cached, ordered plan for one handler type:
// which middleware run before/after in what order, and the resolved
// target. Building a new Executor instance per dispatch (rather than
// caching the Executor itself) is required because decorators like
// retry/circuit-breaker/inbox carry per-call state.
type ChainDescription struct {
	HandlerType string
	Before      []Descriptor
	After       []Descriptor
}

// Builder holds the registries a Build needs: which handler type(s)
// answer a request type, and how to construct a Handler.
type Builder struct {
	subscribers *registry.SubscriberRegistry
	factory     HandlerFactory

	mu          sync.Mutex
	descriptors map[string][]Descriptor // keyed by handler type
	cache       sync.Map                // handlerType -> *ChainDescription
}

// NewBuilder returns a Builder over the given subscriber registry and
// handler factory.
func NewBuilder(subscribers *registry.SubscriberRegistry, factory HandlerFactory) *Builder {
	return &Builder{
		subscribers: subscribers,
		factory:     factory,
		descriptors: make(map[string][]Descriptor),
	}
}

// Use registers middleware for handlerType. Call before the first Build
// for that handler type; Build's cache means later calls have no effect
// on already-built descriptions.
func (b *Builder) Use(handlerType string, d ...Descriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.descriptors[handlerType] = append(b.descriptors[handlerType], d...)
}

// Build returns the cached ChainDescription for handlerType, constructing
// and ordering it on first access. Duplicate (StepIndex, Timing) pairs
// for the same handler type are a configuration error.
func (b *Builder) Build(handlerType string) (*ChainDescription, error) {
	if v, ok := b.cache.Load(handlerType); ok {
		return v.(*ChainDescription), nil
	}

	b.mu.Lock()
	raw := append([]Descriptor(nil), b.descriptors[handlerType]...)
	b.mu.Unlock()

	before := make([]Descriptor, 0, len(raw))
	after := make([]Descriptor, 0, len(raw))
	for _, d := range raw {
		if d.Timing == Before {
			before = append(before, d)
		} else {
			after = append(after, d)
		}
	}

	if err := checkDuplicates(before); err != nil {
		return nil, err
	}
	if err := checkDuplicates(after); err != nil {
		return nil, err
	}

	sort.SliceStable(before, func(i, j int) bool { return before[i].StepIndex < before[j].StepIndex })
	sort.SliceStable(after, func(i, j int) bool { return after[i].StepIndex > after[j].StepIndex })

	desc := &ChainDescription{HandlerType: handlerType, Before: before, After: after}
	actual, _ := b.cache.LoadOrStore(handlerType, desc)
	return actual.(*ChainDescription), nil
}

func checkDuplicates(descs []Descriptor) error {
	seen := make(map[int]bool, len(descs))
	for _, d := range descs {
		if seen[d.StepIndex] {
			return rterrors.NewConfigurationError(
				fmt.Sprintf("duplicate middleware step index %d", d.StepIndex), nil)
		}
		seen[d.StepIndex] = true
	}
	return nil
}

// Dispatch builds (or loads from cache) the chain for an already-resolved
// handlerType, constructs its handler, and invokes it. Send (registry.One) calls this with
// exactly one handler type resolved by the caller; Publish (registry.Many)
// calls it once per fanned-out handler type.
func (b *Builder) Dispatch(ctx context.Context, handlerType string, req *request.Request) (any, error) {
	desc, err := b.Build(handlerType)
	if err != nil {
		return nil, err
	}
	h, err := b.factory(handlerType)
	if err != nil {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("no handler constructed for handler type %q", handlerType), err)
	}

	exec := Executor(h.Handle)
	for i := 0; i < len(desc.After); i++ {
		exec = desc.After[i].Middleware(exec)
	}
	for i := len(desc.Before) - 1; i >= 0; i-- {
		exec = desc.Before[i].Middleware(exec)
	}
	return exec(ctx, req)
}

// Clear empties the chain cache; for tests only.
func (b *Builder) Clear() {
	b.cache.Range(func(key, _ any) bool {
		b.cache.Delete(key)
		return true
	})
}
