// Package transform builds the wrap/unwrap pipeline that turns a Request
// into a wire Message and back. Transforms are discovered via static
// Descriptor registration at program-init time, not runtime reflection —
// the Go-idiomatic replacement for the attribute-scanning approach the
// distilled spec describes.
package transform

import (
	"fmt"
	"sort"
	"sync"

	"github.com/madcok-co/conduit/core/pkg/message"
	"github.com/madcok-co/conduit/core/pkg/request"
	"github.com/madcok-co/conduit/core/pkg/rterrors"
)

// Transform mutates headers/body on the way out (Wrap) or the way in
// (Unwrap): compression, claim-check substitution, encryption, schema
// versioning.
type Transform interface {
	Wrap(h *message.Header, body []byte) ([]byte, error)
	Unwrap(h *message.Header, body []byte) ([]byte, error)
	Name() string
}

// Mapper converts between a Request's Body and the wire byte payload.
// Exactly one mapper applies per request type; it runs innermost on Wrap
// (closest to the raw body) and last on Unwrap.
type Mapper interface {
	MapToBytes(body any) ([]byte, error)
	MapFromBytes(data []byte) (any, error)
	Name() string
}

// Descriptor registers a Transform at a step index for a request type.
// StepIndex orders the wrap pipeline ascending; unwrap runs the same
// transforms in reverse.
type Descriptor struct {
	StepIndex int
	Transform Transform
}

type registration struct {
	descriptors []Descriptor
	mapper      Mapper
}

var (
	mu       sync.RWMutex
	registry = make(map[string]*registration)
)

// Register adds a Transform at StepIndex for requestType. Registering two
// transforms at the same step index for the same request type is a
// configuration error raised at Pipeline build time, not here — multiple
// Register calls from independent init() functions must not panic based
// on ordering.
func Register(requestType string, d Descriptor) {
	mu.Lock()
	defer mu.Unlock()
	r, ok := registry[requestType]
	if !ok {
		r = &registration{}
		registry[requestType] = r
	}
	r.descriptors = append(r.descriptors, d)
}

// RegisterMapper installs the Mapper for requestType. Registering a
// second mapper for the same request type overwrites the first.
func RegisterMapper(requestType string, m Mapper) {
	mu.Lock()
	defer mu.Unlock()
	r, ok := registry[requestType]
	if !ok {
		r = &registration{}
		registry[requestType] = r
	}
	r.mapper = m
}

// Reset clears every registration; for tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]*registration)
}

// Pipeline is a built, ordered wrap/unwrap plan for one request type,
// cached by Cache so Build only happens once per request type.
type Pipeline struct {
	requestType string
	wrapOrder   []Transform
	mapper      Mapper
}

func build(requestType string) (*Pipeline, error) {
	mu.RLock()
	r, ok := registry[requestType]
	mu.RUnlock()
	if !ok || r.mapper == nil {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("no mapper registered for request type %q", requestType), nil)
	}

	descriptors := make([]Descriptor, len(r.descriptors))
	copy(descriptors, r.descriptors)
	sort.SliceStable(descriptors, func(i, j int) bool {
		return descriptors[i].StepIndex < descriptors[j].StepIndex
	})

	seen := make(map[int]bool, len(descriptors))
	wrapOrder := make([]Transform, 0, len(descriptors))
	for _, d := range descriptors {
		if seen[d.StepIndex] {
			return nil, rterrors.NewConfigurationError(
				fmt.Sprintf("duplicate transform step index %d for request type %q",
					d.StepIndex, requestType), nil)
		}
		seen[d.StepIndex] = true
		wrapOrder = append(wrapOrder, d.Transform)
	}

	return &Pipeline{requestType: requestType, wrapOrder: wrapOrder, mapper: r.mapper}, nil
}

// Wrap runs the mapper then every transform in ascending step-index
// order, producing the final wire Message body.
func (p *Pipeline) Wrap(h *message.Header, body any) ([]byte, error) {
	data, err := p.mapper.MapToBytes(body)
	if err != nil {
		return nil, rterrors.NewMessageMappingError("wrap", err)
	}
	for _, t := range p.wrapOrder {
		data, err = t.Wrap(h, data)
		if err != nil {
			return nil, rterrors.NewMessageMappingError("wrap", fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return data, nil
}

// Unwrap runs every transform in descending (reverse wrap) order, then
// the mapper, producing the in-process Body.
func (p *Pipeline) Unwrap(h *message.Header, data []byte) (any, error) {
	var err error
	for i := len(p.wrapOrder) - 1; i >= 0; i-- {
		t := p.wrapOrder[i]
		data, err = t.Unwrap(h, data)
		if err != nil {
			return nil, rterrors.NewMessageMappingError("unwrap", fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	body, err := p.mapper.MapFromBytes(data)
	if err != nil {
		return nil, rterrors.NewMessageMappingError("unwrap", err)
	}
	return body, nil
}

// Cache lazily builds and caches a Pipeline per request type, mirroring
// the handler package's builder-cache convention.
type Cache struct {
	pipelines sync.Map // string -> *Pipeline
}

// NewCache returns an empty Cache.
func NewCache() *Cache { return &Cache{} }

// Get returns the cached Pipeline for requestType, building it on first
// access.
func (c *Cache) Get(requestType string) (*Pipeline, error) {
	if v, ok := c.pipelines.Load(requestType); ok {
		return v.(*Pipeline), nil
	}
	p, err := build(requestType)
	if err != nil {
		return nil, err
	}
	actual, _ := c.pipelines.LoadOrStore(requestType, p)
	return actual.(*Pipeline), nil
}

// Clear empties the cache; for tests only.
func (c *Cache) Clear() {
	c.pipelines.Range(func(key, _ any) bool {
		c.pipelines.Delete(key)
		return true
	})
}

// WrapRequest is a convenience entry point used by the processor: builds
// a Message header from req and runs the cached Pipeline's Wrap.
func WrapRequest(c *Cache, req *request.Request, id string, mt message.Type, routingKey string) (*message.Message, error) {
	p, err := c.Get(string(req.RequestType()))
	if err != nil {
		return nil, err
	}
	msg := message.New(id, mt)
	msg.Header.RequestType = string(req.RequestType())
	msg.Header.HandlerType = req.HandlerType()
	msg.Header.CorrelationID = req.CorrelationID()
	msg.Header.PartitionKey = req.PartitionKey()
	msg.Header.RoutingKey = routingKey
	for k, v := range req.Metadata {
		msg.Header.SetBagValue(k, v)
	}
	body, err := p.Wrap(&msg.Header, req.Body)
	if err != nil {
		return nil, err
	}
	msg.Body = body
	return msg, nil
}

// UnwrapMessage is the receiving-side counterpart used by the pump.
func UnwrapMessage(c *Cache, msg *message.Message) (any, error) {
	p, err := c.Get(msg.Header.RequestType)
	if err != nil {
		return nil, err
	}
	return p.Unwrap(&msg.Header, msg.Body)
}
