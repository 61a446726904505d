// Package request defines the Request model dispatched through the
// pipeline: the in-process unit of work before it is wrapped onto the
// wire as a Message.
package request

import (
	"time"

	"github.com/madcok-co/conduit/core/pkg/idgen"
)

// Type classifies a request's dispatch semantics: Command routes to
// exactly one handler (Send), Event fans out to every subscriber
// (Publish), Document is a Post-only payload destined for the outbox.
type Type string

const (
	Command  Type = "COMMAND"
	Event    Type = "EVENT"
	Document Type = "DOCUMENT"
)

// Request is the in-process envelope for a unit of work. Fields set at
// construction are immutable; Metadata may be appended to up until the
// request is handed to the pipeline.
type Request struct {
	id            string
	requestType   Type
	handlerType   string
	correlationID string
	partitionKey  string
	createdAt     time.Time

	Body     any
	Metadata map[string]string
}

// ID returns the request's assigned identifier.
func (r *Request) ID() string { return r.id }

// RequestType returns the dispatch classification.
func (r *Request) RequestType() Type { return r.requestType }

// HandlerType returns the handler-type name given at construction. Post
// and DepositPost use it as the outbox routing key; Send and Publish do
// not route by it, they look handlers up in the SubscriberRegistry by
// RequestType.
func (r *Request) HandlerType() string { return r.handlerType }

// CorrelationID returns the id linking this request to the chain of work
// it belongs to.
func (r *Request) CorrelationID() string { return r.correlationID }

// PartitionKey returns the key used for broker partition/ordering
// assignment when this request is wrapped and dispatched externally.
func (r *Request) PartitionKey() string { return r.partitionKey }

// CreatedAt returns the immutable construction timestamp.
func (r *Request) CreatedAt() time.Time { return r.createdAt }

// Option configures optional Request fields at construction.
type Option func(*Request)

// WithCorrelationID overrides the auto-generated correlation id, for
// requests issued in response to another (correlation chaining).
func WithCorrelationID(id string) Option {
	return func(r *Request) { r.correlationID = id }
}

// WithPartitionKey sets the partition/ordering key.
func WithPartitionKey(key string) Option {
	return func(r *Request) { r.partitionKey = key }
}

// WithMetadata seeds the request's metadata map.
func WithMetadata(md map[string]string) Option {
	return func(r *Request) {
		for k, v := range md {
			r.Metadata[k] = v
		}
	}
}

func newRequest(t Type, handlerType string, body any, opts ...Option) *Request {
	r := &Request{
		id:          idgen.New(),
		requestType: t,
		handlerType: handlerType,
		createdAt:   time.Now(),
		Body:        body,
		Metadata:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.correlationID == "" {
		r.correlationID = idgen.NewCorrelationID()
	}
	return r
}

// NewCommand builds a Command request targeting exactly one handler.
func NewCommand(handlerType string, body any, opts ...Option) *Request {
	return newRequest(Command, handlerType, body, opts...)
}

// NewEvent builds an Event request; Publish fans it out to every handler
// type registered under the EVENT request type.
func NewEvent(handlerType string, body any, opts ...Option) *Request {
	return newRequest(Event, handlerType, body, opts...)
}

// NewDocument builds a Document request destined for the outbox via
// Post/DepositPost.
func NewDocument(handlerType string, body any, opts ...Option) *Request {
	return newRequest(Document, handlerType, body, opts...)
}
