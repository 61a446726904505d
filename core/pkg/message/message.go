// Package message defines the wire envelope produced by wrapping a
// Request and consumed by unwrapping it back on the receiving side.
package message

import (
	"encoding/json"
	"time"
)

// Type classifies a Message for pump dispatch. UNACCEPTABLE and NONE are
// pump-internal: UNACCEPTABLE marks a message that failed unwrap/mapping,
// NONE marks an empty poll result, QUIT asks the pump to stop.
type Type string

const (
	TypeCommand      Type = "COMMAND"
	TypeEvent        Type = "EVENT"
	TypeDocument     Type = "DOCUMENT"
	TypeQuit         Type = "QUIT"
	TypeNone         Type = "NONE"
	TypeUnacceptable Type = "UNACCEPTABLE"
)

// BagKey is the header bag key under which unrecognised broker-native
// attributes collapse as a JSON blob, per the wire-envelope rule.
const BagKey = "__bag"

// Header carries routing and delivery metadata alongside the Body.
type Header struct {
	MessageID     string            `json:"message_id"`
	MessageType   Type              `json:"message_type"`
	RequestType   string            `json:"request_type"`
	HandlerType   string            `json:"handler_type"`
	CorrelationID string            `json:"correlation_id"`
	PartitionKey  string            `json:"partition_key"`
	RoutingKey    string            `json:"routing_key"`
	Timestamp     time.Time         `json:"timestamp"`
	Bag           map[string]string `json:"bag"`

	handledCount int
}

// HandledCount returns the number of times this message has been handed
// to a pump dispatch loop, including the current attempt.
func (h *Header) HandledCount() int { return h.handledCount }

// IncrementHandledCount is the only mutator exposed on Header; pumps call
// it once per dispatch attempt before invoking the handler chain.
func (h *Header) IncrementHandledCount() { h.handledCount++ }

// SetBagValue stores a string value in the header bag, creating it if
// necessary.
func (h *Header) SetBagValue(key, value string) {
	if h.Bag == nil {
		h.Bag = make(map[string]string)
	}
	h.Bag[key] = value
}

// BagValue reads a string value from the header bag.
func (h *Header) BagValue(key string) (string, bool) {
	v, ok := h.Bag[key]
	return v, ok
}

// CollapseUnrecognized serializes attrs as a JSON blob into Bag[BagKey],
// for broker-native attributes that have no first-class Header field.
func (h *Header) CollapseUnrecognized(attrs map[string]string) error {
	if len(attrs) == 0 {
		return nil
	}
	blob, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	h.SetBagValue(BagKey, string(blob))
	return nil
}

// ExpandUnrecognized decodes the JSON blob left by CollapseUnrecognized,
// returning nil if the bag carries none.
func (h *Header) ExpandUnrecognized() (map[string]string, error) {
	blob, ok := h.BagValue(BagKey)
	if !ok {
		return nil, nil
	}
	attrs := make(map[string]string)
	if err := json.Unmarshal([]byte(blob), &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

// Message is the wire envelope: a Header plus an opaque Body, produced by
// the transform pipeline's wrap and consumed by its unwrap.
type Message struct {
	Header Header
	Body   []byte
}

// New builds a Message with the given type and an empty bag.
func New(id string, t Type) *Message {
	return &Message{
		Header: Header{
			MessageID:   id,
			MessageType: t,
			Timestamp:   time.Now(),
			Bag:         make(map[string]string),
		},
	}
}

// Quit is the sentinel message a Channel returns (or a pump synthesizes)
// to ask the dispatch loop to stop after the current iteration.
func Quit() *Message {
	return New("", TypeQuit)
}

// None is the sentinel message a Channel returns when a poll found
// nothing to receive.
func None() *Message {
	return New("", TypeNone)
}
