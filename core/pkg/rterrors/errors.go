// Package rterrors defines the error taxonomy shared by the pipeline,
// mediator, and pump. User-code errors pass through untouched; broker and
// store errors are caught at component boundaries and re-raised as one of
// these.
package rterrors

import (
	"errors"
	"fmt"
)

// ConfigurationError signals a setup mistake: missing mapper, missing
// handler, mis-registered multiplicity, missing producer. Fatal to the
// operation — pumps reject and dispose on it.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func NewConfigurationError(reason string, err error) *ConfigurationError {
	return &ConfigurationError{Reason: reason, Err: err}
}

// MessageMappingError signals a wrap/unwrap failure. In pumps this
// increments the unacceptable-message count and acks (poison-pill
// containment); on the publish side it bubbles to the caller.
type MessageMappingError struct {
	Direction string // "wrap" or "unwrap"
	Err       error
}

func (e *MessageMappingError) Error() string {
	return fmt.Sprintf("message mapping error (%s): %v", e.Direction, e.Err)
}

func (e *MessageMappingError) Unwrap() error { return e.Err }

func NewMessageMappingError(direction string, err error) *MessageMappingError {
	return &MessageMappingError{Direction: direction, Err: err}
}

// DeferMessageAction is handler-signalled control flow, not strictly an
// error: it asks the pump to requeue the current message. RequeueDelay of
// zero makes the pump use its own Config.RequeueDelay.
type DeferMessageAction struct {
	Reason       string
	RequeueDelay int64 // nanoseconds; 0 = pump's Config.RequeueDelay
}

func (e *DeferMessageAction) Error() string {
	return fmt.Sprintf("defer message: %s", e.Reason)
}

func Defer(reason string) *DeferMessageAction {
	return &DeferMessageAction{Reason: reason}
}

// CircuitOpen is the inner error a ChannelFailure wraps when the failure
// originates from an open circuit breaker rather than raw broker I/O.
var CircuitOpen = errors.New("circuit breaker is open")

// ChannelFailure is a broker-level I/O error. It may wrap CircuitOpen.
// Triggers backoff in pumps and the mediator.
type ChannelFailure struct {
	Err error
}

func (e *ChannelFailure) Error() string  { return fmt.Sprintf("channel failure: %v", e.Err) }
func (e *ChannelFailure) Unwrap() error  { return e.Err }
func (e *ChannelFailure) IsCircuitOpen() bool { return errors.Is(e.Err, CircuitOpen) }

func NewChannelFailure(err error) *ChannelFailure {
	return &ChannelFailure{Err: err}
}

// OnceOnlyViolation is raised by an inbox that is configured to throw on a
// duplicate request id, rather than warn-and-swallow or succeed-no-op.
type OnceOnlyViolation struct {
	RequestID  string
	ContextKey string
}

func (e *OnceOnlyViolation) Error() string {
	return fmt.Sprintf("request %s already handled in context %s", e.RequestID, e.ContextKey)
}

// RequestNotFound is returned by inbox/outbox reads that require a hit.
type RequestNotFound struct {
	ID string
}

func (e *RequestNotFound) Error() string {
	return fmt.Sprintf("request not found: %s", e.ID)
}

// AggregateError is raised by Publish when one or more fan-out handler
// chains fail; it carries every inner error so callers can classify by
// presence of a specific kind rather than by matching a single error
// value. It implements the multi-error Unwrap() []error shape so
// errors.Is/errors.As walk every inner error.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d of %d handlers failed: %v", len(e.Errors), len(e.Errors), e.Errors[0])
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// NewAggregateError returns nil if errs is empty, so callers can always
// write `return NewAggregateError(errs)` without an extra length check.
func NewAggregateError(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &AggregateError{Errors: errs}
}

// Classify reports whether err (or any error it aggregates) is a
// ConfigurationError or DeferMessageAction, the two kinds pumps must act
// on specially per the dispatch state machine.
func Classify(err error) (isConfig bool, isDefer *DeferMessageAction) {
	var cfg *ConfigurationError
	var def *DeferMessageAction
	if errors.As(err, &cfg) {
		isConfig = true
	}
	if errors.As(err, &def) {
		isDefer = def
	}
	var agg *AggregateError
	if errors.As(err, &agg) {
		for _, inner := range agg.Errors {
			ic, id := Classify(inner)
			isConfig = isConfig || ic
			if id != nil {
				isDefer = id
			}
		}
	}
	return isConfig, isDefer
}
