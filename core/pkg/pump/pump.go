// Package pump implements the message pump: the loop that receives a
// Message from a Channel, classifies it, unwraps it, dispatches it
// through the processor, and acknowledges/rejects/requeues/disposes of it
// according to the outcome. Reactor and Proactor share one state machine
// (Pump.iterate, in this file) and differ only in how Receive and dispatch are
// invoked, generalizing the teacher's
// adapters/broker.Adapter.handleMessage/handleError shape.
package pump

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/madcok-co/conduit/core/pkg/contracts"
	"github.com/madcok-co/conduit/core/pkg/message"
	"github.com/madcok-co/conduit/core/pkg/rterrors"
	"github.com/madcok-co/conduit/core/pkg/transform"
)

// Dispatcher is the pump's callback into the processor: given an
// unwrapped request body and its message type, dispatch it and report
// the outcome. The pump never imports core/pkg/processor directly, so a
// pump can be driven by any dispatcher a test or alternate façade
// supplies.
type Dispatcher func(ctx context.Context, requestType, handlerType string, body any, mt message.Type) error

// Config tunes the pump's poison-message and backoff behavior.
type Config struct {
	// MaxHandledCount is the handled count (current delivery included) at
	// which a failing message is disposed instead of rejected or requeued;
	// 1 disposes on the first failure.
	MaxHandledCount int
	// RequeueDelay is used for DeferMessageAction.RequeueDelay when the
	// handler did not specify one.
	RequeueDelay time.Duration
	// BackoffOnChannelFailure is how long the loop sleeps after a
	// Channel-level failure before polling again.
	BackoffOnChannelFailure time.Duration
	// UnacceptableLimit caps how many UNACCEPTABLE or mapping-failure
	// messages the pump will ack and count before it exits. 0 disables
	// the limit, so the pump never exits on this path.
	UnacceptableLimit int
}

// DefaultConfig matches the teacher's broker adapter defaults
// (MaxRetries 3, RetryBackoff 1s), plus a conservative unacceptable-
// message ceiling: ten poison messages in a row usually means the
// upstream producer or wire format is broken, not the message.
func DefaultConfig() Config {
	return Config{
		MaxHandledCount:         3,
		RequeueDelay:            time.Second,
		BackoffOnChannelFailure: time.Second,
		UnacceptableLimit:       10,
	}
}

// Pump holds the collaborators the shared run loop needs: a Channel to
// receive from, a transform Cache to unwrap with, a Dispatcher to hand
// unwrapped bodies to, a Logger, and tuning Config.
type Pump struct {
	channel    contracts.Channel
	transforms *transform.Cache
	dispatch   Dispatcher
	logger     contracts.Logger
	cfg        Config

	// unacceptableCount is shared across Proactor's worker goroutines,
	// all of which call iterate on the same *Pump.
	unacceptableCount atomic.Int64
}

// New builds a Pump. logger may be nil, in which case pump events are
// silently dropped.
func New(channel contracts.Channel, transforms *transform.Cache, dispatch Dispatcher, logger contracts.Logger, cfg Config) *Pump {
	return &Pump{channel: channel, transforms: transforms, dispatch: dispatch, logger: logger, cfg: cfg}
}

func (p *Pump) logf(level string, msg string, args ...any) {
	if p.logger == nil {
		return
	}
	switch level {
	case "warn":
		p.logger.Warn(msg, args...)
	case "error":
		p.logger.Error(msg, args...)
	default:
		p.logger.Debug(msg, args...)
	}
}

// iterate runs exactly one receive-classify-unwrap-dispatch-ack cycle,
// shared by Reactor and Proactor. It reports whether the pump should
// keep running: false on a QUIT message, a configuration error, or the
// unacceptable-message limit being reached.
func (p *Pump) iterate(ctx context.Context) bool {
	msg, err := p.channel.Receive(ctx)
	if err != nil {
		p.logf("warn", "pump: channel receive failed", "channel", p.channel.Name(), "error", err)
		time.Sleep(p.cfg.BackoffOnChannelFailure)
		return true
	}

	switch msg.Header.MessageType {
	case message.TypeNone:
		return true
	case message.TypeQuit:
		return false
	case message.TypeUnacceptable:
		p.ack(ctx, msg)
		return p.belowUnacceptableLimit()
	}

	msg.Header.IncrementHandledCount()
	return p.dispatchOne(ctx, msg)
}

// dispatchOne unwraps and dispatches one message, then acts on the
// outcome. It reports whether the pump should keep running.
func (p *Pump) dispatchOne(ctx context.Context, msg *message.Message) bool {
	body, err := transform.UnwrapMessage(p.transforms, msg)
	if err != nil {
		p.logf("warn", "pump: unwrap failed, poison message", "message_id", msg.Header.MessageID, "error", err)
		p.ack(ctx, msg)
		return p.belowUnacceptableLimit()
	}

	err = p.dispatch(ctx, msg.Header.RequestType, msg.Header.HandlerType, body, msg.Header.MessageType)
	if err == nil {
		p.ack(ctx, msg)
		return true
	}

	var mapErr *rterrors.MessageMappingError
	if errors.As(err, &mapErr) {
		p.logf("warn", "pump: mapping failure during dispatch, poison message", "message_id", msg.Header.MessageID, "error", err)
		p.ack(ctx, msg)
		return p.belowUnacceptableLimit()
	}

	isConfig, deferAction := rterrors.Classify(err)
	switch {
	case isConfig:
		p.logf("error", "pump: configuration error, rejecting and exiting", "message_id", msg.Header.MessageID, "error", err)
		_ = p.channel.Reject(ctx, msg)
		_ = p.channel.Dispose(ctx, msg)
		return false
	case msg.Header.HandledCount() >= p.cfg.MaxHandledCount:
		p.logf("warn", "pump: handled-count ceiling reached, disposing", "message_id", msg.Header.MessageID, "handled_count", msg.Header.HandledCount())
		_ = p.channel.Dispose(ctx, msg)
	case deferAction != nil:
		p.requeue(ctx, msg, deferAction)
	default:
		p.logf("warn", "pump: handler failed, rejecting for redelivery", "message_id", msg.Header.MessageID, "error", err)
		_ = p.channel.Reject(ctx, msg)
	}
	return true
}

// belowUnacceptableLimit counts one UNACCEPTABLE/mapping-failure message
// against Config.UnacceptableLimit and reports whether the pump should
// keep running.
func (p *Pump) belowUnacceptableLimit() bool {
	if p.cfg.UnacceptableLimit <= 0 {
		return true
	}
	count := p.unacceptableCount.Add(1)
	if count >= int64(p.cfg.UnacceptableLimit) {
		p.logf("error", "pump: unacceptable-message limit reached, exiting", "channel", p.channel.Name(), "count", count)
		return false
	}
	return true
}

func (p *Pump) ack(ctx context.Context, msg *message.Message) {
	if err := p.channel.Acknowledge(ctx, msg); err != nil {
		p.logf("warn", "pump: acknowledge failed", "message_id", msg.Header.MessageID, "error", err)
	}
}

func (p *Pump) requeue(ctx context.Context, msg *message.Message, action *rterrors.DeferMessageAction) {
	delay := action.RequeueDelay
	if delay == 0 {
		delay = int64(p.cfg.RequeueDelay)
	}
	if err := p.channel.Requeue(ctx, msg, delay); err != nil {
		p.logf("warn", "pump: requeue failed", "message_id", msg.Header.MessageID, "error", err)
	}
}
