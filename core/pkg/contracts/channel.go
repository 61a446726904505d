package contracts

import (
	"context"

	"github.com/madcok-co/conduit/core/pkg/message"
)

// Channel is the pump's source: a single abstraction over a broker
// consumer that both the Reactor and Proactor drive through the same
// per-iteration state machine (receive, classify, unwrap, dispatch,
// ack/reject/requeue/defer).
type Channel interface {
	// Receive blocks (Reactor) or is invoked from a worker goroutine
	// (Proactor) until a message is available, ctx is cancelled, or the
	// poll timeout elapses. A timeout or cancellation returns
	// message.None()/message.Quit() respectively, never an error, so the
	// loop's control flow stays in the message-type switch.
	Receive(ctx context.Context) (*message.Message, error)

	Acknowledge(ctx context.Context, msg *message.Message) error
	Reject(ctx context.Context, msg *message.Message) error
	Requeue(ctx context.Context, msg *message.Message, delay int64) error

	// EnqueueLocal queues msg for a later Receive on this channel with no
	// delay. It is not placed ahead of messages already waiting:
	// MemoryChannel appends it to its buffer, and the Kafka channel
	// publishes it to its first topic through the broker.
	EnqueueLocal(ctx context.Context, msg *message.Message) error

	// Dispose sends msg to the dead-letter sink (or drops it, if none is
	// configured). The pump calls it when a message reaches its
	// handled-count ceiling or fails with a configuration error;
	// UNACCEPTABLE messages are acknowledged, not disposed.
	Dispose(ctx context.Context, msg *message.Message) error

	Name() string
}
