package pump

import (
	"context"
	"time"

	"github.com/madcok-co/conduit/core/pkg/contracts"
	"github.com/madcok-co/conduit/core/pkg/message"
)

var _ contracts.Channel = (*MemoryChannel)(nil)

// MemoryChannel is an in-process contracts.Channel over a buffered Go
// channel, adapted from the teacher's in-memory broker's queue concept
// (core/pkg/adapters/broker/memory) but pull-based to match the pump's
// Receive contract instead of that broker's push/subscribe shape. Used
// by the bundled examples and by pump tests; Acknowledge/Reject are
// no-ops (there is no redelivery buffer to release), Requeue/EnqueueLocal
// push back onto the same channel, and Dispose routes to an optional
// dead-letter sink.
type MemoryChannel struct {
	name     string
	messages chan *message.Message
	dlq      chan *message.Message
	pollWait time.Duration
}

// NewMemoryChannel returns a MemoryChannel with the given buffer size.
// dlqBuffer of 0 disables dead-letter capture (Dispose drops silently).
func NewMemoryChannel(name string, buffer, dlqBuffer int) *MemoryChannel {
	c := &MemoryChannel{
		name:     name,
		messages: make(chan *message.Message, buffer),
		pollWait: 200 * time.Millisecond,
	}
	if dlqBuffer > 0 {
		c.dlq = make(chan *message.Message, dlqBuffer)
	}
	return c
}

// Publish enqueues msg for a future Receive; used by in-process
// producers/tests to feed the channel.
func (c *MemoryChannel) Publish(msg *message.Message) {
	c.messages <- msg
}

func (c *MemoryChannel) Receive(ctx context.Context) (*message.Message, error) {
	select {
	case <-ctx.Done():
		return message.Quit(), nil
	case msg := <-c.messages:
		return msg, nil
	case <-time.After(c.pollWait):
		return message.None(), nil
	}
}

func (c *MemoryChannel) Acknowledge(ctx context.Context, msg *message.Message) error { return nil }
func (c *MemoryChannel) Reject(ctx context.Context, msg *message.Message) error      { return nil }

func (c *MemoryChannel) Requeue(ctx context.Context, msg *message.Message, delay int64) error {
	if delay > 0 {
		time.AfterFunc(time.Duration(delay), func() {
			select {
			case c.messages <- msg:
			default:
			}
		})
		return nil
	}
	select {
	case c.messages <- msg:
	default:
	}
	return nil
}

func (c *MemoryChannel) EnqueueLocal(ctx context.Context, msg *message.Message) error {
	select {
	case c.messages <- msg:
		return nil
	default:
		return context.DeadlineExceeded
	}
}

func (c *MemoryChannel) Dispose(ctx context.Context, msg *message.Message) error {
	if c.dlq == nil {
		return nil
	}
	select {
	case c.dlq <- msg:
	default:
	}
	return nil
}

func (c *MemoryChannel) Name() string { return c.name }

// DeadLetters drains and returns every message currently in the
// dead-letter sink, for operator inspection or test assertions.
func (c *MemoryChannel) DeadLetters() []*message.Message {
	var out []*message.Message
	for {
		select {
		case msg := <-c.dlq:
			out = append(out, msg)
		default:
			return out
		}
	}
}
