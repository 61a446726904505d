package contracts

import (
	"context"

	"github.com/madcok-co/conduit/core/pkg/message"
)

// Producer sends a wrapped Message to an external sink: a broker topic,
// an HTTP webhook, or any other outbound binding the ProducerRegistry
// resolves by routing key. Implementations are expected to be safe for
// concurrent use, since the mediator may dispatch several outbox entries
// to the same producer concurrently from a sweep and a direct Clear.
type Producer interface {
	Send(ctx context.Context, msg *message.Message) error
	Name() string
}
