// Package outbox implements the transactional-outbox side of the
// mediator: messages are written alongside the business transaction and
// dispatched afterward, so a crash between commit and dispatch leaves a
// recoverable, not lost, message.
package outbox

import (
	"context"
	"time"

	"github.com/madcok-co/conduit/core/pkg/message"
)

// State is the outbox entry lifecycle: Outstanding until the mediator
// confirms the producer accepted it, then Dispatched.
type State string

const (
	Outstanding State = "OUTSTANDING"
	Dispatched  State = "DISPATCHED"
)

// Entry is one outbox row.
type Entry struct {
	MessageID    string
	Message      *message.Message
	State        State
	DispatchedAt *time.Time
	ContextKey   string
	Attempts     int
}

// Store persists outbox entries and exposes the operations the mediator
// needs: deposit within the caller's transaction, read back outstanding
// entries for a sweep, and mark dispatched with a conditional update so
// concurrent Clear calls for the same id cannot both succeed.
type Store interface {
	// Add writes entry, scoped to whatever ambient transaction txn
	// represents (a *sql.Tx, a *gorm.DB bound to one, or nil for
	// no-transaction stores).
	Add(ctx context.Context, txn any, entry Entry) error

	// Get returns the entry for id, or rterrors.RequestNotFound.
	Get(ctx context.Context, id string) (*Entry, error)

	// Outstanding returns up to limit entries in the Outstanding state
	// that were deposited at or before olderThan, oldest first.
	Outstanding(ctx context.Context, olderThan time.Time, limit int) ([]Entry, error)

	// MarkDispatched transitions id from Outstanding to Dispatched.
	// Implementations must make this a conditional update (`WHERE state =
	// 'OUTSTANDING'`) so a racing sweep and direct Clear cannot both
	// report success for the same id; ok reports whether this call won
	// the race.
	MarkDispatched(ctx context.Context, id string, at time.Time) (ok bool, err error)

	// IncrementAttempts bumps the poison-message counter after a failed
	// dispatch attempt, for operator visibility via the entry's Attempts.
	IncrementAttempts(ctx context.Context, id string) error
}
