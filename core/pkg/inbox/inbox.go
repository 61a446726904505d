// Package inbox implements the idempotent-receive side of the runtime:
// a record of (request id, context key) pairs already handled, so a
// redelivered message is not reapplied.
package inbox

import (
	"context"
	"time"
)

// Entry is one inbox record. ContextKey scopes the idempotency check to
// a logical consumer (a handler type, a saga step) so the same request
// id can be legitimately handled once per context.
type Entry struct {
	RequestID string
	ContextKey string
	RequestBody []byte
	Timestamp time.Time
}

// Store persists inbox entries. Add is idempotent: adding a duplicate
// (RequestID, ContextKey) pair succeeds without error and reports
// inserted=false, so callers can distinguish first-time handling from a
// replay without the store raising an error.
type Store interface {
	Add(ctx context.Context, e Entry) (inserted bool, err error)
	Get(ctx context.Context, requestID, contextKey string) (*Entry, error)
}

// Violation describes how a Policy reacts to a replay: Warn logs and
// proceeds to re-run the handler (for handlers that are themselves
// naturally idempotent), Throw raises rterrors.OnceOnlyViolation, Skip
// returns success with no handler invocation.
type Violation int

const (
	Warn Violation = iota
	Throw
	Skip
)
