// Package mediator implements the outbox-producer mediator: the
// component that deposits outbound messages transactionally alongside
// business writes, then dispatches them to their bound producer,
// tolerating the gap between commit and dispatch by leaving undispatched
// entries for a periodic sweep.
package mediator

import (
	"context"
	"fmt"
	"time"

	"github.com/madcok-co/conduit/core/pkg/contracts"
	"github.com/madcok-co/conduit/core/pkg/message"
	"github.com/madcok-co/conduit/core/pkg/outbox"
	"github.com/madcok-co/conduit/core/pkg/registry"
)

// Mediator deposits messages into the outbox and clears them out to
// their producers, matching the distilled spec's two-phase deposit/clear
// design so a crash between commit and dispatch never loses a message.
type Mediator struct {
	store     outbox.Store
	producers *registry.ProducerRegistry
	policies  *registry.PolicyRegistry
	logger    contracts.Logger
	cache     contracts.Cache // optional: non-conditional stores serialize Clear through its Lock
}

// Option configures a Mediator at construction.
type Option func(*Mediator)

// WithLogger overrides the no-op default logger.
func WithLogger(l contracts.Logger) Option {
	return func(m *Mediator) { m.logger = l }
}

// WithLock installs a cache providing distributed locks, used to
// serialize Clear calls for outbox.Store implementations that cannot
// perform a conditional update (MarkDispatched's ok return is always
// true regardless of race).
func WithLock(c contracts.Cache) Option {
	return func(m *Mediator) { m.cache = c }
}

// New builds a Mediator over store, resolving producers and resilience
// policies from the given registries.
func New(store outbox.Store, producers *registry.ProducerRegistry, policies *registry.PolicyRegistry, opts ...Option) *Mediator {
	m := &Mediator{
		store:     store,
		producers: producers,
		policies:  policies,
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Deposit writes msgs into the outbox inside txn (the caller's ambient
// transaction handle, opaque to the mediator) and returns their message
// ids. The caller commits txn; Deposit itself never dispatches.
func (m *Mediator) Deposit(ctx context.Context, txn any, contextKey string, msgs ...*message.Message) ([]string, error) {
	ids := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		entry := outbox.Entry{
			MessageID:  msg.Header.MessageID,
			Message:    msg,
			State:      outbox.Outstanding,
			ContextKey: contextKey,
		}
		if err := m.store.Add(ctx, txn, entry); err != nil {
			return ids, fmt.Errorf("mediator: deposit %s: %w", msg.Header.MessageID, err)
		}
		ids = append(ids, msg.Header.MessageID)
	}
	return ids, nil
}

// DepositAndClear deposits msgs then immediately attempts Clear on them,
// for callers with no ambient transaction to commit around (txn may be
// nil if the store tolerates it). Clear failures are swallowed and
// logged — the entries remain Outstanding for Sweep to retry, per the
// mediator's crash-tolerance contract.
func (m *Mediator) DepositAndClear(ctx context.Context, txn any, contextKey string, msgs ...*message.Message) ([]string, error) {
	ids, err := m.Deposit(ctx, txn, contextKey, msgs...)
	if err != nil {
		return ids, err
	}
	m.ClearAfterCommit(ctx, ids)
	return ids, nil
}

// ClearAfterCommit attempts to dispatch every id in ids, swallowing and
// logging failures rather than returning them — callers invoke this
// after their transaction commits, and a dispatch failure here must not
// unwind work that is already durable.
func (m *Mediator) ClearAfterCommit(ctx context.Context, ids []string) {
	if err := m.Clear(ctx, ids); err != nil {
		m.logger.Warn("mediator: post-commit clear failed, left for sweep", "error", err, "count", len(ids))
	}
}

// Clear resolves each id's producer and policy, sends it, and marks it
// Dispatched on success. It returns the first error encountered but
// continues attempting the remaining ids.
func (m *Mediator) Clear(ctx context.Context, ids []string) error {
	if m.cache != nil {
		lock, err := m.cache.Lock(ctx, "mediator:clear", 30*time.Second)
		if err != nil {
			return nil // another clearer holds the window; entries remain for the next sweep
		}
		defer lock.Unlock(ctx)
	}

	var firstErr error
	for _, id := range ids {
		if err := m.clearOne(ctx, id); err != nil {
			m.logger.Warn("mediator: clear failed", "message_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Mediator) clearOne(ctx context.Context, id string) error {
	entry, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if entry.State == outbox.Dispatched {
		return nil
	}

	producer, policyName, err := m.producers.Resolve(entry.Message.Header.RoutingKey)
	if err != nil {
		return err
	}
	policy := m.policies.Get(policyName)
	if policy == nil {
		return fmt.Errorf("mediator: policy %q not registered", policyName)
	}

	sendErr := policy.ExecuteWithContext(ctx, func(ctx context.Context) error {
		return producer.Send(ctx, entry.Message)
	})
	if sendErr != nil {
		_ = m.store.IncrementAttempts(ctx, id)
		return fmt.Errorf("mediator: send via %s: %w", producer.Name(), sendErr)
	}

	ok, err := m.store.MarkDispatched(ctx, id, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		m.logger.Debug("mediator: lost mark-dispatched race, already dispatched", "message_id", id)
	}
	return nil
}

// Outstanding returns the message ids currently Outstanding and
// deposited at or before olderThan, for operator tooling that wants to
// clear them outside the regular sweep cadence.
func (m *Mediator) Outstanding(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	entries, err := m.store.Outstanding(ctx, olderThan, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.MessageID
	}
	return ids, nil
}

// Sweep runs a background loop calling Outstanding then Clear every
// interval, for entries older than threshold, until ctx is cancelled.
func (m *Mediator) Sweep(ctx context.Context, interval, threshold time.Duration, limit int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce(ctx, threshold, limit)
		}
	}
}

func (m *Mediator) sweepOnce(ctx context.Context, threshold time.Duration, limit int) {
	entries, err := m.store.Outstanding(ctx, time.Now().Add(-threshold), limit)
	if err != nil {
		m.logger.Warn("mediator: sweep outstanding query failed", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.MessageID
	}
	if err := m.Clear(ctx, ids); err != nil {
		m.logger.Warn("mediator: sweep clear reported failures", "error", err)
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any)            {}
func (noopLogger) Info(string, ...any)             {}
func (noopLogger) Warn(string, ...any)             {}
func (noopLogger) Error(string, ...any)            {}
func (noopLogger) Fatal(string, ...any)            {}
func (noopLogger) WithContext(context.Context) contracts.Logger { return noopLogger{} }
func (noopLogger) WithFields(...any) contracts.Logger           { return noopLogger{} }
func (noopLogger) WithError(error) contracts.Logger             { return noopLogger{} }
func (noopLogger) Named(string) contracts.Logger                { return noopLogger{} }
func (noopLogger) Sync() error                                  { return nil }
