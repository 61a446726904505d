package gorm

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/madcok-co/conduit/core/pkg/inbox"
	"github.com/madcok-co/conduit/core/pkg/message"
	"github.com/madcok-co/conduit/core/pkg/outbox"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newOutboxEntry(id string, ts time.Time) outbox.Entry {
	return outbox.Entry{
		MessageID: id,
		Message:   &message.Message{Header: message.Header{MessageID: id, Timestamp: ts}},
	}
}

func TestOutboxStore_AddAndGet(t *testing.T) {
	db := newTestDB(t)
	s := NewOutboxStore(db)
	ctx := context.Background()

	if err := s.Add(ctx, nil, newOutboxEntry("msg-1", time.Now())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, err := s.Get(ctx, "msg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.State != outbox.Outstanding {
		t.Errorf("expected default state Outstanding, got %s", entry.State)
	}
}

func TestOutboxStore_GetMissingReturnsRequestNotFound(t *testing.T) {
	db := newTestDB(t)
	s := NewOutboxStore(db)

	if _, err := s.Get(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error for a missing entry")
	}
}

func TestOutboxStore_MarkDispatchedIsConditional(t *testing.T) {
	db := newTestDB(t)
	s := NewOutboxStore(db)
	ctx := context.Background()
	_ = s.Add(ctx, nil, newOutboxEntry("msg-1", time.Now()))

	ok, err := s.MarkDispatched(ctx, "msg-1", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected the first MarkDispatched to succeed")
	}

	ok, err = s.MarkDispatched(ctx, "msg-1", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected a second MarkDispatched on an already-dispatched row to report false")
	}
}

func TestOutboxStore_Outstanding_FiltersByTimeAndLimit(t *testing.T) {
	db := newTestDB(t)
	s := NewOutboxStore(db)
	ctx := context.Background()
	now := time.Now()

	_ = s.Add(ctx, nil, newOutboxEntry("a", now.Add(-2*time.Hour)))
	_ = s.Add(ctx, nil, newOutboxEntry("b", now.Add(-time.Hour)))
	_ = s.Add(ctx, nil, newOutboxEntry("c", now.Add(time.Hour)))

	entries, err := s.Outstanding(ctx, now, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries at or before now, got %d", len(entries))
	}

	limited, err := s.Outstanding(ctx, now, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected the limit to cap the result at 1, got %d", len(limited))
	}
}

func TestOutboxStore_IncrementAttempts(t *testing.T) {
	db := newTestDB(t)
	s := NewOutboxStore(db)
	ctx := context.Background()
	_ = s.Add(ctx, nil, newOutboxEntry("msg-1", time.Now()))

	_ = s.IncrementAttempts(ctx, "msg-1")
	_ = s.IncrementAttempts(ctx, "msg-1")

	entry, err := s.Get(ctx, "msg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", entry.Attempts)
	}
}

func TestInboxStore_AddIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	s := NewInboxStore(db)
	ctx := context.Background()
	e := inbox.Entry{RequestID: "req-1", ContextKey: "orders", RequestBody: []byte(`{}`)}

	inserted, err := s.Add(ctx, e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inserted {
		t.Fatal("expected the first Add to report inserted")
	}

	inserted, err = s.Add(ctx, e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Error("expected a duplicate Add to report not inserted")
	}
}

func TestInboxStore_Get(t *testing.T) {
	db := newTestDB(t)
	s := NewInboxStore(db)
	ctx := context.Background()

	if got, err := s.Get(ctx, "missing", "orders"); err != nil || got != nil {
		t.Fatalf("expected nil, nil for a missing entry, got %v, %v", got, err)
	}

	e := inbox.Entry{RequestID: "req-1", ContextKey: "orders", RequestBody: []byte(`{"a":1}`)}
	if _, err := s.Add(ctx, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, "req-1", "orders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || string(got.RequestBody) != `{"a":1}` {
		t.Errorf("expected the round-tripped entry, got %v", got)
	}
}
