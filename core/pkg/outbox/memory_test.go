package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/madcok-co/conduit/core/pkg/message"
)

func newTestEntry(id string, ts time.Time) Entry {
	return Entry{
		MessageID: id,
		Message:   &message.Message{Header: message.Header{MessageID: id, Timestamp: ts}},
	}
}

func TestMemoryStore_AddAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	entry := newTestEntry("msg-1", time.Now())
	if err := s.Add(ctx, nil, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, "msg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.State != Outstanding {
		t.Errorf("expected default state Outstanding, got %s", got.State)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error for a missing entry")
	}
}

func TestMemoryStore_Outstanding_FiltersAndSorts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.Add(ctx, nil, newTestEntry("newest", now))
	_ = s.Add(ctx, nil, newTestEntry("oldest", now.Add(-time.Hour)))
	_ = s.Add(ctx, nil, newTestEntry("future", now.Add(time.Hour)))

	entries, err := s.Outstanding(ctx, now, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 outstanding entries at or before now, got %d", len(entries))
	}
	if entries[0].MessageID != "oldest" || entries[1].MessageID != "newest" {
		t.Errorf("expected entries sorted oldest-first, got %v", entries)
	}
}

func TestMemoryStore_Outstanding_RespectsLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.Add(ctx, nil, newTestEntry("a", now.Add(-3*time.Hour)))
	_ = s.Add(ctx, nil, newTestEntry("b", now.Add(-2*time.Hour)))
	_ = s.Add(ctx, nil, newTestEntry("c", now.Add(-time.Hour)))

	entries, err := s.Outstanding(ctx, now, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected limit of 2 entries, got %d", len(entries))
	}
}

func TestMemoryStore_MarkDispatched(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Add(ctx, nil, newTestEntry("msg-1", time.Now()))

	ok, err := s.MarkDispatched(ctx, "msg-1", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected MarkDispatched to report success")
	}

	got, _ := s.Get(ctx, "msg-1")
	if got.State != Dispatched {
		t.Errorf("expected state Dispatched, got %s", got.State)
	}
	if got.DispatchedAt == nil {
		t.Error("expected DispatchedAt to be set")
	}
}

func TestMemoryStore_MarkDispatched_NotOutstanding(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Add(ctx, nil, newTestEntry("msg-1", time.Now()))
	_, _ = s.MarkDispatched(ctx, "msg-1", time.Now())

	ok, err := s.MarkDispatched(ctx, "msg-1", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected a second MarkDispatched to be a no-op conditional failure")
	}
}

func TestMemoryStore_IncrementAttempts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Add(ctx, nil, newTestEntry("msg-1", time.Now()))

	if err := s.IncrementAttempts(ctx, "msg-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.IncrementAttempts(ctx, "msg-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.Get(ctx, "msg-1")
	if got.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", got.Attempts)
	}
}
