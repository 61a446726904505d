package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/madcok-co/conduit/core/pkg/rterrors"
)

// MemoryStore is an in-process Store, used by the bundled examples and
// by mediator/decorator tests. It ignores txn entirely since there is no
// ambient transaction to join in-memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Add(_ context.Context, _ any, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := entry
	if cp.State == "" {
		cp.State = Outstanding
	}
	s.entries[entry.MessageID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, &rterrors.RequestNotFound{ID: id}
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) Outstanding(_ context.Context, olderThan time.Time, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for _, e := range s.entries {
		if e.State == Outstanding && !e.Message.Header.Timestamp.After(olderThan) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Message.Header.Timestamp.Before(out[j].Message.Header.Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkDispatched(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false, &rterrors.RequestNotFound{ID: id}
	}
	if e.State != Outstanding {
		return false, nil
	}
	e.State = Dispatched
	t := at
	e.DispatchedAt = &t
	return true, nil
}

func (s *MemoryStore) IncrementAttempts(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return &rterrors.RequestNotFound{ID: id}
	}
	e.Attempts++
	return nil
}
