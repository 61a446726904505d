package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/madcok-co/conduit/core/pkg/adapters/security/hasher"
	"github.com/madcok-co/conduit/core/pkg/mediator"
	"github.com/madcok-co/conduit/core/pkg/outbox"
	"github.com/madcok-co/conduit/core/pkg/pipeline"
	"github.com/madcok-co/conduit/core/pkg/processor"
	"github.com/madcok-co/conduit/core/pkg/registry"
	"github.com/madcok-co/conduit/core/pkg/transform"
)

func newTestProcessor(t *testing.T) *processor.Processor {
	t.Helper()
	subs := registry.NewSubscriberRegistry()
	builder := pipeline.NewBuilder(subs, func(string) (pipeline.Handler, error) {
		return nil, nil
	})
	producers := registry.NewProducerRegistry()
	policies := registry.NewPolicyRegistry()
	store := outbox.NewMemoryStore()
	med := mediator.New(store, producers, policies)

	return processor.New(processor.Config{
		Subscribers: subs,
		Policies:    policies,
		Producers:   producers,
		Builder:     builder,
		Mediator:    med,
		Transforms:  transform.NewCache(),
	})
}

func TestHandleHealthz(t *testing.T) {
	s := New(newTestProcessor(t), nil, nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	s.server.Handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestHandleClear_NoAuthConfigured(t *testing.T) {
	s := New(newTestProcessor(t), nil, nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/outbox/clear", nil)

	s.server.Handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with no auth configured, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleClear_RequiresOperatorKeyWhenConfigured(t *testing.T) {
	h := hasher.NewBcryptHasher(nil)
	hash, err := h.Hash("secret-key")
	if err != nil {
		t.Fatalf("unexpected error hashing: %v", err)
	}

	cfg := DefaultConfig()
	cfg.OperatorKeyHash = hash
	s := New(newTestProcessor(t), nil, cfg)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/outbox/clear", nil)
	s.server.Handler.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with no key header, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/outbox/clear", nil)
	r.Header.Set("X-Operator-Key", "wrong-key")
	s.server.Handler.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with a wrong key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/outbox/clear", nil)
	r.Header.Set("X-Operator-Key", "secret-key")
	s.server.Handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with the correct key, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStart_ShutsDownOnContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	s := New(newTestProcessor(t), nil, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error from Start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Start to return after context cancellation")
	}
}
