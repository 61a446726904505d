package registry

import (
	"context"
	"errors"
	"testing"
)

func TestNewPolicyRegistry_PreSeeded(t *testing.T) {
	r := NewPolicyRegistry()

	for _, name := range []string{RetryPolicy, RetryPolicyAsync, CircuitBreakerPolicy, CircuitBreakerPolicyAsync} {
		if r.Get(name) == nil {
			t.Errorf("expected %q to be pre-seeded", name)
		}
	}
	if r.Get("nonexistent") != nil {
		t.Error("expected nil for an unregistered policy name")
	}
}

func TestPolicyRegistry_Register(t *testing.T) {
	r := NewPolicyRegistry()
	custom := &Policy{}
	r.Register("custom", custom)

	if r.Get("custom") != custom {
		t.Error("expected Get to return the registered policy")
	}
}

func TestPolicy_Execute_NoRetryerOrBreaker(t *testing.T) {
	p := &Policy{}
	calls := 0
	err := p.Execute(func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one call, got %d", calls)
	}
}

func TestPolicy_Execute_WithRetryerOnly(t *testing.T) {
	r := NewPolicyRegistry()
	p := r.Get(RetryPolicy)

	attempts := 0
	testErr := errors.New("transient")
	err := p.Execute(func() error {
		attempts++
		if attempts < 2 {
			return testErr
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts < 2 {
		t.Errorf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestPolicy_ExecuteWithContext_NoRetryerOrBreaker(t *testing.T) {
	p := &Policy{}
	called := false
	err := p.ExecuteWithContext(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected fn to be called")
	}
}
