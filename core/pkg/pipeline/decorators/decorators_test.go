package decorators

import (
	"context"
	"errors"
	"testing"

	"github.com/madcok-co/conduit/core/pkg/contracts"
	"github.com/madcok-co/conduit/core/pkg/inbox"
	"github.com/madcok-co/conduit/core/pkg/mediator"
	"github.com/madcok-co/conduit/core/pkg/outbox"
	"github.com/madcok-co/conduit/core/pkg/pipeline"
	"github.com/madcok-co/conduit/core/pkg/registry"
	"github.com/madcok-co/conduit/core/pkg/request"
	"github.com/madcok-co/conduit/core/pkg/rterrors"
	"github.com/madcok-co/conduit/core/pkg/transform"
)

func echo(ctx context.Context, req *request.Request) (any, error) {
	return req.Body, nil
}

func TestRetry_NoPolicyRegisteredFails(t *testing.T) {
	policies := registry.NewPolicyRegistry()
	mw := Retry(policies, "NOPE")
	_, err := mw(echo)(context.Background(), request.NewCommand("h", "x"))
	if err == nil {
		t.Fatal("expected an error for an unregistered policy")
	}
}

func TestRetry_RetriesUntilSuccess(t *testing.T) {
	policies := registry.NewPolicyRegistry()
	mw := Retry(policies, registry.RetryPolicy)

	attempts := 0
	next := func(ctx context.Context, req *request.Request) (any, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}

	result, err := mw(next)(context.Background(), request.NewCommand("h", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("unexpected result: %v", result)
	}
	if attempts < 2 {
		t.Errorf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestCircuitBreaker_PassesThroughOnSuccess(t *testing.T) {
	policies := registry.NewPolicyRegistry()
	mw := CircuitBreaker(policies, registry.CircuitBreakerPolicy)

	result, err := mw(echo)(context.Background(), request.NewCommand("h", "value"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "value" {
		t.Errorf("unexpected result: %v", result)
	}
}

func TestInbox_FirstRequestInvokesNext(t *testing.T) {
	store := inbox.NewMemoryStore()
	mw := Inbox(store, "orders", inbox.Throw, nil)
	called := false
	next := func(ctx context.Context, req *request.Request) (any, error) {
		called = true
		return nil, nil
	}

	req := request.NewCommand("h", "body")
	if _, err := mw(next)(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected next to be invoked on first handling")
	}
}

func TestInbox_ReplayThrows(t *testing.T) {
	store := inbox.NewMemoryStore()
	mw := Inbox(store, "orders", inbox.Throw, nil)
	req := request.NewCommand("h", "body")

	if _, err := mw(echo)(context.Background(), req); err != nil {
		t.Fatalf("unexpected error on first handling: %v", err)
	}

	_, err := mw(echo)(context.Background(), req)
	if err == nil {
		t.Fatal("expected an error on replay with Throw")
	}
	var violation *rterrors.OnceOnlyViolation
	if !errors.As(err, &violation) {
		t.Errorf("expected a OnceOnlyViolation, got %v", err)
	}
}

func TestInbox_ReplaySkipsWithoutInvokingNext(t *testing.T) {
	store := inbox.NewMemoryStore()
	mw := Inbox(store, "orders", inbox.Skip, nil)
	req := request.NewCommand("h", "body")

	calls := 0
	next := func(ctx context.Context, req *request.Request) (any, error) {
		calls++
		return nil, nil
	}

	mw(next)(context.Background(), req)
	mw(next)(context.Background(), req)

	if calls != 1 {
		t.Errorf("expected next to be invoked exactly once, got %d", calls)
	}
}

func TestInbox_ReplayWarnsAndStillInvokesNext(t *testing.T) {
	store := inbox.NewMemoryStore()
	mw := Inbox(store, "orders", inbox.Warn, nil)
	req := request.NewCommand("h", "body")

	calls := 0
	next := func(ctx context.Context, req *request.Request) (any, error) {
		calls++
		return nil, nil
	}

	mw(next)(context.Background(), req)
	mw(next)(context.Background(), req)

	if calls != 2 {
		t.Errorf("expected next to be invoked on both the original and replay, got %d", calls)
	}
}

type jsonMapper struct{}

func (jsonMapper) MapToBytes(body any) ([]byte, error) { return []byte(`{}`), nil }
func (jsonMapper) MapFromBytes(data []byte) (any, error) { return map[string]any{}, nil }
func (jsonMapper) Name() string { return "json" }

func TestOutboxProducer_DepositsRequestResult(t *testing.T) {
	transform.Reset()
	defer transform.Reset()
	transform.RegisterMapper(string(request.Document), jsonMapper{})

	store := outbox.NewMemoryStore()
	producers := registry.NewProducerRegistry()
	policies := registry.NewPolicyRegistry()
	med := mediator.New(store, producers, policies)

	cfg := OutboxProducerConfig{
		Transforms: transform.NewCache(),
		Mediator:   med,
		RoutingKey: "orders.created",
	}
	mw := OutboxProducer(cfg, nil)

	outbound := request.NewDocument("orders.created", map[string]any{"id": "1"})
	next := func(ctx context.Context, req *request.Request) (any, error) {
		return outbound, nil
	}

	req := request.NewCommand("orders.create", nil)
	if _, err := mw(next)(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, err := store.Get(context.Background(), outbound.ID())
	if err != nil {
		t.Fatalf("expected the outbound request to be deposited: %v", err)
	}
	if entry.State != outbox.Outstanding && entry.State != outbox.Dispatched {
		t.Errorf("unexpected entry state: %s", entry.State)
	}
}

func TestOutboxProducer_NonRequestResultPassesThrough(t *testing.T) {
	cfg := OutboxProducerConfig{Transforms: transform.NewCache()}
	mw := OutboxProducer(cfg, nil)

	result, err := mw(echo)(context.Background(), request.NewCommand("h", "plain value"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "plain value" {
		t.Errorf("expected the plain result to pass through unchanged, got %v", result)
	}
}

type recordingLogger struct {
	contracts.Logger
	errored bool
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) { l.errored = true }
func (l *recordingLogger) Fatal(string, ...any) {}
func (l *recordingLogger) WithContext(context.Context) contracts.Logger { return l }
func (l *recordingLogger) WithFields(...any) contracts.Logger           { return l }
func (l *recordingLogger) WithError(error) contracts.Logger             { return l }
func (l *recordingLogger) Named(string) contracts.Logger                { return l }
func (l *recordingLogger) Sync() error                                  { return nil }

func TestLogging_LogsErrorOnFailure(t *testing.T) {
	logger := &recordingLogger{}
	mw := Logging(logger)
	failing := func(ctx context.Context, req *request.Request) (any, error) {
		return nil, errors.New("boom")
	}

	_, err := mw(failing)(context.Background(), request.NewCommand("h", nil))
	if err == nil {
		t.Fatal("expected the error to propagate")
	}
	if !logger.errored {
		t.Error("expected an Error log line on failure")
	}
}

type stubValidator struct{ fail bool }

func (v stubValidator) Validate(data any) error {
	if v.fail {
		return errors.New("invalid")
	}
	return nil
}
func (v stubValidator) ValidateField(field any, tag string) error { return nil }

func TestValidation_ShortCircuitsOnFailure(t *testing.T) {
	mw := Validation(stubValidator{fail: true})
	called := false
	next := func(ctx context.Context, req *request.Request) (any, error) {
		called = true
		return nil, nil
	}

	_, err := mw(next)(context.Background(), request.NewCommand("h", nil))
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if called {
		t.Error("expected next not to be invoked when validation fails")
	}
}

func TestValidation_PassesThroughOnSuccess(t *testing.T) {
	mw := Validation(stubValidator{fail: false})
	result, err := mw(echo)(context.Background(), request.NewCommand("h", "ok"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("unexpected result: %v", result)
	}
}

func TestFallback_InvokedOnFailure(t *testing.T) {
	failing := func(ctx context.Context, req *request.Request) (any, error) {
		return nil, errors.New("primary failed")
	}
	mw := Fallback(func(ctx context.Context, req *request.Request, err error) (any, error) {
		return "fallback-value", nil
	})

	result, err := mw(failing)(context.Background(), request.NewCommand("h", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "fallback-value" {
		t.Errorf("unexpected result: %v", result)
	}
}

func TestFallback_NotInvokedOnSuccess(t *testing.T) {
	mw := Fallback(func(ctx context.Context, req *request.Request, err error) (any, error) {
		t.Fatal("fallback should not be invoked on success")
		return nil, nil
	})

	result, err := mw(echo)(context.Background(), request.NewCommand("h", "ok"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("unexpected result: %v", result)
	}
}

var _ pipeline.Executor = echo
