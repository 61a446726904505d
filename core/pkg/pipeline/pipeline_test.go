package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/madcok-co/conduit/core/pkg/registry"
	"github.com/madcok-co/conduit/core/pkg/request"
)

type echoHandler struct{}

func (echoHandler) Handle(ctx context.Context, req *request.Request) (any, error) {
	return req.Body, nil
}

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	subs := registry.NewSubscriberRegistry()
	return NewBuilder(subs, func(handlerType string) (Handler, error) {
		if handlerType == "missing" {
			return nil, errors.New("no such handler")
		}
		return echoHandler{}, nil
	})
}

func orderedMiddleware(tag string, order *[]string) Middleware {
	return func(next Executor) Executor {
		return func(ctx context.Context, req *request.Request) (any, error) {
			*order = append(*order, "before:"+tag)
			result, err := next(ctx, req)
			*order = append(*order, "after:"+tag)
			return result, err
		}
	}
}

func TestBuild_OrdersBeforeAscendingAfterDescending(t *testing.T) {
	b := newTestBuilder(t)
	var order []string

	b.Use("h", Descriptor{StepIndex: 2, Timing: Before, Middleware: orderedMiddleware("before-2", &order)})
	b.Use("h", Descriptor{StepIndex: 1, Timing: Before, Middleware: orderedMiddleware("before-1", &order)})
	b.Use("h", Descriptor{StepIndex: 1, Timing: After, Middleware: orderedMiddleware("after-1", &order)})
	b.Use("h", Descriptor{StepIndex: 2, Timing: After, Middleware: orderedMiddleware("after-2", &order)})

	if _, err := b.Dispatch(context.Background(), "h", request.NewCommand("h", "body")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{
		"before:before-1", "before:before-2", "before:after-1", "before:after-2",
		"after:after-2", "after:after-1", "after:before-2", "after:before-1",
	}
	if len(order) != len(expected) {
		t.Fatalf("unexpected order: %v", order)
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("position %d: expected %s, got %s", i, v, order[i])
		}
	}
}

func TestBuild_DuplicateStepIndexSameTimingFails(t *testing.T) {
	b := newTestBuilder(t)
	b.Use("h", Descriptor{StepIndex: 1, Timing: Before, Middleware: func(next Executor) Executor { return next }})
	b.Use("h", Descriptor{StepIndex: 1, Timing: Before, Middleware: func(next Executor) Executor { return next }})

	if _, err := b.Build("h"); err == nil {
		t.Fatal("expected a configuration error for duplicate step indices")
	}
}

func TestBuild_CachesChainDescription(t *testing.T) {
	b := newTestBuilder(t)
	first, err := b.Build("h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := b.Build("h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Error("expected the same cached ChainDescription instance")
	}

	b.Clear()
	third, err := b.Build("h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third == first {
		t.Error("expected Clear to force a rebuild")
	}
}

func TestDispatch_UnresolvableHandlerFails(t *testing.T) {
	b := newTestBuilder(t)
	if _, err := b.Dispatch(context.Background(), "missing", request.NewCommand("missing", nil)); err == nil {
		t.Fatal("expected an error when the factory cannot resolve a handler")
	}
}

func TestDispatch_InvokesTargetHandler(t *testing.T) {
	b := newTestBuilder(t)
	result, err := b.Dispatch(context.Background(), "h", request.NewCommand("h", "payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "payload" {
		t.Errorf("unexpected result: %v", result)
	}
}
