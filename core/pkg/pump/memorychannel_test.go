package pump

import (
	"context"
	"testing"
	"time"

	"github.com/madcok-co/conduit/core/pkg/message"
)

func TestMemoryChannel_PublishAndReceive(t *testing.T) {
	c := NewMemoryChannel("test", 1, 0)
	msg := message.New("msg-1", message.TypeCommand)
	c.Publish(msg)

	got, err := c.Receive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Header.MessageID != "msg-1" {
		t.Errorf("unexpected message: %+v", got)
	}
}

func TestMemoryChannel_ReceiveTimesOutToNone(t *testing.T) {
	c := NewMemoryChannel("test", 1, 0)
	c.pollWait = 10 * time.Millisecond

	got, err := c.Receive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Header.MessageType != message.TypeNone {
		t.Errorf("expected a NONE message, got %v", got.Header.MessageType)
	}
}

func TestMemoryChannel_ReceiveReturnsQuitOnCancel(t *testing.T) {
	c := NewMemoryChannel("test", 1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := c.Receive(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Header.MessageType != message.TypeQuit {
		t.Errorf("expected a QUIT message, got %v", got.Header.MessageType)
	}
}

func TestMemoryChannel_DisposeRoutesToDeadLetter(t *testing.T) {
	c := NewMemoryChannel("test", 1, 1)
	msg := message.New("msg-1", message.TypeCommand)

	if err := c.Dispose(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dead := c.DeadLetters()
	if len(dead) != 1 || dead[0].Header.MessageID != "msg-1" {
		t.Errorf("expected the disposed message in the dead letter sink, got %v", dead)
	}
}

func TestMemoryChannel_DisposeWithoutDLQIsNoop(t *testing.T) {
	c := NewMemoryChannel("test", 1, 0)
	msg := message.New("msg-1", message.TypeCommand)
	if err := c.Dispose(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMemoryChannel_Requeue(t *testing.T) {
	c := NewMemoryChannel("test", 1, 0)
	msg := message.New("msg-1", message.TypeCommand)

	if err := c.Requeue(context.Background(), msg, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := c.Receive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Header.MessageID != "msg-1" {
		t.Errorf("expected the requeued message back, got %+v", got)
	}
}

func TestMemoryChannel_Name(t *testing.T) {
	c := NewMemoryChannel("orders", 1, 0)
	if c.Name() != "orders" {
		t.Errorf("unexpected name: %s", c.Name())
	}
}
