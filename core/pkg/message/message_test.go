package message

import "testing"

func TestNew(t *testing.T) {
	msg := New("msg-1", TypeCommand)

	if msg.Header.MessageID != "msg-1" {
		t.Errorf("unexpected message id: %s", msg.Header.MessageID)
	}
	if msg.Header.MessageType != TypeCommand {
		t.Errorf("unexpected message type: %s", msg.Header.MessageType)
	}
	if msg.Header.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
	if msg.Header.Bag == nil {
		t.Error("expected an initialized bag")
	}
}

func TestQuitAndNone(t *testing.T) {
	if Quit().Header.MessageType != TypeQuit {
		t.Error("expected Quit() to produce TypeQuit")
	}
	if None().Header.MessageType != TypeNone {
		t.Error("expected None() to produce TypeNone")
	}
}

func TestHandledCount(t *testing.T) {
	h := &Header{}
	if h.HandledCount() != 0 {
		t.Fatal("expected initial handled count of 0")
	}
	h.IncrementHandledCount()
	h.IncrementHandledCount()
	if h.HandledCount() != 2 {
		t.Errorf("expected handled count 2, got %d", h.HandledCount())
	}
}

func TestBagValue(t *testing.T) {
	h := &Header{}

	if _, ok := h.BagValue("missing"); ok {
		t.Error("expected missing key to report not-ok")
	}

	h.SetBagValue("content-encoding", "br")
	v, ok := h.BagValue("content-encoding")
	if !ok || v != "br" {
		t.Errorf("expected to read back set bag value, got %q ok=%v", v, ok)
	}
}

func TestCollapseAndExpandUnrecognized(t *testing.T) {
	h := &Header{}

	if err := h.CollapseUnrecognized(nil); err != nil {
		t.Fatalf("unexpected error on empty attrs: %v", err)
	}
	if _, ok := h.BagValue(BagKey); ok {
		t.Error("expected no bag entry for empty attrs")
	}

	attrs := map[string]string{"x-trace-id": "abc123"}
	if err := h.CollapseUnrecognized(attrs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expanded, err := h.ExpandUnrecognized()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expanded["x-trace-id"] != "abc123" {
		t.Errorf("expected round-tripped attrs, got %v", expanded)
	}
}

func TestExpandUnrecognizedWithoutCollapse(t *testing.T) {
	h := &Header{}
	attrs, err := h.ExpandUnrecognized()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attrs != nil {
		t.Errorf("expected nil attrs when nothing was collapsed, got %v", attrs)
	}
}
