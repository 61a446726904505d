package idgen

import "testing"

func TestNew(t *testing.T) {
	a := New()
	b := New()

	if a == "" {
		t.Fatal("expected non-empty id")
	}
	if a == b {
		t.Error("expected two calls to produce distinct ids")
	}
	if !Valid(a) {
		t.Errorf("expected generated id to be valid, got %s", a)
	}
}

func TestNewCorrelationID(t *testing.T) {
	id := NewCorrelationID()
	if !Valid(id) {
		t.Errorf("expected generated correlation id to be valid, got %s", id)
	}
}

func TestValid(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		if Valid("") {
			t.Error("expected empty string to be invalid")
		}
	})

	t.Run("rejects non-uuid string", func(t *testing.T) {
		if Valid("not-a-uuid") {
			t.Error("expected garbage string to be invalid")
		}
	})

	t.Run("accepts a generated id", func(t *testing.T) {
		if !Valid(New()) {
			t.Error("expected generated id to validate")
		}
	})
}
