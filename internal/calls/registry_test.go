package calls

import (
	"errors"
	"testing"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	c := r.Register()
	if c.ID == "" {
		t.Fatalf("call ID should not be empty")
	}
	if r.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", r.ActiveCount())
	}

	if err := r.SetStream(c.ID, "CA1", "MZ1"); err != nil {
		t.Fatalf("SetStream() error = %v", err)
	}
	got, err := r.Get(c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.CallSID != "CA1" || got.StreamSID != "MZ1" {
		t.Fatalf("unexpected call: %+v", got)
	}

	ended, err := r.End(c.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded || ended.EndedAt.IsZero() {
		t.Fatalf("unexpected ended call: %+v", ended)
	}
	if r.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", r.ActiveCount())
	}
}

func TestRegistryDropsEndedCalls(t *testing.T) {
	r := NewRegistry()
	ids := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		ids = append(ids, r.Register().ID)
	}
	for _, id := range ids {
		if _, err := r.End(id); err != nil {
			t.Fatalf("End(%s) error = %v", id, err)
		}
	}

	if r.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", r.ActiveCount())
	}
	if n := len(r.calls); n != 0 {
		t.Fatalf("registry retains %d ended calls, want 0", n)
	}
	if _, err := r.Get(ids[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after End error = %v, want ErrNotFound", err)
	}
	if _, err := r.End(ids[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second End() error = %v, want ErrNotFound", err)
	}
}

func TestRegistryUnknownID(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if err := r.SetStream("nope", "CA1", "MZ1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetStream() error = %v, want ErrNotFound", err)
	}
}
