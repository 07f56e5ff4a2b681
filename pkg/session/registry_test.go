package session

import "testing"

func TestCreateAndGet(t *testing.T) {
	r := NewRegistry()
	s := r.Create()

	got, err := r.Get(s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != s {
		t.Fatal("expected Get to return the same session instance")
	}
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("does-not-exist"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveDeletesSession(t *testing.T) {
	r := NewRegistry()
	s := r.Create()

	if err := r.Remove(s.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := r.Get(s.ID); err != ErrNotFound {
		t.Fatalf("expected session to be gone, got %v", err)
	}
}

func TestRemoveUnknownReturnsNotFound(t *testing.T) {
	r := NewRegistry()
	if err := r.Remove("nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestShutdownAllEmptiesRegistry(t *testing.T) {
	r := NewRegistry()
	a := r.Create()
	b := r.Create()

	r.ShutdownAll()

	if _, err := r.Get(a.ID); err != ErrNotFound {
		t.Fatalf("expected %s to be gone", a.ID)
	}
	if _, err := r.Get(b.ID); err != ErrNotFound {
		t.Fatalf("expected %s to be gone", b.ID)
	}
}

func TestDistinctSessionsGetDistinctIDs(t *testing.T) {
	r := NewRegistry()
	a := r.Create()
	b := r.Create()
	if a.ID == b.ID {
		t.Fatal("expected distinct session ids")
	}
}
