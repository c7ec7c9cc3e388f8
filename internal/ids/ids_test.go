package ids

import (
	"testing"
	"time"
)

func TestNewIsSortable(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAt(base)
	b := NewAt(base.Add(time.Millisecond))
	if a >= b {
		t.Fatalf("expected %s < %s", a, b)
	}
	if !Valid(a) || !Valid(b) {
		t.Fatalf("expected generated ids to be valid")
	}
	if Valid("not-an-id") {
		t.Fatalf("unexpected valid id")
	}
}

func TestNewRequestIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewRequestID()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate request id %s", id)
		}
		seen[id] = struct{}{}
	}
}
