package randx

import "testing"

func TestSocketID(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		id, err := SocketID()
		if err != nil {
			t.Fatalf("SocketID: %v", err)
		}
		if len(id) != SocketIDLength {
			t.Fatalf("expected length %d, got %d", SocketIDLength, len(id))
		}
		if !IsBase62(id) {
			t.Fatalf("expected base62 id, got %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestIDs(t *testing.T) {
	id := ID()
	if !IsValidID(id) {
		t.Fatalf("expected valid uuid, got %q", id)
	}
	if IsValidID("ride-42") {
		t.Fatal("expected ride-42 to be rejected")
	}
	if IsBase62("") || IsBase62("abc-def") {
		t.Fatal("expected empty and dashed strings to be rejected")
	}
}
