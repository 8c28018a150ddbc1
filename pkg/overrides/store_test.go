package overrides

import (
	"reflect"
	"testing"
)

func TestStore_PutGetRemove(t *testing.T) {
	s := NewStore()
	s.Put("/b.txt", Blob{Data: []byte("b"), Type: "text/plain"})
	s.Put("/a.txt", Blob{Data: []byte("a")})

	b, ok := s.Get("/a.txt")
	if !ok || string(b.Data) != "a" {
		t.Fatalf("overrides:store_test - expected a, got %q ok=%v", b.Data, ok)
	}
	if b.Added.IsZero() {
		t.Error("overrides:store_test - expected Added to be stamped")
	}
	if data, ok := s.Lookup("/b.txt"); !ok || string(data) != "b" {
		t.Errorf("overrides:store_test - Lookup returned %q ok=%v", data, ok)
	}
	if _, ok := s.Lookup("/a.txt?x=1"); ok {
		t.Error("overrides:store_test - lookup must match keys exactly")
	}

	if got := s.Keys(); !reflect.DeepEqual(got, []string{"/a.txt", "/b.txt"}) {
		t.Errorf("overrides:store_test - unexpected keys %v", got)
	}
	if !s.Remove("/a.txt") || s.Remove("/a.txt") {
		t.Error("overrides:store_test - Remove should report presence once")
	}
	if s.Len() != 1 {
		t.Errorf("overrides:store_test - expected 1 entry, got %d", s.Len())
	}
}

func TestStore_Clear(t *testing.T) {
	s := NewStore()
	s.Put("/a", Blob{})
	s.Put("/b", Blob{})

	if n := s.Clear(); n != 2 {
		t.Errorf("overrides:store_test - expected 2 cleared, got %d", n)
	}
	if s.Len() != 0 || len(s.Keys()) != 0 {
		t.Error("overrides:store_test - store not empty after Clear")
	}
}
